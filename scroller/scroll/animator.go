// Package scroll animates a text message across a fixed width LED display.
//
// An Animator runs a three phase loop driven by a millisecond clock:
//
//	PreScroll  - hold the start of the message for Config.Hold
//	Scrolling  - move one pixel left every Config.Step
//	PostScroll - hold the end of the message (only with Config.PostScrollHold)
//
// and then starts over. It never finishes on its own: the only way to stop a
// run is to cancel the context passed to Run.
package scroll

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/ucl-casa-ce/Galactic-Unicorn-MQTT-Scroller/clock"
)

// Phase is the animator's position in the scroll loop.
type Phase uint8

const (
	PreScroll Phase = iota
	Scrolling
	PostScroll
)

func (p Phase) String() string {
	switch p {
	case PreScroll:
		return "pre-scroll"
	case Scrolling:
		return "scrolling"
	case PostScroll:
		return "post-scroll"
	}
	return "unknown"
}

// State is a snapshot of an animation in progress.
type State struct {
	Phase Phase
	// Shift is the pixel offset of the text. It is 0 on every entry into
	// PreScroll and only grows while Scrolling.
	Shift int
	// Since is the clock reading of the last transition.
	Since uint32
	// MessageWidth is the pixel width of the padded message.
	MessageWidth int
}

// Animator renders one Message on a Surface until cancelled.
type Animator struct {
	cfg      Config
	msg      Message
	surface  Surface
	controls Controls
	clock    clock.Clock
	logger   *slog.Logger

	hold, step uint32
	width      int
	state      State
}

// NewAnimator prepares a run for msg. The animation starts in PreScroll with
// no shift, timed from the current clock reading. controls may be nil.
func NewAnimator(cfg Config, msg Message, surface Surface, controls Controls, clk clock.Clock, logger *slog.Logger) *Animator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cfg = cfg.withDefaults()
	a := &Animator{
		cfg:      cfg,
		msg:      msg,
		surface:  surface,
		controls: controls,
		clock:    clk,
		logger:   logger,
		hold:     uint32(cfg.Hold.Milliseconds()),
		step:     uint32(cfg.Step.Milliseconds()),
		width:    surface.Width(),
	}
	a.state = State{
		Phase:        PreScroll,
		Since:        clk.NowMillis(),
		MessageWidth: surface.MeasureWidth(msg.Text()),
	}
	return a
}

// State returns the current animation state.
func (a *Animator) State() State {
	return a.state
}

// Run ticks the animation until ctx is cancelled and returns ctx.Err().
// Cancellation is checked once per tick.
func (a *Animator) Run(ctx context.Context) error {
	if a.controls != nil && a.cfg.Brightness > 0 {
		a.controls.SetBrightness(a.cfg.Brightness)
	}
	a.logger.Info("scroll:start",
		slog.String("message", a.msg.Raw()),
		slog.Int("width", a.state.MessageWidth),
	)
	for {
		if err := ctx.Err(); err != nil {
			a.logger.Info("scroll:stop", slog.String("message", a.msg.Raw()))
			return err
		}
		if err := a.Tick(); err != nil {
			a.logger.Error("scroll:flush-failed", slog.String("err", err.Error()))
		}
		time.Sleep(a.cfg.TickInterval)
	}
}

// Tick performs one iteration of the render loop: poll the buttons, advance
// the state machine and redraw the whole frame. The frame is redrawn even
// when nothing moved so the buttons stay responsive.
func (a *Animator) Tick() error {
	now := a.clock.NowMillis()
	a.pollControls()
	a.advance(now)
	return a.draw()
}

func (a *Animator) advance(now uint32) {
	elapsed := clock.Since(now, a.state.Since)
	span := a.state.MessageWidth + 2*a.cfg.Padding

	switch a.state.Phase {
	case PreScroll:
		if elapsed < a.hold {
			return
		}
		if span >= a.width {
			a.state.Phase = Scrolling
		}
		a.state.Since = now
	case Scrolling:
		if elapsed < a.step {
			return
		}
		a.state.Shift++
		a.state.Since = now
		if a.state.Shift >= span-a.width-1 {
			if a.cfg.PostScrollHold {
				a.state.Phase = PostScroll
			} else {
				a.restart(now)
			}
		}
	case PostScroll:
		if elapsed >= a.hold {
			a.restart(now)
		}
	}
}

func (a *Animator) restart(now uint32) {
	a.state.Phase = PreScroll
	a.state.Shift = 0
	a.state.Since = now
}

func (a *Animator) pollControls() {
	if a.controls == nil {
		return
	}
	var delta float32
	if a.controls.IsPressed(BrightnessUp) {
		delta += a.cfg.BrightnessStep
	}
	if a.controls.IsPressed(BrightnessDown) {
		delta -= a.cfg.BrightnessStep
	}
	if delta == 0 {
		return
	}
	level := a.controls.Brightness() + delta
	a.controls.SetBrightness(min(max(level, 0), 1))
}

var outlineOffsets = [8][2]int{
	{-1, -1}, {0, -1}, {1, -1},
	{-1, 0}, {1, 0},
	{-1, 1}, {0, 1}, {1, 1},
}

func (a *Animator) draw() error {
	s := a.surface
	s.SetColor(a.cfg.Background)
	s.Clear()

	text := a.msg.Text()
	x, y := a.cfg.Padding-a.state.Shift, a.cfg.TextY
	s.SetColor(a.cfg.OutlineColor)
	for _, off := range outlineOffsets {
		s.DrawText(text, x+off[0], y+off[1])
	}
	s.SetColor(a.cfg.MessageColor)
	s.DrawText(text, x, y)

	return s.Flush()
}
