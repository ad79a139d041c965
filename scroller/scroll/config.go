package scroll

import (
	"image/color"
	"time"
)

// Config tunes the animation. Zero fields are replaced with defaults by NewAnimator.
type Config struct {
	// Hold is how long the message stays still before scrolling starts
	// (and after it ends when PostScrollHold is set).
	Hold time.Duration
	// Step is the time between one pixel scroll increments.
	Step time.Duration
	// TickInterval is the sleep between ticks of the render loop.
	// A short pause keeps the USB serial device alive.
	TickInterval time.Duration
	// Padding is the pixel margin on either side of the text.
	Padding int
	// TextY is the vertical offset of the top of the text.
	TextY int
	// LeadingSpaces and TrailingSpaces pad the decoded payload so short
	// messages still appear to enter and leave the visible area.
	LeadingSpaces  int
	TrailingSpaces int
	// PostScrollHold holds the final frame for Hold before restarting.
	// Off by default: the scroll restarts at PreScroll immediately.
	PostScrollHold bool
	// Brightness is applied when a run starts. Zero leaves it untouched.
	Brightness float32
	// BrightnessStep is applied once per tick while a brightness button is held.
	BrightnessStep float32

	Background   color.RGBA
	MessageColor color.RGBA
	OutlineColor color.RGBA
}

// DefaultConfig returns the settings used on the Galactic Unicorn.
func DefaultConfig() Config {
	return Config{
		Hold:           2 * time.Second,
		Step:           65 * time.Millisecond,
		TickInterval:   time.Millisecond,
		Padding:        2,
		TextY:          2,
		LeadingSpaces:  16,
		TrailingSpaces: 13,
		Brightness:     0.1,
		BrightnessStep: 0.01,
		Background:     color.RGBA{R: 255, G: 255, A: 255},
		MessageColor:   color.RGBA{R: 255, G: 255, B: 255, A: 255},
		OutlineColor:   color.RGBA{A: 255},
	}
}

// withDefaults fills the zero fields of c. Padding, TextY and the colors are
// valid at zero and are left alone.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Hold <= 0 {
		c.Hold = def.Hold
	}
	if c.Step <= 0 {
		c.Step = def.Step
	}
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	if c.BrightnessStep <= 0 {
		c.BrightnessStep = def.BrightnessStep
	}
	return c
}
