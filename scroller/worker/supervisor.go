// Package worker keeps a single scroll animation on the display and swaps it
// out whenever a newer message arrives.
//
// Inbound messages are decoded on the caller's goroutine and queued. The
// supervisor loop takes them off the queue in arrival order; for each one it
// cancels the running animation, waits for it to return, then starts the new
// one. The newest message always wins.
package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ucl-casa-ce/Galactic-Unicorn-MQTT-Scroller/scroller/scroll"
)

// DecodeFunc turns a raw payload into a message.
type DecodeFunc func(payload []byte) (scroll.Message, error)

// RenderFunc draws msg until ctx is cancelled.
type RenderFunc func(ctx context.Context, msg scroll.Message) error

// Config configures a Supervisor.
type Config struct {
	// Grace bounds how long a replacement waits for a cancelled run to return.
	Grace time.Duration
	// QueueSize is the number of decoded messages waiting for the worker.
	QueueSize int
	Logger    *slog.Logger
}

// Supervisor owns the render surface on behalf of a stream of messages.
type Supervisor struct {
	grace  time.Duration
	logger *slog.Logger
	decode DecodeFunc
	render RenderFunc
	inbox  chan scroll.Message

	mu      sync.Mutex
	current *run
	runs    atomic.Uint32
}

type run struct {
	msg    scroll.Message
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Supervisor. Call Run to start processing messages.
func New(cfg Config, decode DecodeFunc, render RenderFunc) *Supervisor {
	if cfg.Grace <= 0 {
		cfg.Grace = time.Second
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Supervisor{
		grace:  cfg.Grace,
		logger: cfg.Logger,
		decode: decode,
		render: render,
		inbox:  make(chan scroll.Message, cfg.QueueSize),
	}
}

// OnMessage decodes payload and queues it for display. It never waits on
// rendering. Undecodable payloads are logged and dropped. When the queue is
// full the oldest queued message is discarded.
func (s *Supervisor) OnMessage(topic, payload []byte, retained bool) {
	s.logger.Info("worker:received",
		slog.String("topic", string(topic)),
		slog.String("payload", string(payload)),
		slog.Bool("retained", retained),
	)
	msg, err := s.decode(payload)
	if err != nil {
		s.logger.Error("worker:decode-failed",
			slog.String("topic", string(topic)),
			slog.String("err", err.Error()),
		)
		return
	}
	for {
		select {
		case s.inbox <- msg:
			return
		default:
		}
		select {
		case stale := <-s.inbox:
			s.logger.Warn("worker:dropped-stale", slog.String("message", stale.Raw()))
		default:
		}
	}
}

// Run processes queued messages until ctx is done, then stops the active
// animation and returns ctx.Err().
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		select {
		case msg := <-s.inbox:
			s.replace(ctx, msg)
		case <-ctx.Done():
			s.Stop()
			return ctx.Err()
		}
	}
}

// replace stops the active animation, if any, and starts rendering msg in a
// new goroutine whose context derives from ctx. If the old run does not
// return within the grace period the new one starts anyway. Only the Run
// loop calls it, which keeps a single run active at a time.
func (s *Supervisor) replace(ctx context.Context, msg scroll.Message) {
	s.stopCurrent()

	rctx, cancel := context.WithCancel(ctx)
	r := &run{msg: msg, cancel: cancel, done: make(chan struct{})}
	s.mu.Lock()
	s.current = r
	s.mu.Unlock()
	n := s.runs.Add(1)

	s.logger.Info("worker:start", slog.Uint64("run", uint64(n)), slog.String("message", msg.Raw()))
	go func() {
		defer close(r.done)
		defer cancel()
		err := s.render(rctx, msg)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("worker:render-failed", slog.Uint64("run", uint64(n)), slog.String("err", err.Error()))
		}
		s.mu.Lock()
		if s.current == r {
			s.current = nil
		}
		s.mu.Unlock()
	}()
}

// Stop cancels the active animation and waits for it, bounded by the grace period.
func (s *Supervisor) Stop() {
	s.stopCurrent()
}

func (s *Supervisor) stopCurrent() {
	s.mu.Lock()
	prev := s.current
	s.mu.Unlock()
	if prev == nil {
		return
	}
	prev.cancel()
	select {
	case <-prev.done:
	case <-time.After(s.grace):
		// The old run may draw one more frame over the new one.
		s.logger.Warn("worker:grace-expired",
			slog.String("message", prev.msg.Raw()),
			slog.Duration("grace", s.grace),
		)
	}
	s.mu.Lock()
	if s.current == prev {
		s.current = nil
	}
	s.mu.Unlock()
}

// Active reports whether an animation is running.
func (s *Supervisor) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Runs returns the number of animations started so far.
func (s *Supervisor) Runs() uint32 {
	return s.runs.Load()
}
