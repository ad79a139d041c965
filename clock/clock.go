// Package clock provides the millisecond tick source used for animation timing.
//
// Readings are uint32 milliseconds and wrap around after roughly 49 days.
// Elapsed time must always be computed with unsigned subtraction:
//
//	elapsed := now - last
//
// which stays correct across a single wraparound.
package clock

import "time"

// Clock returns monotonic milliseconds.
type Clock interface {
	NowMillis() uint32
}

// Monotonic reads the runtime's monotonic clock relative to when it was created.
type Monotonic struct {
	start time.Time
}

// NewMonotonic creates a clock starting at zero.
func NewMonotonic() *Monotonic {
	return &Monotonic{start: time.Now()}
}

// NowMillis returns milliseconds since the clock was created, truncated to 32 bits.
func (m *Monotonic) NowMillis() uint32 {
	return uint32(time.Since(m.start).Milliseconds())
}

// Since returns the milliseconds elapsed between last and now, handling wraparound.
func Since(now, last uint32) uint32 {
	return now - last
}
