// Package heartbeat blinks status LEDs so a glance at the board tells whether
// the firmware is alive and whether WiFi is up.
package heartbeat

import (
	"context"
	"time"
)

// DefaultPeriod is the time between toggles.
const DefaultPeriod = 500 * time.Millisecond

// Output is a single LED. machine.Pin satisfies it.
type Output interface {
	Set(high bool)
}

// Run toggles led every period until ctx is done, then switches it off.
func Run(ctx context.Context, led Output, period time.Duration) error {
	if period <= 0 {
		period = DefaultPeriod
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	on := true
	led.Set(on)
	for {
		select {
		case <-ctx.Done():
			led.Set(false)
			return ctx.Err()
		case <-ticker.C:
			on = !on
			led.Set(on)
		}
	}
}

// Link returns a callback for link state changes that lights led while the
// link is down.
func Link(led Output) func(up bool) {
	return func(up bool) {
		led.Set(!up)
	}
}
