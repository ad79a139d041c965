// Package gauge turns sensor readings into needle positions on a servo dial.
package gauge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrDecode is returned for payloads that are not a number.
var ErrDecode = errors.New("gauge: payload is not a number")

// Range is a closed interval.
type Range struct {
	Min, Max float64
}

// Span returns Max - Min.
func (r Range) Span() float64 { return r.Max - r.Min }

// Translate maps v linearly from one range onto another. Values outside from
// land outside to. A zero-width from maps everything to to.Min.
func Translate(v float64, from, to Range) float64 {
	if from.Span() == 0 {
		return to.Min
	}
	return to.Min + (v-from.Min)/from.Span()*to.Span()
}

// Actuator moves the needle. servo.Servo satisfies it.
type Actuator interface {
	SetAngleWithMicroseconds(angle int, lowMicroseconds, highMicroseconds int) error
}

// Config describes the dial.
type Config struct {
	// Input is the range of readings shown on the dial, in sensor units.
	Input Range
	// Output is the needle travel in degrees that Input maps onto.
	Output Range
	// MinPulse and MaxPulse are the servo pulse widths for 0 and 180 degrees.
	MinPulse, MaxPulse int
	Logger             *slog.Logger
}

// DefaultConfig is a barometer dial: 950-1050 mbar over a quarter turn.
func DefaultConfig() Config {
	return Config{
		Input:    Range{Min: 950, Max: 1050},
		Output:   Range{Min: 0, Max: 90},
		MinPulse: 305,
		MaxPulse: 2747,
	}
}

// Gauge drives one servo needle.
type Gauge struct {
	cfg   Config
	servo Actuator
	log   *slog.Logger
}

// New creates a Gauge. Zero fields in cfg take their DefaultConfig values.
func New(cfg Config, servo Actuator) *Gauge {
	def := DefaultConfig()
	if cfg.Input.Span() == 0 {
		cfg.Input = def.Input
	}
	if cfg.Output.Span() == 0 {
		cfg.Output = def.Output
	}
	if cfg.MinPulse <= 0 {
		cfg.MinPulse = def.MinPulse
	}
	if cfg.MaxPulse <= 0 {
		cfg.MaxPulse = def.MaxPulse
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Gauge{cfg: cfg, servo: servo, log: cfg.Logger}
}

// Show points the needle at value and returns the angle used.
func (g *Gauge) Show(value float64) (degrees int, err error) {
	deg := Translate(value, g.cfg.Input, g.cfg.Output)
	degrees = min(max(int(deg+0.5), 0), 180)
	g.log.Debug("gauge:show", slog.Float64("value", value), slog.Int("degrees", degrees))
	return degrees, g.set(degrees)
}

// Sweep moves the needle from 0 to the end of the output range and back, one
// degree every step, pausing at the far end. It is used to calibrate the dial
// face against the needle.
func (g *Gauge) Sweep(ctx context.Context, step, pause time.Duration) error {
	end := min(max(int(g.cfg.Output.Max), 0), 180)
	g.log.Info("gauge:sweep", slog.Int("end", end))
	for deg := 0; deg < end; deg++ {
		if err := g.moveAndWait(ctx, deg, step); err != nil {
			return err
		}
	}
	if err := sleep(ctx, pause); err != nil {
		return err
	}
	for deg := end; deg >= 0; deg-- {
		if err := g.moveAndWait(ctx, deg, step); err != nil {
			return err
		}
	}
	return nil
}

func (g *Gauge) moveAndWait(ctx context.Context, deg int, d time.Duration) error {
	if err := g.set(deg); err != nil {
		return err
	}
	return sleep(ctx, d)
}

func (g *Gauge) set(degrees int) error {
	err := g.servo.SetAngleWithMicroseconds(degrees, g.cfg.MinPulse, g.cfg.MaxPulse)
	if err != nil {
		return errors.New("gauge: set angle " + strconv.Itoa(degrees) + ": " + err.Error())
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ParseReading decodes a numeric MQTT payload such as "1013.2".
func ParseReading(payload []byte) (float64, error) {
	s := strings.TrimSpace(string(payload))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Join(ErrDecode, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.Join(ErrDecode, errors.New("not finite: "+s))
	}
	return v, nil
}
