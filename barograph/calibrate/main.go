// Command calibrate drives the barograph needle from a potentiometer so the
// dial face can be marked up. The pot on ADC0 sweeps the full pressure range;
// the LCD shows the simulated reading and the servo angle.
package main

import (
	"log/slog"
	"machine"
	"strconv"
	"time"

	"github.com/ucl-casa-ce/Galactic-Unicorn-MQTT-Scroller/barograph/gauge"
	"github.com/ucl-casa-ce/Galactic-Unicorn-MQTT-Scroller/lcd"
	"tinygo.org/x/drivers/hd44780i2c"
	"tinygo.org/x/drivers/servo"
)

const max16Bit = 65535 // ADC readings are scaled to 16 bits.

func main() {
	logger := slog.New(slog.NewTextHandler(machine.Serial, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	debugLED := machine.GP21
	debugLED.Configure(machine.PinConfig{Mode: machine.PinOutput})

	machine.InitADC()
	pot := machine.ADC{Pin: machine.ADC0}
	pot.Configure(machine.ADCConfig{})

	err := machine.I2C0.Configure(machine.I2CConfig{
		SDA: machine.GP4,
		SCL: machine.GP5,
	})
	if err != nil {
		failForever(logger, "i2c:configure-failed", err)
	}
	dev := hd44780i2c.New(machine.I2C0, 0x27)
	if err := dev.Configure(hd44780i2c.Config{Width: 16, Height: 2}); err != nil {
		failForever(logger, "lcd:configure-failed", err)
	}
	status := make(chan lcd.Message, 1)
	go lcd.NewHandler(&dev, status, logger).Run()

	sv, err := servo.New(machine.PWM0, machine.GP16)
	if err != nil {
		failForever(logger, "servo:configure-failed", err)
	}
	cfg := gauge.DefaultConfig()
	cfg.Logger = logger
	g := gauge.New(cfg, sv)

	potRange := gauge.Range{Min: 0, Max: max16Bit}
	// Preallocated so the loop doesn't go through fmt.
	line1 := make([]byte, 0, 16)
	line2 := make([]byte, 0, 16)
	last := -1
	for {
		raw := pot.Get()
		value := gauge.Translate(float64(raw), potRange, cfg.Input)
		degrees, err := g.Show(value)
		if err != nil {
			logger.Error("gauge:show-failed", slog.String("err", err.Error()))
		}

		if degrees != last {
			last = degrees
			line1 = strconv.AppendFloat(line1[:0], value, 'f', 1, 64)
			line1 = append(line1, " mbar"...)
			line2 = append(line2[:0], "Angle: "...)
			line2 = strconv.AppendInt(line2, int64(degrees), 10)
			lcd.Send(status, string(line1), string(line2))
		}

		debugLED.Set(!debugLED.Get())
		time.Sleep(100 * time.Millisecond)
	}
}

// failForever logs err at 1Hz so it shows up whenever the serial monitor
// attaches. It never returns.
func failForever(logger *slog.Logger, msg string, err error) {
	for {
		logger.Error(msg, slog.String("reason", err.Error()))
		time.Sleep(time.Second)
	}
}
