// Command barograph subscribes to a barometric pressure topic and shows each
// reading on a servo dial and a 16x2 LCD.
package main

import (
	"context"
	"errors"
	"log/slog"
	"machine"
	"net/netip"
	"strconv"
	"time"

	natiu "github.com/soypat/natiu-mqtt"
	"github.com/ucl-casa-ce/Galactic-Unicorn-MQTT-Scroller/barograph/gauge"
	"github.com/ucl-casa-ce/Galactic-Unicorn-MQTT-Scroller/cyw43439"
	"github.com/ucl-casa-ce/Galactic-Unicorn-MQTT-Scroller/heartbeat"
	"github.com/ucl-casa-ce/Galactic-Unicorn-MQTT-Scroller/lcd"
	"github.com/ucl-casa-ce/Galactic-Unicorn-MQTT-Scroller/mqtt"
	"tinygo.org/x/drivers/hd44780i2c"
	"tinygo.org/x/drivers/servo"
)

// Deployment settings, overridable with -ldflags "-X main.broker=...".
var (
	broker   = "10.0.0.9:1883"
	topic    = "personal/ucfnaps/downhamweather/barometer_mbar"
	clientID = "barograph"
	username string
	password string
	// calibrate runs a full needle sweep at boot when set to "1".
	calibrate string
)

const (
	heartbeatLED = machine.GP21
	wifiLED      = machine.GP20
	servoPin     = machine.GP16
)

func main() {
	time.Sleep(2 * time.Second) // give the serial monitor time to attach
	logger := slog.New(slog.NewTextHandler(machine.Serial, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	heartbeatLED.Configure(machine.PinConfig{Mode: machine.PinOutput})
	wifiLED.Configure(machine.PinConfig{Mode: machine.PinOutput})
	go heartbeat.Run(context.Background(), heartbeatLED, heartbeat.DefaultPeriod)

	err := machine.I2C0.Configure(machine.I2CConfig{
		SDA: machine.GP4,
		SCL: machine.GP5,
	})
	if err != nil {
		reset(logger, "i2c:configure-failed", err)
	}
	dev, err := configureLCD(machine.I2C0)
	if err != nil {
		reset(logger, "lcd:configure-failed", err)
	}
	status := make(chan lcd.Message, 4)
	go lcd.NewHandler(&dev, status, logger).Run()
	lcd.Send(status, "Barograph", "Starting...")

	sv, err := servo.New(machine.PWM0, servoPin)
	if err != nil {
		reset(logger, "servo:configure-failed", err)
	}
	g := gauge.New(gauge.Config{Logger: logger}, sv)
	if calibrate == "1" {
		lcd.Send(status, "Calibrating", "Sweeping needle")
		if err := g.Sweep(context.Background(), 50*time.Millisecond, 4*time.Second); err != nil {
			logger.Error("gauge:sweep-failed", slog.String("err", err.Error()))
		}
	}

	wifiUp := heartbeat.Link(wifiLED)
	stack, err := cyw43439.Connect(cyw43439.SSID(), cyw43439.Password(), cyw43439.Config{
		Hostname:    clientID,
		MaxTCPConns: 1,
		OnLink: func(up bool) {
			wifiUp(up)
			if up {
				lcd.Send(status, "WiFi Connected", cyw43439.SSID())
			} else {
				lcd.Send(status, "WiFi Down", "Joining...")
			}
		},
		Logger: logger,
	})
	if err != nil {
		reset(logger, "wifi:connect-failed", err)
	}
	go stack.Serve(5*time.Millisecond, 200)

	if _, err := stack.SetupDHCP(netip.Addr{}); err != nil {
		reset(logger, "wifi:dhcp-failed", err)
	}

	client := mqtt.Client{
		ID:       clientID,
		Logger:   logger,
		Username: username,
		Password: password,
		Topic:    topic,
		QoS:      natiu.QoS0,
		Status:   status,
	}
	err = client.ConnectAndSubscribe(stack.LnetoStack(), broker, newReadingHandler(g, status, logger))
	lcd.Send(status, "MQTT Failed", "Resetting...")
	reset(logger, "mqtt:fatal", err)
}

// newReadingHandler moves the needle for every pressure reading and prints it
// on the LCD. Readings that are not numbers are logged and dropped.
func newReadingHandler(g *gauge.Gauge, status chan<- lcd.Message, logger *slog.Logger) mqtt.Handler {
	// Preallocated so each reading doesn't go through fmt.
	line := make([]byte, 0, 16)
	return func(topic, payload []byte, retained bool) {
		mbar, err := gauge.ParseReading(payload)
		if err != nil {
			logger.Error("gauge:decode-failed",
				slog.String("payload", string(payload)),
				slog.String("err", err.Error()),
			)
			return
		}
		degrees, err := g.Show(mbar)
		if err != nil {
			logger.Error("gauge:show-failed", slog.String("err", err.Error()))
		}
		line = line[:0]
		line = strconv.AppendFloat(line, mbar, 'f', 1, 64)
		line = append(line, "mb "...)
		line = strconv.AppendInt(line, int64(degrees), 10)
		line = append(line, "deg"...)
		lcd.Send(status, "Pressure", string(line))
	}
}

// configureLCD takes a preconfigured I2C peripheral and initializes the
// HD44780 LCD behind a PCF8574 backpack at 0x27, falling back to 0x3F.
func configureLCD(i2c *machine.I2C) (hd44780i2c.Device, error) {
	var errs []error
	for _, addr := range []uint8{0x27, 0x3F} {
		// The driver never reports a missing device, so probe with a one byte write.
		if err := i2c.Tx(uint16(addr), []byte{0}, nil); err != nil {
			errs = append(errs, errors.New("0x"+strconv.FormatUint(uint64(addr), 16)+": "+err.Error()))
			continue
		}
		dev := hd44780i2c.New(i2c, addr)
		err := dev.Configure(hd44780i2c.Config{
			Width:  16,
			Height: 2,
		})
		if err != nil {
			return dev, errors.New("configure LCD: " + err.Error())
		}
		dev.ClearDisplay()
		return dev, nil
	}
	return hd44780i2c.Device{}, errors.Join(append([]error{errors.New("LCD not found")}, errs...)...)
}

// reset logs the failure a few times so a late serial monitor still sees it,
// then restarts the board.
func reset(logger *slog.Logger, msg string, err error) {
	for range 5 {
		logger.Error(msg, slog.Any("reason", err))
		time.Sleep(time.Second)
	}
	machine.CPUReset()
}
