// Command scroller subscribes to an MQTT topic and scrolls every message it
// receives across a 53x11 LED matrix.
package main

import (
	"context"
	"log/slog"
	"machine"
	"net/netip"
	"time"

	natiu "github.com/soypat/natiu-mqtt"
	"github.com/ucl-casa-ce/Galactic-Unicorn-MQTT-Scroller/clock"
	"github.com/ucl-casa-ce/Galactic-Unicorn-MQTT-Scroller/cyw43439"
	"github.com/ucl-casa-ce/Galactic-Unicorn-MQTT-Scroller/heartbeat"
	"github.com/ucl-casa-ce/Galactic-Unicorn-MQTT-Scroller/mqtt"
	"github.com/ucl-casa-ce/Galactic-Unicorn-MQTT-Scroller/scroller/matrix"
	"github.com/ucl-casa-ce/Galactic-Unicorn-MQTT-Scroller/scroller/scroll"
	"github.com/ucl-casa-ce/Galactic-Unicorn-MQTT-Scroller/scroller/worker"
	"tinygo.org/x/drivers/ws2812"
)

// Deployment settings, overridable with -ldflags "-X main.broker=...".
var (
	broker   = "10.0.0.9:1883"
	topic    = "personal/ucfnaps/led/#"
	clientID = "unicorn-scroller"
	username string
	password string
)

const (
	heartbeatLED = machine.GP21
	wifiLED      = machine.GP20
	matrixPin    = machine.GP16
	buttonUp     = machine.GP14
	buttonDown   = machine.GP15
)

func main() {
	time.Sleep(2 * time.Second) // give the serial monitor time to attach
	logger := slog.New(slog.NewTextHandler(machine.Serial, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	heartbeatLED.Configure(machine.PinConfig{Mode: machine.PinOutput})
	wifiLED.Configure(machine.PinConfig{Mode: machine.PinOutput})
	go heartbeat.Run(context.Background(), heartbeatLED, heartbeat.DefaultPeriod)

	display := newDisplay()
	cfg := scroll.DefaultConfig()
	clk := clock.NewMonotonic()
	sup := worker.New(worker.Config{Logger: logger},
		func(payload []byte) (scroll.Message, error) {
			return scroll.Decode(payload, cfg)
		},
		func(ctx context.Context, msg scroll.Message) error {
			return scroll.NewAnimator(cfg, msg, display, display, clk, logger).Run(ctx)
		},
	)
	go sup.Run(context.Background())

	stack, err := cyw43439.Connect(cyw43439.SSID(), cyw43439.Password(), cyw43439.Config{
		Hostname:    clientID,
		MaxTCPConns: 1,
		OnLink:      heartbeat.Link(wifiLED),
		Logger:      logger,
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
	}
	err = client.ConnectAndSubscribe(stack.LnetoStack(), broker, sup.OnMessage)
	reset(logger, "mqtt:fatal", err)
}

func newDisplay() *matrix.Display {
	matrixPin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	strip := ws2812.NewWS2812(matrixPin)
	buttonUp.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	buttonDown.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	return matrix.New(matrix.Config{
		Serpentine:       true,
		Buttons:          [2]matrix.Input{buttonUp, buttonDown},
		ButtonsActiveLow: true,
	}, strip)
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
