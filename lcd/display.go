// Package lcd shows short status messages on a 16x2 HD44780 character LCD.
//
// Producers never wait on the display:
//
//	status := make(chan lcd.Message, 4)
//	go lcd.NewHandler(&dev, status, logger).Run()
//
//	lcd.Send(status, "MQTT Connected", "Subscribed")
//
// Send drops the message when the channel is full or nil.
package lcd

import (
	"io"
	"log/slog"
	"unicode/utf8"
)

// Message represents a two-line LCD message.
type Message struct {
	Line1 []byte
	Line2 []byte
}

// Device is the part of hd44780i2c.Device the handler uses.
type Device interface {
	ClearDisplay()
	SetCursor(x, y uint8)
	Print(data []byte)
}

// Handler processes LCD messages from a channel.
type Handler struct {
	device   Device
	messages <-chan Message
	logger   *slog.Logger
	columns  int
	shown    uint32
}

// NewHandler creates a new 16x2 LCD message handler.
func NewHandler(device Device, messages <-chan Message, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{
		device:   device,
		messages: messages,
		logger:   logger,
		columns:  16,
	}
}

// Run updates the LCD for every message until the channel is closed.
// Run should be called in a separate goroutine.
func (h *Handler) Run() {
	for msg := range h.messages {
		h.display(msg)
	}
	h.logger.Info("lcd:closed", slog.Uint64("shown", uint64(h.shown)))
}

// display prints msg, truncating each line to the display width.
func (h *Handler) display(msg Message) {
	h.device.ClearDisplay()
	h.device.SetCursor(0, 0)
	h.device.Print(h.truncate(msg.Line1))
	h.device.SetCursor(0, 1)
	h.device.Print(h.truncate(msg.Line2))
	h.shown++
}

// truncate reslices in place, no allocation. The cut never splits a
// multi-byte rune.
func (h *Handler) truncate(line []byte) []byte {
	if len(line) <= h.columns {
		return line
	}
	end := h.columns
	for end > 0 && !utf8.RuneStart(line[end]) {
		end--
	}
	return line[:end]
}

// Send queues a message without blocking. It reports whether the message was queued.
func Send(ch chan<- Message, line1, line2 string) bool {
	if ch == nil {
		return false
	}
	select {
	case ch <- Message{Line1: []byte(line1), Line2: []byte(line2)}:
		return true
	default:
		return false
	}
}
