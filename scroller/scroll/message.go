package scroll

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// ErrDecode is returned when a payload is not valid UTF-8 text.
var ErrDecode = errors.New("scroll: payload is not valid utf-8")

// Message is a decoded payload with blank padding on both ends.
// It is immutable once created.
type Message struct {
	text string
	raw  string
}

// Decode turns an MQTT payload into a padded Message. The payload is copied,
// so the caller may reuse its buffer.
func Decode(payload []byte, cfg Config) (Message, error) {
	if !utf8.Valid(payload) {
		return Message{}, ErrDecode
	}
	raw := string(payload)
	lead, trail := max(cfg.LeadingSpaces, 0), max(cfg.TrailingSpaces, 0)

	var b strings.Builder
	b.Grow(lead + len(raw) + trail)
	b.WriteString(strings.Repeat(" ", lead))
	b.WriteString(raw)
	b.WriteString(strings.Repeat(" ", trail))
	return Message{text: b.String(), raw: raw}, nil
}

// NewMessage creates a Message from already padded text.
func NewMessage(text string) Message {
	return Message{text: text, raw: text}
}

// Text returns the padded text as drawn on the display.
func (m Message) Text() string { return m.text }

// Raw returns the payload without padding.
func (m Message) Raw() string { return m.raw }
