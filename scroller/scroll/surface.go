package scroll

import "image/color"

// Surface is the pixel buffer and physical display the animator draws on.
type Surface interface {
	// Width returns the visible width in pixels.
	Width() int
	// SetColor selects the pen used by Clear and DrawText.
	SetColor(c color.RGBA)
	// Clear fills the buffer with the current pen.
	Clear()
	// DrawText draws text with its top left corner at x, y.
	DrawText(text string, x, y int)
	// MeasureWidth returns the pixel width of text in the current font.
	MeasureWidth(text string) int
	// Flush pushes the buffer to the display.
	Flush() error
}

// Button identifies a hardware push button.
type Button uint8

const (
	BrightnessUp Button = iota
	BrightnessDown
)

func (b Button) String() string {
	switch b {
	case BrightnessUp:
		return "brightness-up"
	case BrightnessDown:
		return "brightness-down"
	}
	return "unknown"
}

// Controls are the inputs polled on every tick.
type Controls interface {
	IsPressed(b Button) bool
	Brightness() float32
	SetBrightness(level float32)
}
