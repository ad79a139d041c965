// Package matrix draws text on an LED matrix built from a chain of WS2812
// pixels.
//
// Drawing happens in an in-memory framebuffer. Text is rendered with tinyfont,
// and Flush scales the frame by the current brightness and writes it to the
// strip in wiring order.
package matrix

import (
	"image/color"

	"github.com/ucl-casa-ce/Galactic-Unicorn-MQTT-Scroller/scroller/scroll"
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"
)

// Galactic Unicorn geometry.
const (
	DefaultWidth  = 53
	DefaultHeight = 11
)

// Strip receives a full frame of pixels in wiring order. ws2812.Device
// satisfies it.
type Strip interface {
	WriteColors(buf []color.RGBA) error
}

// Input is a digital input such as a push button. machine.Pin satisfies it.
type Input interface {
	Get() bool
}

// Config describes the panel.
type Config struct {
	Width, Height int16
	// Serpentine is set when every other row is wired right to left.
	Serpentine bool
	// Font defaults to proggy.TinySZ8pt7b.
	Font tinyfont.Fonter
	// Ascent is the distance from the top of the text to its baseline.
	Ascent int16
	// Brightness is the initial brightness in [0, 1]. Zero means 0.1.
	Brightness float32
	// Buttons are indexed by scroll.Button. Nil entries read as released.
	Buttons [2]Input
	// ButtonsActiveLow is set when a pressed button reads low (pull-ups).
	ButtonsActiveLow bool
}

// Display is an LED matrix. It implements scroll.Surface, scroll.Controls
// and drivers.Displayer.
type Display struct {
	width, height int16
	serpentine    bool
	font          tinyfont.Fonter
	ascent        int16
	strip         Strip

	pixels     []color.RGBA
	out        []color.RGBA
	pen        color.RGBA
	brightness float32

	buttons   [2]Input
	activeLow bool
}

// New creates a Display writing to strip.
func New(cfg Config, strip Strip) *Display {
	if cfg.Width <= 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = DefaultHeight
	}
	if cfg.Font == nil {
		cfg.Font = &proggy.TinySZ8pt7b
	}
	if cfg.Ascent <= 0 {
		cfg.Ascent = 7
	}
	if cfg.Brightness <= 0 {
		cfg.Brightness = 0.1
	}
	n := int(cfg.Width) * int(cfg.Height)
	return &Display{
		width:      cfg.Width,
		height:     cfg.Height,
		serpentine: cfg.Serpentine,
		font:       cfg.Font,
		ascent:     cfg.Ascent,
		strip:      strip,
		pixels:     make([]color.RGBA, n),
		out:        make([]color.RGBA, n),
		brightness: clamp(cfg.Brightness),
		buttons:    cfg.Buttons,
		activeLow:  cfg.ButtonsActiveLow,
	}
}

// Size returns the panel size in pixels.
func (d *Display) Size() (x, y int16) {
	return d.width, d.height
}

// Width returns the panel width in pixels.
func (d *Display) Width() int {
	return int(d.width)
}

// SetPixel sets one pixel of the framebuffer. Pixels off the panel are ignored.
func (d *Display) SetPixel(x, y int16, c color.RGBA) {
	if x < 0 || y < 0 || x >= d.width || y >= d.height {
		return
	}
	d.pixels[int(y)*int(d.width)+int(x)] = c
}

// Pixel returns one pixel of the framebuffer, before brightness scaling.
func (d *Display) Pixel(x, y int16) color.RGBA {
	if x < 0 || y < 0 || x >= d.width || y >= d.height {
		return color.RGBA{}
	}
	return d.pixels[int(y)*int(d.width)+int(x)]
}

// SetColor selects the pen for Clear and DrawText.
func (d *Display) SetColor(c color.RGBA) {
	d.pen = c
}

// Clear fills the framebuffer with the pen.
func (d *Display) Clear() {
	for i := range d.pixels {
		d.pixels[i] = d.pen
	}
}

// DrawText draws text with its top left corner at x, y.
func (d *Display) DrawText(text string, x, y int) {
	tinyfont.WriteLine(d, d.font, int16(x), int16(y)+d.ascent, text, d.pen)
}

// MeasureWidth returns the width of text in pixels.
func (d *Display) MeasureWidth(text string) int {
	_, outbox := tinyfont.LineWidth(d.font, text)
	return int(outbox)
}

// Flush writes the framebuffer to the strip.
func (d *Display) Flush() error {
	b := d.brightness
	for y := int16(0); y < d.height; y++ {
		for x := int16(0); x < d.width; x++ {
			c := d.pixels[int(y)*int(d.width)+int(x)]
			d.out[d.index(x, y)] = color.RGBA{
				R: uint8(float32(c.R) * b),
				G: uint8(float32(c.G) * b),
				B: uint8(float32(c.B) * b),
			}
		}
	}
	return d.strip.WriteColors(d.out)
}

// Display is Flush, for drivers.Displayer.
func (d *Display) Display() error {
	return d.Flush()
}

// index maps a pixel to its position on the strip.
func (d *Display) index(x, y int16) int {
	row := int(y) * int(d.width)
	if d.serpentine && y%2 == 1 {
		return row + int(d.width-1-x)
	}
	return row + int(x)
}

// IsPressed reports whether button b is held down.
func (d *Display) IsPressed(b scroll.Button) bool {
	if int(b) >= len(d.buttons) || d.buttons[b] == nil {
		return false
	}
	return d.buttons[b].Get() != d.activeLow
}

// Brightness returns the current brightness in [0, 1].
func (d *Display) Brightness() float32 {
	return d.brightness
}

// SetBrightness sets the brightness, clamped to [0, 1]. It takes effect on
// the next Flush.
func (d *Display) SetBrightness(level float32) {
	d.brightness = clamp(level)
}

func clamp(v float32) float32 {
	return min(max(v, 0), 1)
}
