package scroll

import (
	"errors"
	"image/color"
	"sync"
)

// recordingSurface is an in-memory Surface that records what was drawn.
type recordingSurface struct {
	mu        sync.Mutex
	width     int
	charWidth int
	fixed     int // when > 0, MeasureWidth returns this instead
	pen       color.RGBA
	cleared   []color.RGBA
	draws     []drawCall
	flushes   int
	flushErr  error
}

type drawCall struct {
	text  string
	x, y  int
	color color.RGBA
}

func (s *recordingSurface) Width() int { return s.width }

func (s *recordingSurface) SetColor(c color.RGBA) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pen = c
}

func (s *recordingSurface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared = append(s.cleared, s.pen)
	s.draws = s.draws[:0]
}

func (s *recordingSurface) DrawText(text string, x, y int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draws = append(s.draws, drawCall{text: text, x: x, y: y, color: s.pen})
}

func (s *recordingSurface) MeasureWidth(text string) int {
	if s.fixed > 0 {
		return s.fixed
	}
	return len(text) * s.charWidth
}

func (s *recordingSurface) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return s.flushErr
}

// lastFrame returns the draw calls since the last Clear.
func (s *recordingSurface) lastFrame() []drawCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]drawCall(nil), s.draws...)
}

type fakeControls struct {
	pressed    map[Button]bool
	brightness float32
	sets       int
}

func (c *fakeControls) IsPressed(b Button) bool { return c.pressed[b] }
func (c *fakeControls) Brightness() float32     { return c.brightness }
func (c *fakeControls) SetBrightness(level float32) {
	c.brightness = level
	c.sets++
}

var errFlush = errors.New("strip write failed")
