package clock

import (
	"sync"
	"time"
)

// Mock is a controllable clock for tests.
type Mock struct {
	mu  sync.RWMutex
	now uint32
}

// NewMock creates a mock clock reading start.
func NewMock(start uint32) *Mock {
	return &Mock{now: start}
}

// NowMillis returns the current mocked reading.
func (m *Mock) NowMillis() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

// Set sets the current reading.
func (m *Mock) Set(ms uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = ms
}

// Advance moves the clock forward by d, wrapping like a hardware counter.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now += uint32(d.Milliseconds())
}
