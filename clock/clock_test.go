package clock

import (
	"math"
	"sync"
	"testing"
	"time"
)

func TestMonotonic(t *testing.T) {
	c := NewMonotonic()

	t1 := c.NowMillis()
	time.Sleep(20 * time.Millisecond)
	t2 := c.NowMillis()

	if d := Since(t2, t1); d < 20 {
		t.Errorf("Expected at least 20ms elapsed, got %d", d)
	}
}

func TestSinceWraparound(t *testing.T) {
	tests := []struct {
		name      string
		now, last uint32
		want      uint32
	}{
		{"no wrap", 1500, 500, 1000},
		{"same instant", 42, 42, 0},
		{"wrap", 99, math.MaxUint32 - 100, 200},
		{"wrap from max", 0, math.MaxUint32, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Since(tt.now, tt.last); got != tt.want {
				t.Errorf("Since(%d, %d) = %d, want %d", tt.now, tt.last, got, tt.want)
			}
		})
	}
}

func TestMock(t *testing.T) {
	m := NewMock(1000)
	if got := m.NowMillis(); got != 1000 {
		t.Fatalf("Expected initial reading 1000, got %d", got)
	}

	m.Advance(2 * time.Second)
	if got := m.NowMillis(); got != 3000 {
		t.Errorf("Expected 3000 after Advance, got %d", got)
	}

	m.Set(math.MaxUint32 - 9)
	m.Advance(20 * time.Millisecond)
	if got := m.NowMillis(); got != 10 {
		t.Errorf("Expected wrapped reading 10, got %d", got)
	}
}

func TestMockConcurrency(t *testing.T) {
	m := NewMock(0)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = m.NowMillis()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Advance(time.Millisecond)
			}
		}()
	}
	wg.Wait()

	if got := m.NowMillis(); got != 1000 {
		t.Errorf("Expected 1000 after concurrent advances, got %d", got)
	}
}
