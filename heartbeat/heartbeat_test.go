package heartbeat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeLED struct {
	mu     sync.Mutex
	states []bool
}

func (l *fakeLED) Set(high bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, high)
}

func (l *fakeLED) history() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bool(nil), l.states...)
}

func TestRunToggles(t *testing.T) {
	led := &fakeLED{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, led, time.Millisecond) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(led.history()) < 5 {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for toggles")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}

	h := led.history()
	for i := 1; i < len(h)-1; i++ {
		if h[i] == h[i-1] {
			t.Fatalf("states %d and %d are both %v, want alternating: %v", i-1, i, h[i], h)
		}
	}
	if h[len(h)-1] {
		t.Error("Expected the LED to be off after Run returns")
	}
}

func TestRunDefaultPeriod(t *testing.T) {
	led := &fakeLED{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	Run(ctx, led, 0)
	if h := led.history(); len(h) != 2 || !h[0] || h[1] {
		t.Errorf("Expected on then off, got %v", h)
	}
}

func TestLink(t *testing.T) {
	led := &fakeLED{}
	onLink := Link(led)
	onLink(false)
	onLink(true)
	h := led.history()
	if len(h) != 2 || !h[0] || h[1] {
		t.Errorf("Expected LED lit while down and dark while up, got %v", h)
	}
}
