package sfu

import (
	"testing"
	"time"
)

// newTestHarness builds the shared Registry/EventBus pair most tests
// in this package need without spawning a real worker process (the
// native SFU binary is out of scope for this repo, §1).
func newTestHarness(t *testing.T) (*Registry, *EventBus) {
	t.Helper()
	registry := NewRegistry()
	bus := NewEventBus()
	t.Cleanup(bus.Close)
	return registry, bus
}

func waitBriefly() {
	time.Sleep(20 * time.Millisecond)
}
