package sfu

import (
	"sync"
	"testing"
)

func TestEventBusOrderedDelivery(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})

	bus.On(func(ev Event) {
		mu.Lock()
		got = append(got, ev.Data.(int))
		n := len(got)
		mu.Unlock()
		if n == 5 {
			close(done)
		}
	})

	for i := 0; i < 5; i++ {
		bus.Emit(Event{Kind: EventProducerCreated, Data: i})
	}
	<-done

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("events delivered out of order: %v", got)
		}
	}
}

func TestEventBusOffStopsDelivery(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	var mu sync.Mutex
	count := 0
	id := bus.On(func(ev Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	bus.Off(id)

	done := make(chan struct{})
	bus.On(func(ev Event) { close(done) })
	bus.Emit(Event{Kind: EventProducerCreated})
	<-done

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Fatalf("expected deregistered handler to receive 0 events, got %d", count)
	}
}

func TestEventBusSnapshotAllowsDeregisterDuringDispatch(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	var mu sync.Mutex
	secondCalls := 0
	var secondID HandlerID

	bus.On(func(ev Event) {
		bus.Off(secondID)
	})
	secondID = bus.On(func(ev Event) {
		mu.Lock()
		secondCalls++
		mu.Unlock()
	})

	done := make(chan struct{})
	bus.On(func(ev Event) { close(done) })

	bus.Emit(Event{Kind: EventProducerCreated})
	<-done

	mu.Lock()
	defer mu.Unlock()
	if secondCalls != 1 {
		t.Fatalf("expected the snapshot to still include the handler removed mid-dispatch exactly once, got %d calls", secondCalls)
	}
}
