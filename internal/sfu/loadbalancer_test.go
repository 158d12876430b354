package sfu

import (
	"testing"
	"time"
)

// fakeWorker builds a Worker that never spawns a real process, for
// exercising LoadBalancer's pure selection policy (§4.3) in isolation.
func fakeWorker(loadScore int32, zeroTime time.Time) *Worker {
	w := &Worker{logger: NewLogger("Worker"), routers: map[string]*Router{}}
	w.loadScore = loadScore
	w.zeroTime = zeroTime
	return w
}

func TestLoadBalancerSpawnsFirstWorker(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()
	reg := NewRegistry()

	lb := NewLoadBalancer(bus, reg, LoadBalancerSettings{MaxWorkers: 4, IdleTimeout: time.Minute})
	spawned := fakeWorker(0, time.Now())
	spawnCalls := 0
	lb.spawn = func(bus *EventBus, registry *Registry, settings WorkerSettings) (*Worker, error) {
		spawnCalls++
		return spawned, nil
	}

	w, err := lb.PickWorker()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w != spawned {
		t.Fatal("expected PickWorker to spawn when the pool is empty")
	}
	if spawnCalls != 1 {
		t.Fatalf("expected exactly one spawn, got %d", spawnCalls)
	}
}

func TestLoadBalancerReusesIdleWorkerAtCap(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()
	reg := NewRegistry()

	lb := NewLoadBalancer(bus, reg, LoadBalancerSettings{MaxWorkers: 1, IdleTimeout: time.Minute})
	idle := fakeWorker(0, time.Now())
	lb.workers = []*Worker{idle}
	lb.spawn = func(bus *EventBus, registry *Registry, settings WorkerSettings) (*Worker, error) {
		t.Fatal("should not spawn: at capacity with a zero-load worker available")
		return nil, nil
	}

	w, err := lb.PickWorker()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w != idle {
		t.Fatal("expected PickWorker to reuse the existing zero-load worker")
	}
}

func TestLoadBalancerSpawnsWhenUnderCapAndBestIsLoaded(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()
	reg := NewRegistry()

	lb := NewLoadBalancer(bus, reg, LoadBalancerSettings{MaxWorkers: 4, IdleTimeout: time.Minute})
	loaded := fakeWorker(3, time.Now())
	lb.workers = []*Worker{loaded}

	spawned := fakeWorker(0, time.Now())
	lb.spawn = func(bus *EventBus, registry *Registry, settings WorkerSettings) (*Worker, error) {
		return spawned, nil
	}

	w, err := lb.PickWorker()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w != spawned {
		t.Fatal("expected PickWorker to spawn a new worker: cnt < max_workers and W*.load_score > 0")
	}
}

func TestLoadBalancerAtCapacityReturnsMinLoadWorker(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()
	reg := NewRegistry()

	lb := NewLoadBalancer(bus, reg, LoadBalancerSettings{MaxWorkers: 2, IdleTimeout: time.Minute})
	busy := fakeWorker(5, time.Now())
	lessBusy := fakeWorker(2, time.Now())
	lb.workers = []*Worker{busy, lessBusy}
	lb.spawn = func(bus *EventBus, registry *Registry, settings WorkerSettings) (*Worker, error) {
		t.Fatal("should not spawn: at capacity and best worker is still loaded")
		return nil, nil
	}

	w, err := lb.PickWorker()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w != lessBusy {
		t.Fatal("expected PickWorker to return the minimal load_score worker")
	}
}
