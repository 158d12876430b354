package sfu

import (
	"sync"
	"time"
)

// LoadBalancerSettings configures worker pool scaling policy (§4.3).
type LoadBalancerSettings struct {
	MaxWorkers     int
	IdleTimeout    time.Duration
	WorkerSettings WorkerSettings
}

func DefaultLoadBalancerSettings() LoadBalancerSettings {
	return LoadBalancerSettings{
		MaxWorkers:     4,
		IdleTimeout:    5 * time.Minute,
		WorkerSettings: defaultWorkerSettings(),
	}
}

// LoadBalancer owns the pool of Workers and picks one for each new
// Router per the policy of §4.3:
//
//  1. Let cnt = live worker count, W* = worker with minimal load_score.
//     If no workers exist, OR cnt < max_workers AND W*.load_score > 0,
//     spawn a new worker and return it.
//  2. Else return W*.
//  3. For each other worker with load_score == 0 and
//     now - zero_time >= idle_timeout, kill it (graceful).
type LoadBalancer struct {
	settings LoadBalancerSettings
	bus      *EventBus
	registry *Registry

	spawn func(bus *EventBus, registry *Registry, settings WorkerSettings) (*Worker, error)

	mu      sync.Mutex
	workers []*Worker
}

func NewLoadBalancer(bus *EventBus, registry *Registry, settings LoadBalancerSettings) *LoadBalancer {
	return &LoadBalancer{
		settings: settings,
		bus:      bus,
		registry: registry,
		spawn:    NewWorker,
	}
}

// PickWorker implements the §4.3 policy and also performs the idle
// sweep (step 3) as a side effect of every selection, since the spec
// does not call for a separate timer — "For each other worker... kill
// W" reads naturally as happening alongside selection.
func (lb *LoadBalancer) PickWorker() (*Worker, error) {
	lb.mu.Lock()

	lb.pruneDeadLocked()

	var best *Worker
	for _, w := range lb.workers {
		if best == nil || w.LoadScore() < best.LoadScore() {
			best = w
		}
	}

	needSpawn := best == nil || (len(lb.workers) < lb.settings.MaxWorkers && best.LoadScore() > 0)

	if !needSpawn {
		now := time.Now()
		for _, w := range lb.workers {
			if w == best {
				continue
			}
			if w.LoadScore() == 0 && now.Sub(w.ZeroTime()) >= lb.settings.IdleTimeout {
				go w.Close()
			}
		}
		lb.mu.Unlock()
		return best, nil
	}
	lb.mu.Unlock()

	w, err := lb.spawn(lb.bus, lb.registry, lb.settings.WorkerSettings)
	if err != nil {
		return nil, err
	}

	lb.mu.Lock()
	lb.workers = append(lb.workers, w)
	lb.mu.Unlock()

	return w, nil
}

// pruneDeadLocked drops closed workers from the pool. Must be called
// with mu held.
func (lb *LoadBalancer) pruneDeadLocked() {
	alive := lb.workers[:0]
	for _, w := range lb.workers {
		if !w.Closed() {
			alive = append(alive, w)
		}
	}
	lb.workers = alive
}

func (lb *LoadBalancer) Workers() []*Worker {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	out := make([]*Worker, len(lb.workers))
	copy(out, lb.workers)
	return out
}

// Close shuts down every worker in parallel (§4.1 "on global shutdown,
// every worker is killed in parallel").
func (lb *LoadBalancer) Close() {
	lb.mu.Lock()
	workers := make([]*Worker, len(lb.workers))
	copy(workers, lb.workers)
	lb.workers = nil
	lb.mu.Unlock()

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Close()
		}(w)
	}
	wg.Wait()
}
