package sfu

import (
	"sync"
)

// routerParams are the dependencies a Router needs at construction
// time, threaded down from Worker.CreateRouter.
type routerParams struct {
	internal        internalData
	rtpCapabilities RtpCapabilities
	channel         *Channel
	payloadChannel  *PayloadChannel
	bus             *EventBus
	registry        *Registry
	worker          *Worker
}

// Router is a logical session within a Worker (§4.4.1). It owns
// Transports and RtpObservers, and at most one Room.
type Router struct {
	resourceBase
	logger   Logger
	internal internalData
	channel  *Channel
	payload  *PayloadChannel
	bus      *EventBus
	registry *Registry
	worker   *Worker

	rtpCapabilities RtpCapabilities

	mu         sync.Mutex
	transports []*Transport
	observers  []*RtpObserver
	room       roomCloser
}

// roomCloser is the minimal contract Router needs from a Room, kept
// abstract so internal/sfu does not import internal/room (the Room
// Domain depends on the resource layer, never the reverse).
type roomCloser interface {
	CloseFromRouter()
}

func newRouter(p routerParams) *Router {
	return &Router{
		resourceBase:    newResourceBase(p.internal.RouterId),
		logger:          NewLogger("Router"),
		internal:        p.internal,
		channel:         p.channel,
		payload:         p.payloadChannel,
		bus:             p.bus,
		registry:        p.registry,
		worker:          p.worker,
		rtpCapabilities: p.rtpCapabilities,
	}
}

func (r *Router) Id() string                     { return r.internal.RouterId }
func (r *Router) RtpCapabilities() RtpCapabilities { return r.rtpCapabilities }

// SetRoom binds the Router's single optional Room (§3 Router
// children: "(opt) Room"). Called by the Room Domain at room
// creation; Router itself never creates Rooms.
func (r *Router) SetRoom(room roomCloser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.room = room
}

func (r *Router) addTransport(t *Transport) {
	r.mu.Lock()
	r.transports = append(r.transports, t)
	r.mu.Unlock()
}

func (r *Router) removeTransport(t *Transport) {
	r.mu.Lock()
	for i, cur := range r.transports {
		if cur == t {
			r.transports = append(r.transports[:i], r.transports[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
}

func (r *Router) addObserver(o *RtpObserver) {
	r.mu.Lock()
	r.observers = append(r.observers, o)
	r.mu.Unlock()
}

func (r *Router) removeObserver(o *RtpObserver) {
	r.mu.Lock()
	for i, cur := range r.observers {
		if cur == o {
			r.observers = append(r.observers[:i], r.observers[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
}

func (r *Router) Dump() DumpResult {
	resp := r.channel.Request("router.dump", r.internal)
	return NewDumpResult(resp.Data(), resp.Err())
}

// Close cascades per invariant 5 (ordered teardown): Room first, then
// Transports and Observers in reverse insertion order, then the
// Router itself (§4.4.1 "Closing a Router cascades to its Room (if
// any), then all its Transports and Observers, then itself").
func (r *Router) Close() {
	if !r.markClosePending() {
		return
	}
	r.logger.Debug("close()")

	r.mu.Lock()
	room := r.room
	transports := reverseTransports(r.transports)
	observers := reverseObservers(r.observers)
	r.transports = nil
	r.observers = nil
	r.mu.Unlock()

	if room != nil {
		room.CloseFromRouter()
	}
	for _, t := range transports {
		t.routerClosed()
	}
	for _, o := range observers {
		o.routerClosed()
	}

	r.channel.Request("router.close", r.internal)
	r.registry.Remove(r)
	r.worker.removeRouter(r.internal.RouterId)
	r.bus.Emit(Event{Kind: EventRouterClosed, ResourceID: r.LocalID(), Data: r})
}

// workerClosed is called (instead of Close, which would issue a
// router.close command to an already-dead worker) when the owning
// Worker has crashed (§4.1 Failure semantics, scenario 4).
func (r *Router) workerClosed() {
	if !r.markClosePending() {
		return
	}
	r.logger.Debug("workerClosed()")

	r.mu.Lock()
	room := r.room
	transports := reverseTransports(r.transports)
	observers := reverseObservers(r.observers)
	r.transports = nil
	r.observers = nil
	r.mu.Unlock()

	if room != nil {
		room.CloseFromRouter()
	}
	for _, t := range transports {
		t.routerClosed()
	}
	for _, o := range observers {
		o.routerClosed()
	}

	r.registry.Remove(r)
	r.bus.Emit(Event{Kind: EventRouterClosed, ResourceID: r.LocalID(), Data: r})
}

func reverseTransports(in []*Transport) []*Transport {
	out := make([]*Transport, len(in))
	copy(out, in)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func reverseObservers(in []*RtpObserver) []*RtpObserver {
	out := make([]*RtpObserver, len(in))
	copy(out, in)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
