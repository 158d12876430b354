package sfu

import (
	"strings"
	"sync"
)

// EventKind enumerates the catalog of §4.6, abbreviated here to the
// names actually dispatched by this package. Room-scoped kinds
// (ROOM_CREATED, etc.) are not defined, and the Room Domain does not
// publish on this bus.
type EventKind string

const (
	EventWorkerLaunched  EventKind = "WORKER_LAUNCHED"
	EventWorkerShutdown  EventKind = "WORKER_SHUTDOWN"
	EventRouterCreated   EventKind = "ROUTER_CREATED"
	EventRouterClosed    EventKind = "ROUTER_CLOSED"
	EventTransportCreated EventKind = "TRANSPORT_CREATED"
	EventTransportUpdated EventKind = "TRANSPORT_UPDATED"
	EventTransportClosed EventKind = "TRANSPORT_CLOSED"
	EventTransportIceStateChange   EventKind = "TRANSPORT_ICE_STATE_CHANGE"
	EventTransportDtlsStateChange  EventKind = "TRANSPORT_DTLS_STATE_CHANGE"
	EventTransportSctpStateChange  EventKind = "TRANSPORT_SCTP_STATE_CHANGE"
	EventTransportTuple            EventKind = "TRANSPORT_TUPLE"
	EventTransportRtcpTuple         EventKind = "TRANSPORT_RTCPTUPLE"
	EventTransportIceSelectedTupleChange EventKind = "TRANSPORT_ICE_SELECTED_TUPLE_CHANGE"
	EventProducerCreated EventKind = "PRODUCER_CREATED"
	EventProducerClosed  EventKind = "PRODUCER_CLOSED"
	EventProducerPause   EventKind = "PRODUCER_PAUSE"
	EventProducerResume  EventKind = "PRODUCER_RESUME"
	EventProducerVideoOrientationChange EventKind = "PRODUCER_VIDEO_ORIENTATION_CHANGE"
	EventConsumerCreated EventKind = "CONSUMER_CREATED"
	EventConsumerClosed  EventKind = "CONSUMER_CLOSED"
	EventConsumerPause   EventKind = "CONSUMER_PAUSE"
	EventConsumerResume  EventKind = "CONSUMER_RESUME"
	EventConsumerProducerPause  EventKind = "CONSUMER_PRODUCER_PAUSE"
	EventConsumerProducerResume EventKind = "CONSUMER_PRODUCER_RESUME"
	EventConsumerLayersChange   EventKind = "CONSUMER_LAYERSCHANGE"
	EventResourceScore   EventKind = "RESOURCE_SCORE"
	EventObserverCreated EventKind = "OBSERVER_CREATED"
	EventObserverPaused  EventKind = "OBSERVER_PAUSED"
	EventObserverResumed EventKind = "OBSERVER_RESUMED"
	EventObserverClosed  EventKind = "OBSERVER_CLOSED"
	EventAudioObserverVolumes EventKind = "AUDIO_OBSERVER_VOLUMES"
	EventAudioObserverSilence EventKind = "AUDIO_OBSERVER_SILENCE"
	EventActiveSpeaker   EventKind = "ACTIVE_SPEAKER"
	EventPayload         EventKind = "PAYLOAD"
)

// Event is a single dispatch: the kind, the originating resource's
// local id (0 if not resource-scoped), and an opaque data payload
// whose concrete type depends on Kind.
type Event struct {
	Kind       EventKind
	ResourceID uint32
	Data       interface{}
}

// HandlerID is the opaque id returned by EventBus.On, used to
// deregister a handler.
type HandlerID uint64

type handlerEntry struct {
	id      HandlerID
	handler func(Event)
}

// EventBus is the single-threaded, ordered fan-out of §4.6. Dispatch
// happens on one dedicated goroutine so handlers never run
// concurrently with each other and never run on the Worker Bus's I/O
// goroutines. Listener registration/deregistration mutates a plain
// slice guarded by a mutex; each dispatch clones the slice before
// calling handlers so a handler may deregister itself or another
// handler mid-dispatch (snapshot semantics, §4.6).
type EventBus struct {
	mu       sync.Mutex
	handlers []handlerEntry
	nextID   HandlerID

	events chan Event
	done   chan struct{}

	routerOnce sync.Once
}

func NewEventBus() *EventBus {
	b := &EventBus{
		events: make(chan Event, 1024),
		done:   make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *EventBus) run() {
	for {
		select {
		case ev := <-b.events:
			b.dispatch(ev)
		case <-b.done:
			return
		}
	}
}

func (b *EventBus) dispatch(ev Event) {
	b.mu.Lock()
	snapshot := make([]handlerEntry, len(b.handlers))
	copy(snapshot, b.handlers)
	b.mu.Unlock()

	for _, h := range snapshot {
		h.handler(ev)
	}
}

// On registers a handler and returns an id usable with Off. Handlers
// observe events in the order Emit enqueued them. Worker notifications
// are enqueued in arrival order by the single goroutine that reads
// them; resource operations and close paths also call Emit from their
// own goroutines.
func (b *EventBus) On(handler func(Event)) HandlerID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.handlers = append(b.handlers, handlerEntry{id: id, handler: handler})
	return id
}

func (b *EventBus) Off(id HandlerID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, h := range b.handlers {
		if h.id == id {
			b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
			return
		}
	}
}

// Emit enqueues an event for ordered dispatch. Safe to call from any
// goroutine; never blocks the caller on handler execution.
func (b *EventBus) Emit(ev Event) {
	select {
	case b.events <- ev:
	case <-b.done:
	}
}

// Close stops the dispatch goroutine. Safe to call once at process
// shutdown.
func (b *EventBus) Close() {
	close(b.done)
}

// notificationHandler is implemented by resource types that react to
// raw worker notifications (score, tuple, state changes, ...)
// targeting their own uuid (§4.1 Inbound events, §4.6).
type notificationHandler interface {
	handleWorkerNotification(event string, data []byte)
}

// installWorkerNotificationRouter registers, at most once per bus, the
// single handler that turns "worker:<event>" bus events (emitted by
// Worker.dispatchWorkerEvent off the I/O goroutine) into calls on the
// target resource's handleWorkerNotification, still on this bus's own
// single dispatch goroutine (§4.1 Concurrency contract: "handlers
// never run on the I/O thread").
func (b *EventBus) installWorkerNotificationRouter(registry *Registry) {
	b.routerOnce.Do(func() {
		b.On(func(ev Event) {
			name := string(ev.Kind)
			if !strings.HasPrefix(name, "worker:") {
				return
			}
			raw, ok := ev.Data.(rawWorkerEvent)
			if !ok {
				return
			}
			res, ok := registry.LockedLookupByLocalID(ev.ResourceID)
			if !ok {
				return
			}
			defer res.Unref()
			if nh, ok := res.(notificationHandler); ok {
				nh.handleWorkerNotification(strings.TrimPrefix(name, "worker:"), raw.raw)
			}
		})
	})
}
