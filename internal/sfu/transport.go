package sfu

import (
	"encoding/json"
	"fmt"
	"sync"
)

// TransportKind is the tagged-variant discriminator of §3 ("Transport{
// WebRTC,Plain,Pipe,Direct}"). Kind-specific behavior (Connect,
// restart_ice, ...) lives in transport_<kind>.go; this file holds the
// state and operations common to every kind (§4.4.2 "Common state").
type TransportKind string

const (
	TransportKindWebRTC TransportKind = "webrtc"
	TransportKindPlain  TransportKind = "plain"
	TransportKindPipe   TransportKind = "pipe"
	TransportKindDirect TransportKind = "direct"
)

// maxMid is where next_mid wraps with a warning (§4.4.2 Tie-breaks).
const maxMid = 100_000_000

// transportParams are the dependencies common to every Transport kind.
type transportParams struct {
	internal internalData
	router   *Router
	channel  *Channel
	payload  *PayloadChannel
	bus      *EventBus
	registry *Registry
	kind     TransportKind
}

// Transport is the common base embedded by WebRtcTransport,
// PlainTransport, PipeTransport and DirectTransport. It owns Producers
// and Consumers (§3 Transport children), the next_mid counter, and the
// SCTP stream-id bitset (§4.4.2).
type Transport struct {
	resourceBase
	logger   Logger
	internal internalData
	router   *Router
	channel  *Channel
	payload  *PayloadChannel
	bus      *EventBus
	registry *Registry
	kind     TransportKind

	mu            sync.Mutex
	nextMid       int
	streamMaxSlots int
	streamSlots    []bool
	streamNextId   int
	producers      []*Producer
	dataProducers  []*DataProducer
	consumers      []*Consumer
	dataConsumers  []*DataConsumer

	iceState         string
	dtlsState        string
	sctpState        string
	tuple            H
	rtcpTuple        H
	iceSelectedTuple H
}

func newTransportBase(p transportParams) Transport {
	return Transport{
		resourceBase: newResourceBase(p.internal.TransportId),
		logger:       NewLogger("Transport"),
		internal:     p.internal,
		router:       p.router,
		channel:      p.channel,
		payload:      p.payload,
		bus:          p.bus,
		registry:     p.registry,
		kind:         p.kind,
	}
}

func (t *Transport) Id() string          { return t.internal.TransportId }
func (t *Transport) Kind() TransportKind { return t.kind }
func (t *Transport) Router() *Router     { return t.router }

// setStreamMaxSlots derives stream_max_slots from the worker's
// reported SCTP MIS (§4.4.2 "derived from /data/sctpParameters/MIS
// (bounded 0…4096, else protocol error)").
func (t *Transport) setStreamMaxSlots(mis int) error {
	if mis < 0 || mis > 4096 {
		return NewErrorf(ErrWorkerUnexpectedData, "sctp MIS out of bounds: %d", mis)
	}
	t.mu.Lock()
	t.streamMaxSlots = mis
	t.streamSlots = make([]bool, mis)
	t.mu.Unlock()
	return nil
}

// nextMidString assigns a fresh mid by formatting transport.next_mid++
// (§4.4.2 Tie-breaks, §4.4.4 step 11), wrapping at 100_000_000 with a
// warning.
func (t *Transport) nextMidString() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	mid := t.nextMid
	t.nextMid++
	if t.nextMid >= maxMid {
		t.logger.Warn("next_mid wrapped at %d", maxMid)
		t.nextMid = 0
	}
	return fmt.Sprintf("%d", mid)
}

// allocateStreamId scans the bitset starting at stream_next_id,
// returns the first free id and advances the cursor, or -1 if none
// are free (§4.4.2 Tie-breaks, §8 testable property).
func (t *Transport) allocateStreamId() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.streamMaxSlots == 0 {
		return -1
	}
	for i := 0; i < t.streamMaxSlots; i++ {
		idx := (t.streamNextId + i) % t.streamMaxSlots
		if !t.streamSlots[idx] {
			t.streamSlots[idx] = true
			t.streamNextId = (idx + 1) % t.streamMaxSlots
			return idx
		}
	}
	return -1
}

// releaseStreamId frees a previously allocated SCTP stream id
// (§4.4.2: "released only on teardown of the owning Transport").
func (t *Transport) releaseStreamId(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id >= 0 && id < len(t.streamSlots) {
		t.streamSlots[id] = false
	}
}

func (t *Transport) addProducer(p *Producer) {
	t.mu.Lock()
	t.producers = append(t.producers, p)
	t.mu.Unlock()
}

func (t *Transport) removeProducer(p *Producer) {
	t.mu.Lock()
	for i, cur := range t.producers {
		if cur == p {
			t.producers = append(t.producers[:i], t.producers[i+1:]...)
			break
		}
	}
	t.mu.Unlock()
}

func (t *Transport) addDataProducer(p *DataProducer) {
	t.mu.Lock()
	t.dataProducers = append(t.dataProducers, p)
	t.mu.Unlock()
}

func (t *Transport) removeDataProducer(p *DataProducer) {
	t.mu.Lock()
	for i, cur := range t.dataProducers {
		if cur == p {
			t.dataProducers = append(t.dataProducers[:i], t.dataProducers[i+1:]...)
			break
		}
	}
	t.mu.Unlock()
}

func (t *Transport) addConsumer(c *Consumer) {
	t.mu.Lock()
	t.consumers = append(t.consumers, c)
	t.mu.Unlock()
}

func (t *Transport) removeConsumer(c *Consumer) {
	t.mu.Lock()
	for i, cur := range t.consumers {
		if cur == c {
			t.consumers = append(t.consumers[:i], t.consumers[i+1:]...)
			break
		}
	}
	t.mu.Unlock()
}

func (t *Transport) addDataConsumer(c *DataConsumer) {
	t.mu.Lock()
	t.dataConsumers = append(t.dataConsumers, c)
	t.mu.Unlock()
}

func (t *Transport) removeDataConsumer(c *DataConsumer) {
	t.mu.Lock()
	for i, cur := range t.dataConsumers {
		if cur == c {
			t.dataConsumers = append(t.dataConsumers[:i], t.dataConsumers[i+1:]...)
			break
		}
	}
	t.mu.Unlock()
}

func (t *Transport) Dump() DumpResult {
	resp := t.channel.Request("transport.dump", t.internal)
	return NewDumpResult(resp.Data(), resp.Err())
}

func (t *Transport) GetStats() DumpResult {
	resp := t.channel.Request("transport.getStats", t.internal)
	return NewDumpResult(resp.Data(), resp.Err())
}

func (t *Transport) SetMaxIncomingBitrate(bitrate int) error {
	return t.channel.Request("transport.setMaxIncomingBitrate", t.internal, H{"bitrate": bitrate}).Err()
}

func (t *Transport) EnableTraceEvent(types []string) error {
	return t.channel.Request("transport.enableTraceEvent", t.internal, H{"types": types}).Err()
}

// closeDescendants closes every Producer/DataProducer/Consumer/
// DataConsumer owned by this Transport in reverse insertion order
// (invariant 5), without itself issuing transport.close (the caller
// does that once, after descendants are gone).
func (t *Transport) closeDescendants() {
	t.mu.Lock()
	consumers := reverseConsumers(t.consumers)
	dataConsumers := reverseDataConsumers(t.dataConsumers)
	producers := reverseProducers(t.producers)
	dataProducers := reverseDataProducers(t.dataProducers)
	t.consumers, t.dataConsumers, t.producers, t.dataProducers = nil, nil, nil, nil
	t.mu.Unlock()

	for _, c := range consumers {
		c.transportClosed()
	}
	for _, c := range dataConsumers {
		c.transportClosed()
	}
	for _, p := range producers {
		p.transportClosed()
	}
	for _, p := range dataProducers {
		p.transportClosed()
	}
}

// Close tears down the Transport: descendants first (invariant 5),
// then the transport.close command, then registry removal and the
// TRANSPORT_CLOSED event.
func (t *Transport) Close() {
	if !t.markClosePending() {
		return
	}
	t.logger.Debug("close()")
	t.closeDescendants()
	t.channel.Request("transport.close", t.internal)
	t.registry.Remove(t)
	t.router.removeTransport(t)
	t.bus.Emit(Event{Kind: EventTransportClosed, ResourceID: t.LocalID(), Data: t})
}

// routerClosed tears down the Transport when its Router is cascading
// close; unlike Close, it does not issue transport.close (the worker
// is already tearing the whole router down) but still emits
// TRANSPORT_CLOSED and closes descendants.
func (t *Transport) routerClosed() {
	if !t.markClosePending() {
		return
	}
	t.logger.Debug("routerClosed()")
	t.closeDescendants()
	t.registry.Remove(t)
	t.bus.Emit(Event{Kind: EventTransportClosed, ResourceID: t.LocalID(), Data: t})
}

func (t *Transport) IceState() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.iceState
}

func (t *Transport) DtlsState() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dtlsState
}

func (t *Transport) SctpState() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sctpState
}

func (t *Transport) IceSelectedTuple() H {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.iceSelectedTuple
}

// handleWorkerNotification applies the async, uncorrelated worker
// events a Transport can receive (§4.1 Inbound events, §4.4.2 Common
// state) and republishes each as its own typed Event Bus kind. Runs on
// the Event Bus's single dispatch goroutine (installed by
// installWorkerNotificationRouter), never on the Channel's I/O
// goroutine.
func (t *Transport) handleWorkerNotification(event string, data []byte) {
	switch event {
	case "icestatechange":
		var body struct {
			IceState string `json:"iceState"`
		}
		if json.Unmarshal(data, &body) != nil {
			return
		}
		t.mu.Lock()
		t.iceState = body.IceState
		t.mu.Unlock()
		t.bus.Emit(Event{Kind: EventTransportIceStateChange, ResourceID: t.LocalID(), Data: body.IceState})
	case "dtlsstatechange":
		var body struct {
			DtlsState string `json:"dtlsState"`
		}
		if json.Unmarshal(data, &body) != nil {
			return
		}
		t.mu.Lock()
		t.dtlsState = body.DtlsState
		t.mu.Unlock()
		t.bus.Emit(Event{Kind: EventTransportDtlsStateChange, ResourceID: t.LocalID(), Data: body.DtlsState})
	case "sctpstatechange":
		var body struct {
			SctpState string `json:"sctpState"`
		}
		if json.Unmarshal(data, &body) != nil {
			return
		}
		t.mu.Lock()
		t.sctpState = body.SctpState
		t.mu.Unlock()
		t.bus.Emit(Event{Kind: EventTransportSctpStateChange, ResourceID: t.LocalID(), Data: body.SctpState})
	case "tuple":
		var body struct {
			Tuple H `json:"tuple"`
		}
		if json.Unmarshal(data, &body) != nil {
			return
		}
		t.mu.Lock()
		t.tuple = body.Tuple
		t.mu.Unlock()
		t.bus.Emit(Event{Kind: EventTransportTuple, ResourceID: t.LocalID(), Data: body.Tuple})
	case "rtcptuple":
		var body struct {
			RtcpTuple H `json:"rtcpTuple"`
		}
		if json.Unmarshal(data, &body) != nil {
			return
		}
		t.mu.Lock()
		t.rtcpTuple = body.RtcpTuple
		t.mu.Unlock()
		t.bus.Emit(Event{Kind: EventTransportRtcpTuple, ResourceID: t.LocalID(), Data: body.RtcpTuple})
	case "iceselectedtuplechange":
		var body struct {
			IceSelectedTuple H `json:"iceSelectedTuple"`
		}
		if json.Unmarshal(data, &body) != nil {
			return
		}
		t.mu.Lock()
		t.iceSelectedTuple = body.IceSelectedTuple
		t.mu.Unlock()
		t.bus.Emit(Event{Kind: EventTransportIceSelectedTupleChange, ResourceID: t.LocalID(), Data: body.IceSelectedTuple})
	}
}

func reverseConsumers(in []*Consumer) []*Consumer {
	out := make([]*Consumer, len(in))
	copy(out, in)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func reverseDataConsumers(in []*DataConsumer) []*DataConsumer {
	out := make([]*DataConsumer, len(in))
	copy(out, in)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func reverseProducers(in []*Producer) []*Producer {
	out := make([]*Producer, len(in))
	copy(out, in)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func reverseDataProducers(in []*DataProducer) []*DataProducer {
	out := make([]*DataProducer, len(in))
	copy(out, in)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
