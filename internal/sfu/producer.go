package sfu

import (
	"encoding/json"
	"sync"
)

// ProducerOptions are the caller-supplied inputs to transport.Produce
// (§4.4.3 Creation).
type ProducerOptions struct {
	Kind          MediaKind
	RtpParameters RtpParameters
	Paused        bool
}

// Producer is an inbound media stream attached to a Transport (§3,
// §4.4.3). Every live Consumer derived from it is tracked here so
// closing the Producer can cascade to them first (invariant 6).
type Producer struct {
	resourceBase
	logger   Logger
	internal internalData
	transport *Transport
	channel  *Channel
	bus      *EventBus
	registry *Registry

	kind                    MediaKind
	rtpParameters           RtpParameters
	consumableRtpParameters RtpParameters
	producerType            ProducerType

	mu              sync.Mutex
	paused          bool
	score           []ProducerScore
	traceEventMask  map[string]bool
	consumers       []*Consumer
}

func newProducer(transport *Transport, internal internalData, kind MediaKind, rtpParameters RtpParameters, producerType ProducerType, paused bool) *Producer {
	return &Producer{
		resourceBase:            newResourceBase(internal.ProducerId),
		logger:                  NewLogger("Producer"),
		internal:                internal,
		transport:               transport,
		channel:                 transport.channel,
		bus:                     transport.bus,
		registry:                transport.registry,
		kind:                    kind,
		rtpParameters:           rtpParameters,
		consumableRtpParameters: buildConsumableRtpParameters(kind, rtpParameters),
		producerType:            producerType,
		paused:                  paused,
		traceEventMask:          map[string]bool{},
	}
}

// buildConsumableRtpParameters computes the Router-internal
// consumable_rtp_parameters used by every Consumer of this Producer
// (§4.4.3 Creation). Codecs, header extensions and rtcp are carried
// through verbatim; encodings keep their ssrc/rid/scalabilityMode
// since that is exactly what Consumer synthesis (§4.4.4 step 1) reads.
func buildConsumableRtpParameters(kind MediaKind, rp RtpParameters) RtpParameters {
	out := RtpParameters{
		HeaderExtensions: append([]RtpHeaderExtensionParameters(nil), rp.HeaderExtensions...),
		Encodings:        append([]RtpEncodingParameters(nil), rp.Encodings...),
		Rtcp:             rp.Rtcp,
	}
	out.Codecs = append([]RtpCodecParameters(nil), rp.Codecs...)
	return out
}

func (p *Producer) Id() string                 { return p.internal.ProducerId }
func (p *Producer) Kind() MediaKind            { return p.kind }
func (p *Producer) Transport() *Transport      { return p.transport }
func (p *Producer) RtpParameters() RtpParameters { return p.rtpParameters }
func (p *Producer) ConsumableRtpParameters() RtpParameters {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.consumableRtpParameters
}
func (p *Producer) ProducerType() ProducerType { return p.producerType }

func (p *Producer) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Producer) addConsumer(c *Consumer) {
	p.mu.Lock()
	p.consumers = append(p.consumers, c)
	p.mu.Unlock()
}

func (p *Producer) removeConsumer(c *Consumer) {
	p.mu.Lock()
	for i, cur := range p.consumers {
		if cur == c {
			p.consumers = append(p.consumers[:i], p.consumers[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
}

func (p *Producer) Dump() DumpResult {
	resp := p.channel.Request("producer.dump", p.internal)
	return NewDumpResult(resp.Data(), resp.Err())
}

func (p *Producer) GetStats() DumpResult {
	resp := p.channel.Request("producer.getStats", p.internal)
	return NewDumpResult(resp.Data(), resp.Err())
}

// Pause is idempotent and emits PRODUCER_PAUSE only on state change
// (§4.4.3 Operations, §8 testable property).
func (p *Producer) Pause() error {
	p.mu.Lock()
	if p.paused {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.channel.Request("producer.pause", p.internal).Err(); err != nil {
		return err
	}

	p.mu.Lock()
	changed := !p.paused
	p.paused = true
	p.mu.Unlock()
	if changed {
		p.bus.Emit(Event{Kind: EventProducerPause, ResourceID: p.LocalID(), Data: p})
	}
	return nil
}

func (p *Producer) Resume() error {
	p.mu.Lock()
	if !p.paused {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.channel.Request("producer.resume", p.internal).Err(); err != nil {
		return err
	}

	p.mu.Lock()
	changed := p.paused
	p.paused = false
	p.mu.Unlock()
	if changed {
		p.bus.Emit(Event{Kind: EventProducerResume, ResourceID: p.LocalID(), Data: p})
	}
	return nil
}

func (p *Producer) EnableTraceEvent(types []string) error {
	return p.channel.Request("producer.enableTraceEvent", p.internal, H{"types": types}).Err()
}

// Close cascades per invariant 6: every bound Consumer is closed
// before the Producer itself (scenario 3).
func (p *Producer) Close() {
	if !p.markClosePending() {
		return
	}
	p.logger.Debug("close()")

	p.mu.Lock()
	consumers := reverseConsumers(p.consumers)
	p.consumers = nil
	p.mu.Unlock()

	for _, c := range consumers {
		c.producerClosed()
	}

	p.channel.Request("producer.close", p.internal)
	p.registry.Remove(p)
	p.transport.removeProducer(p)
	p.bus.Emit(Event{Kind: EventProducerClosed, ResourceID: p.LocalID(), Data: p})
}

// transportClosed tears the Producer down as a side effect of its
// Transport closing; like Router.workerClosed, it skips the
// now-pointless producer.close command.
func (p *Producer) transportClosed() {
	if !p.markClosePending() {
		return
	}
	p.logger.Debug("transportClosed()")

	p.mu.Lock()
	consumers := reverseConsumers(p.consumers)
	p.consumers = nil
	p.mu.Unlock()

	for _, c := range consumers {
		c.producerClosed()
	}

	p.registry.Remove(p)
	p.bus.Emit(Event{Kind: EventProducerClosed, ResourceID: p.LocalID(), Data: p})
}

// applyScore is called by the Worker Bus dispatch path (worker.go)
// when a "score" event lands for this Producer's uuid.
func (p *Producer) applyScore(score []ProducerScore) {
	p.mu.Lock()
	p.score = score
	p.mu.Unlock()
	p.bus.Emit(Event{Kind: EventResourceScore, ResourceID: p.LocalID(), Data: score})
}

// handleWorkerNotification dispatches the worker-pushed events a
// Producer receives (§4.4.3, §4.6): score updates and, for video
// kinds, orientation changes reported by the RTP stream itself.
func (p *Producer) handleWorkerNotification(event string, data []byte) {
	switch event {
	case "score":
		var score []ProducerScore
		if json.Unmarshal(data, &score) != nil {
			return
		}
		p.applyScore(score)
	case "videoorientationchange":
		var orientation H
		if json.Unmarshal(data, &orientation) != nil {
			return
		}
		p.bus.Emit(Event{Kind: EventProducerVideoOrientationChange, ResourceID: p.LocalID(), Data: orientation})
	}
}
