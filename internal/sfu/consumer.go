package sfu

import (
	"encoding/json"
	"sync"
)

// Consumer is an outbound media stream derived from a Producer,
// carried over a Transport of the same Router (§3, §4.4.4). Its link
// to the source Producer is a back-reference kept alive by invariant
// 6 (the Producer outlives every Consumer bound to it).
type Consumer struct {
	resourceBase
	logger    Logger
	internal  internalData
	transport *Transport
	producer  *Producer
	channel   *Channel
	bus       *EventBus
	registry  *Registry

	kind          MediaKind
	rtpParameters RtpParameters
	consumerType  ConsumerType

	// resumeOnProducerResume implements the §4.4.4 "Consumer reaction
	// to producer events" optional behavior: also call Resume() when
	// the source Producer resumes, not just emit CONSUMER_RESUME.
	resumeOnProducerResume bool

	mu              sync.Mutex
	paused          bool
	producerPaused  bool
	priority        int
	score           ConsumerScore
	preferredLayers ConsumerLayers
	currentLayers   *ConsumerLayers

	producerEventHandler HandlerID
}

// newConsumer wires a Consumer onto the EventBus so it can observe its
// source Producer's pause/resume/close without the Worker Bus ever
// calling back into it directly (§4.4.4 "Consumer reaction to producer
// events").
func newConsumer(transport *Transport, producer *Producer, internal internalData, kind MediaKind, rtpParameters RtpParameters, consumerType ConsumerType, paused, producerPaused bool, preferredLayers ConsumerLayers, resumeOnProducerResume bool) *Consumer {
	c := &Consumer{
		resourceBase:           newResourceBase(internal.ConsumerId),
		logger:                 NewLogger("Consumer"),
		internal:               internal,
		transport:               transport,
		producer:                producer,
		channel:                 transport.channel,
		bus:                     transport.bus,
		registry:                transport.registry,
		kind:                    kind,
		rtpParameters:           rtpParameters,
		consumerType:            consumerType,
		paused:                  paused,
		producerPaused:          producerPaused,
		priority:                1,
		preferredLayers:         preferredLayers,
		resumeOnProducerResume:  resumeOnProducerResume,
	}

	producerID := producer.LocalID()
	c.producerEventHandler = transport.bus.On(func(ev Event) {
		if ev.ResourceID != producerID {
			return
		}
		switch ev.Kind {
		case EventProducerClosed:
			c.producerClosed()
		case EventProducerPause:
			c.onProducerPause()
		case EventProducerResume:
			c.onProducerResume()
		}
	})

	return c
}

func (c *Consumer) Id() string             { return c.internal.ConsumerId }
func (c *Consumer) Kind() MediaKind        { return c.kind }
func (c *Consumer) ProducerId() string     { return c.internal.ProducerId }
func (c *Consumer) Transport() *Transport  { return c.transport }
func (c *Consumer) Producer() *Producer    { return c.producer }
func (c *Consumer) ConsumerType() ConsumerType { return c.consumerType }
func (c *Consumer) RtpParameters() RtpParameters { return c.rtpParameters }

func (c *Consumer) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *Consumer) ProducerPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.producerPaused
}

func (c *Consumer) Dump() DumpResult {
	resp := c.channel.Request("consumer.dump", c.internal)
	return NewDumpResult(resp.Data(), resp.Err())
}

func (c *Consumer) GetStats() DumpResult {
	resp := c.channel.Request("consumer.getStats", c.internal)
	return NewDumpResult(resp.Data(), resp.Err())
}

func (c *Consumer) Pause() error {
	c.mu.Lock()
	if c.paused {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.channel.Request("consumer.pause", c.internal).Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
	c.bus.Emit(Event{Kind: EventConsumerPause, ResourceID: c.LocalID(), Data: c})
	return nil
}

func (c *Consumer) Resume() error {
	c.mu.Lock()
	if !c.paused {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.channel.Request("consumer.resume", c.internal).Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
	c.bus.Emit(Event{Kind: EventConsumerResume, ResourceID: c.LocalID(), Data: c})
	return nil
}

func (c *Consumer) SetPreferredLayers(layers ConsumerLayers) error {
	resp := c.channel.Request("consumer.setPreferredLayers", c.internal, layers)
	if err := resp.Err(); err != nil {
		return err
	}
	var out ConsumerLayers
	if err := resp.Unmarshal(&out); err != nil {
		return err
	}
	c.mu.Lock()
	c.preferredLayers = out
	c.mu.Unlock()
	return nil
}

// SetPriority clamps to a default of 1, per §4.4.4 Operations.
func (c *Consumer) SetPriority(priority int) error {
	if priority < 1 {
		priority = 1
	}
	resp := c.channel.Request("consumer.setPriority", c.internal, H{"priority": priority})
	if err := resp.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.priority = priority
	c.mu.Unlock()
	return nil
}

func (c *Consumer) RequestKeyFrame() error {
	return c.channel.Request("consumer.requestKeyFrame", c.internal).Err()
}

func (c *Consumer) EnableTraceEvent(types []string) error {
	return c.channel.Request("consumer.enableTraceEvent", c.internal, H{"types": types}).Err()
}

func (c *Consumer) applyScore(score ConsumerScore) {
	c.mu.Lock()
	c.score = score
	c.mu.Unlock()
	c.bus.Emit(Event{Kind: EventResourceScore, ResourceID: c.LocalID(), Data: score})
}

func (c *Consumer) applyLayersChange(layers ConsumerLayers) {
	c.mu.Lock()
	c.currentLayers = &layers
	c.mu.Unlock()
	c.bus.Emit(Event{Kind: EventConsumerLayersChange, ResourceID: c.LocalID(), Data: layers})
}

// handleWorkerNotification dispatches the worker-pushed events a
// Consumer receives (§4.4.4, §4.6): score and simulcast layer changes.
func (c *Consumer) handleWorkerNotification(event string, data []byte) {
	switch event {
	case "score":
		var score ConsumerScore
		if json.Unmarshal(data, &score) != nil {
			return
		}
		c.applyScore(score)
	case "layerschange":
		var layers ConsumerLayers
		if json.Unmarshal(data, &layers) != nil {
			return
		}
		c.applyLayersChange(layers)
	}
}

// onProducerPause implements the §4.4.4 producer-pause reaction: if
// the Consumer is not locally paused, it emits CONSUMER_PRODUCER_PAUSE.
func (c *Consumer) onProducerPause() {
	c.mu.Lock()
	if c.producerPaused {
		c.mu.Unlock()
		return
	}
	c.producerPaused = true
	locallyPaused := c.paused
	c.mu.Unlock()

	if !locallyPaused {
		c.bus.Emit(Event{Kind: EventConsumerProducerPause, ResourceID: c.LocalID(), Data: c})
	}
}

// onProducerResume implements the §4.4.4 producer-resume reaction: if
// the Consumer is not locally paused, it emits CONSUMER_PRODUCER_RESUME
// and, if resumeOnProducerResume is set, also calls Resume. Per the Open Question
// in §9, the emit is gated on the Consumer's own pause flag observed
// at emit time, matching the source.
func (c *Consumer) onProducerResume() {
	c.mu.Lock()
	if !c.producerPaused {
		c.mu.Unlock()
		return
	}
	c.producerPaused = false
	locallyPaused := c.paused
	resumeByProducer := c.resumeOnProducerResume
	c.mu.Unlock()

	if !locallyPaused {
		c.bus.Emit(Event{Kind: EventConsumerProducerResume, ResourceID: c.LocalID(), Data: c})
		if resumeByProducer {
			c.Resume()
		}
	}
}

// producerClosed cascades Producer close to this Consumer (invariant
// 6, §4.4.4 "Producer close -> Consumer close (cascade)").
func (c *Consumer) producerClosed() {
	if !c.markClosePending() {
		return
	}
	c.logger.Debug("producerClosed()")
	c.bus.Off(c.producerEventHandler)
	c.registry.Remove(c)
	c.bus.Emit(Event{Kind: EventConsumerClosed, ResourceID: c.LocalID(), Data: c})
}

func (c *Consumer) Close() {
	if !c.markClosePending() {
		return
	}
	c.logger.Debug("close()")
	c.bus.Off(c.producerEventHandler)
	c.channel.Request("consumer.close", c.internal)
	c.registry.Remove(c)
	c.transport.removeConsumer(c)
	c.producer.removeConsumer(c)
	c.bus.Emit(Event{Kind: EventConsumerClosed, ResourceID: c.LocalID(), Data: c})
}

func (c *Consumer) transportClosed() {
	if !c.markClosePending() {
		return
	}
	c.logger.Debug("transportClosed()")
	c.bus.Off(c.producerEventHandler)
	c.producer.removeConsumer(c)
	c.registry.Remove(c)
	c.bus.Emit(Event{Kind: EventConsumerClosed, ResourceID: c.LocalID(), Data: c})
}
