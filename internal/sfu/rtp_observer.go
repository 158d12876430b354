package sfu

import (
	"encoding/json"
	"sync"
)

// RtpObserverKind distinguishes the two kinds of §3/§4.4.5.
type RtpObserverKind string

const (
	RtpObserverKindAudioLevel    RtpObserverKind = "audiolevel"
	RtpObserverKindActiveSpeaker RtpObserverKind = "activespeaker"
)

// AudioLevelObserverOptions configures an AudioLevel observer
// (§4.4.5: "created on a Router with {maxEntries, threshold,
// intervalMs}").
type AudioLevelObserverOptions struct {
	MaxEntries int
	Threshold  int
	IntervalMs int
}

// VolumeEntry is one element of a "volumes" event payload (§4.4.5,
// §4.6).
type VolumeEntry struct {
	ProducerId string `json:"producerId"`
	Volume     int    `json:"volume"`
}

// RtpObserver is the common Router-scoped aggregator base for the
// AudioLevel and ActiveSpeaker kinds (§3 RtpObserver row, §4.4.5).
type RtpObserver struct {
	resourceBase
	logger   Logger
	internal internalData
	router   *Router
	channel  *Channel
	bus      *EventBus
	registry *Registry
	kind     RtpObserverKind

	mu        sync.Mutex
	paused    bool
	producers map[string]bool // bound producer uuids
}

func newRtpObserver(router *Router, kind RtpObserverKind) *RtpObserver {
	return &RtpObserver{
		resourceBase: newResourceBase(newUUID()),
		logger:       NewLogger("RtpObserver"),
		internal:     internalData{RouterId: router.internal.RouterId, RtpObserverId: ""},
		router:       router,
		channel:      router.channel,
		bus:          router.bus,
		registry:     router.registry,
		kind:         kind,
		producers:    make(map[string]bool),
	}
}

func (o *RtpObserver) Id() string              { return o.uuid }
func (o *RtpObserver) Kind() RtpObserverKind    { return o.kind }
func (o *RtpObserver) Paused() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.paused
}

func (o *RtpObserver) internalWithObserverId() internalData {
	id := o.internal
	id.RtpObserverId = o.uuid
	return id
}

func (o *RtpObserver) Pause() error {
	if err := o.channel.Request("rtpObserver.pause", o.internalWithObserverId()).Err(); err != nil {
		return err
	}
	o.mu.Lock()
	o.paused = true
	o.mu.Unlock()
	o.bus.Emit(Event{Kind: EventObserverPaused, ResourceID: o.LocalID(), Data: o})
	return nil
}

func (o *RtpObserver) Resume() error {
	if err := o.channel.Request("rtpObserver.resume", o.internalWithObserverId()).Err(); err != nil {
		return err
	}
	o.mu.Lock()
	o.paused = false
	o.mu.Unlock()
	o.bus.Emit(Event{Kind: EventObserverResumed, ResourceID: o.LocalID(), Data: o})
	return nil
}

// AddProducer binds a media Producer to this observer (§4.4.5
// "producers may be added/removed").
func (o *RtpObserver) AddProducer(producer *Producer) error {
	if err := o.channel.Request("rtpObserver.addProducer", o.internalWithObserverId(), H{"producerId": producer.Id()}).Err(); err != nil {
		return err
	}
	o.mu.Lock()
	o.producers[producer.Id()] = true
	o.mu.Unlock()
	return nil
}

func (o *RtpObserver) RemoveProducer(producer *Producer) error {
	if err := o.channel.Request("rtpObserver.removeProducer", o.internalWithObserverId(), H{"producerId": producer.Id()}).Err(); err != nil {
		return err
	}
	o.mu.Lock()
	delete(o.producers, producer.Id())
	o.mu.Unlock()
	return nil
}

func (o *RtpObserver) Close() {
	if !o.markClosePending() {
		return
	}
	o.logger.Debug("close()")
	o.channel.Request("rtpObserver.close", o.internalWithObserverId())
	o.registry.Remove(o)
	o.router.removeObserver(o)
	o.bus.Emit(Event{Kind: EventObserverClosed, ResourceID: o.LocalID(), Data: o})
}

func (o *RtpObserver) routerClosed() {
	if !o.markClosePending() {
		return
	}
	o.logger.Debug("routerClosed()")
	o.registry.Remove(o)
	o.bus.Emit(Event{Kind: EventObserverClosed, ResourceID: o.LocalID(), Data: o})
}

// CreateAudioLevelObserver implements router.createAudioLevelObserver
// (§4.4.5, §6.1).
func (r *Router) CreateAudioLevelObserver(opts AudioLevelObserverOptions) (*RtpObserver, error) {
	o := newRtpObserver(r, RtpObserverKindAudioLevel)
	o.internal.RtpObserverId = o.uuid

	resp := r.channel.Request("router.createAudioLevelObserver", o.internalWithObserverId(), H{
		"maxEntries": opts.MaxEntries,
		"threshold":  opts.Threshold,
		"interval":   opts.IntervalMs,
	})
	if err := resp.Err(); err != nil {
		return nil, err
	}

	r.registry.Add(o)
	r.addObserver(o)
	r.bus.Emit(Event{Kind: EventObserverCreated, ResourceID: o.LocalID(), Data: o})
	return o, nil
}

// DominantSpeaker is the payload of an ActiveSpeaker observer's
// "dominantspeaker" event (§4.4.5, §4.6).
type DominantSpeaker struct {
	ProducerId string `json:"producerId"`
}

// handleWorkerNotification dispatches the worker-pushed events an
// RtpObserver receives: AudioLevel emits volumes/silence, ActiveSpeaker
// emits dominantspeaker (§4.4.5, §4.6).
func (o *RtpObserver) handleWorkerNotification(event string, data []byte) {
	switch event {
	case "volumes":
		var volumes []VolumeEntry
		if json.Unmarshal(data, &volumes) != nil {
			return
		}
		o.bus.Emit(Event{Kind: EventAudioObserverVolumes, ResourceID: o.LocalID(), Data: volumes})
	case "silence":
		o.bus.Emit(Event{Kind: EventAudioObserverSilence, ResourceID: o.LocalID(), Data: nil})
	case "dominantspeaker":
		var speaker DominantSpeaker
		if json.Unmarshal(data, &speaker) != nil {
			return
		}
		o.bus.Emit(Event{Kind: EventActiveSpeaker, ResourceID: o.LocalID(), Data: speaker})
	}
}

// CreateActiveSpeakerObserver implements
// router.createActiveSpeakerObserver (§4.4.5, §6.1).
func (r *Router) CreateActiveSpeakerObserver() (*RtpObserver, error) {
	o := newRtpObserver(r, RtpObserverKindActiveSpeaker)
	o.internal.RtpObserverId = o.uuid

	resp := r.channel.Request("router.createActiveSpeakerObserver", o.internalWithObserverId(), H{})
	if err := resp.Err(); err != nil {
		return nil, err
	}

	r.registry.Add(o)
	r.addObserver(o)
	r.bus.Emit(Event{Kind: EventObserverCreated, ResourceID: o.LocalID(), Data: o})
	return o, nil
}
