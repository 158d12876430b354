package sfu

// This file holds the *negotiated* RTP parameter shapes (§3, §4.4.3,
// §4.4.4) as distinct from the *capability* shapes in
// rtp_capabilities.go. Capabilities describe what an endpoint can do;
// parameters describe what a specific Producer/Consumer actually does.

// RtcpFeedback is a single "type[/parameter]" RTCP feedback entry,
// shared by capability and parameter codecs.
type RtcpFeedback struct {
	Type      string `json:"type"`
	Parameter string `json:"parameter,omitempty"`
}

// RtpCodecParameters describes one negotiated codec within a Producer
// or Consumer's rtp_parameters.
type RtpCodecParameters struct {
	MimeType     string         `json:"mimeType"`
	PayloadType  int            `json:"payloadType"`
	ClockRate    int            `json:"clockRate"`
	Channels     int            `json:"channels,omitempty"`
	Parameters   H              `json:"parameters,omitempty"`
	RtcpFeedback []RtcpFeedback `json:"rtcpFeedback,omitempty"`
}

// RtpHeaderExtensionParameters is a negotiated header extension: a uri
// bound to a concrete wire id (as opposed to RtpHeaderExtension's
// preferredId in the capability table).
type RtpHeaderExtensionParameters struct {
	Uri        string `json:"uri"`
	Id         int    `json:"id"`
	Encrypt    bool   `json:"encrypt,omitempty"`
	Parameters H      `json:"parameters,omitempty"`
}

// RtpEncodingParameters is one encoding layer of a Producer or
// Consumer (§4.4.4 steps 7-9).
type RtpEncodingParameters struct {
	Ssrc            uint32 `json:"ssrc,omitempty"`
	Rid             string `json:"rid,omitempty"`
	CodecPayloadType *int  `json:"codecPayloadType,omitempty"`
	Rtx             *struct {
		Ssrc uint32 `json:"ssrc"`
	} `json:"rtx,omitempty"`
	Dtx             bool   `json:"dtx,omitempty"`
	ScalabilityMode string `json:"scalabilityMode,omitempty"`
	MaxBitrate      int    `json:"maxBitrate,omitempty"`
}

// RtcpParameters carries the cname/reducedSize/mux block copied
// verbatim between consumable and consumer parameters (§4.4.4 step 10).
type RtcpParameters struct {
	Cname       string `json:"cname,omitempty"`
	ReducedSize bool   `json:"reducedSize,omitempty"`
	Mux         bool   `json:"mux,omitempty"`
}

// RtpParameters is the full negotiated parameter set attached to a
// Producer, a Consumer, or cached on the Router as a Producer's
// "consumable" projection (§3 Producer attributes, §4.4.4 step 1).
type RtpParameters struct {
	Mid              string                         `json:"mid,omitempty"`
	Codecs           []RtpCodecParameters           `json:"codecs"`
	HeaderExtensions []RtpHeaderExtensionParameters `json:"headerExtensions,omitempty"`
	Encodings        []RtpEncodingParameters        `json:"encodings,omitempty"`
	Rtcp             RtcpParameters                 `json:"rtcp,omitempty"`
}

// ProducerType distinguishes how a Producer's encodings map onto
// Consumers (§3 Producer attributes "producer_type").
type ProducerType string

const (
	ProducerTypeSimple    ProducerType = "simple"
	ProducerTypeSimulcast ProducerType = "simulcast"
	ProducerTypeSvc       ProducerType = "svc"
)

// ConsumerType adds "pipe" to ProducerType for the consumer side
// (§4.4.3 ConsumerType table).
type ConsumerType string

const (
	ConsumerTypeSimple    ConsumerType = "simple"
	ConsumerTypeSimulcast ConsumerType = "simulcast"
	ConsumerTypeSvc       ConsumerType = "svc"
	ConsumerTypePipe      ConsumerType = "pipe"
)

// ConsumerLayers is a spatial/temporal layer selector (§4.4.4 Consumer
// operations: set_preferred_layers).
type ConsumerLayers struct {
	SpatialLayer  int  `json:"spatialLayer"`
	TemporalLayer *int `json:"temporalLayer,omitempty"`
}

// ConsumerScore mirrors the worker's combined own/producer score
// reply (§3 Consumer key attributes "score").
type ConsumerScore struct {
	Score          int   `json:"score"`
	ProducerScore  int   `json:"producerScore"`
	ProducerScores []int `json:"producerScores,omitempty"`
}

// ProducerScore is one encoding's score, as reported by the worker for
// a Producer (§4.4.3 ProducerStat/score).
type ProducerScore struct {
	Ssrc  uint32 `json:"ssrc"`
	Rid   string `json:"rid,omitempty"`
	Score int    `json:"score"`
}

// SctpStreamParameters describes one Data Producer/Consumer's SCTP
// stream binding (§4.4.3 Data Producer, §3 Transport attributes).
type SctpStreamParameters struct {
	StreamId          int  `json:"streamId"`
	Ordered           *bool `json:"ordered,omitempty"`
	MaxPacketLifeTime int  `json:"maxPacketLifeTime,omitempty"`
	MaxRetransmits    int  `json:"maxRetransmits,omitempty"`
}
