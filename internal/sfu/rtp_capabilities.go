package sfu

import (
	"strconv"
	"strings"

	"github.com/jinzhu/copier"
)

// RtpCodecCapability is one codec entry of a capability table, either
// the shared "available capabilities" table or a per-process "router
// options" override (§4.5).
type RtpCodecCapability struct {
	Kind                 MediaKind      `json:"kind"`
	MimeType             string         `json:"mimeType"`
	PreferredPayloadType int            `json:"preferredPayloadType,omitempty"`
	ClockRate            int            `json:"clockRate"`
	Channels             int            `json:"channels,omitempty"`
	Parameters           H              `json:"parameters,omitempty"`
	RtcpFeedback         []RtcpFeedback `json:"rtcpFeedback,omitempty"`
}

// RtpHeaderExtension is one header-extension capability entry.
type RtpHeaderExtension struct {
	Kind             MediaKind `json:"kind"`
	Uri              string    `json:"uri"`
	PreferredId      int       `json:"preferredId"`
	PreferredEncrypt bool      `json:"preferredEncrypt,omitempty"`
}

// RtpCapabilities is the "kind -> codec list, header extensions" shape
// shared by both tables in §4.5 and by a Router's negotiated
// rtp_capabilities (§3 Router key attributes).
type RtpCapabilities struct {
	Codecs           []RtpCodecCapability `json:"codecs"`
	HeaderExtensions []RtpHeaderExtension `json:"headerExtensions,omitempty"`
}

// availableRtpCapabilities is the shared "available capabilities"
// table (§4.5), grounded on the teacher's
// mediasoup/rtp_capabilities.go supportedRtpCapabilities table, with
// the h264profile dependency dropped: packetization-mode/level
// asymmetry are plain Parameters entries like every other codec
// parameter, so no separate H264-specific Go type is needed for them
// (see DESIGN.md).
var availableRtpCapabilities = RtpCapabilities{
	Codecs: []RtpCodecCapability{
		{Kind: MediaKindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
		{Kind: MediaKindAudio, MimeType: "audio/PCMU", PreferredPayloadType: 0, ClockRate: 8000},
		{Kind: MediaKindAudio, MimeType: "audio/PCMA", PreferredPayloadType: 8, ClockRate: 8000},
		{Kind: MediaKindAudio, MimeType: "audio/ISAC", ClockRate: 32000},
		{Kind: MediaKindAudio, MimeType: "audio/ISAC", ClockRate: 16000},
		{Kind: MediaKindAudio, MimeType: "audio/G722", PreferredPayloadType: 9, ClockRate: 8000},
		{Kind: MediaKindAudio, MimeType: "audio/iLBC", ClockRate: 8000},
		{Kind: MediaKindAudio, MimeType: "audio/SILK", ClockRate: 24000},
		{Kind: MediaKindAudio, MimeType: "audio/SILK", ClockRate: 16000},
		{Kind: MediaKindAudio, MimeType: "audio/SILK", ClockRate: 12000},
		{Kind: MediaKindAudio, MimeType: "audio/SILK", ClockRate: 8000},
		{Kind: MediaKindAudio, MimeType: "audio/CN", PreferredPayloadType: 13, ClockRate: 32000},
		{Kind: MediaKindAudio, MimeType: "audio/CN", PreferredPayloadType: 13, ClockRate: 16000},
		{Kind: MediaKindAudio, MimeType: "audio/CN", PreferredPayloadType: 13, ClockRate: 8000},
		{Kind: MediaKindAudio, MimeType: "audio/telephone-event", ClockRate: 48000},
		{Kind: MediaKindAudio, MimeType: "audio/telephone-event", ClockRate: 32000},
		{Kind: MediaKindAudio, MimeType: "audio/telephone-event", ClockRate: 16000},
		{Kind: MediaKindAudio, MimeType: "audio/telephone-event", ClockRate: 8000},
		{
			Kind: MediaKindVideo, MimeType: "video/VP8", ClockRate: 90000,
			RtcpFeedback: standardVideoFeedback(),
		},
		{
			Kind: MediaKindVideo, MimeType: "video/VP9", ClockRate: 90000,
			RtcpFeedback: standardVideoFeedback(),
		},
		{
			Kind: MediaKindVideo, MimeType: "video/H264", ClockRate: 90000,
			Parameters:   H{"packetization-mode": 1, "level-asymmetry-allowed": 1},
			RtcpFeedback: standardVideoFeedback(),
		},
		{
			Kind: MediaKindVideo, MimeType: "video/H264", ClockRate: 90000,
			Parameters:   H{"packetization-mode": 0, "level-asymmetry-allowed": 1},
			RtcpFeedback: standardVideoFeedback(),
		},
		{
			Kind: MediaKindVideo, MimeType: "video/H265", ClockRate: 90000,
			Parameters:   H{"packetization-mode": 1, "level-asymmetry-allowed": 1},
			RtcpFeedback: standardVideoFeedback(),
		},
	},
	HeaderExtensions: []RtpHeaderExtension{
		{Kind: MediaKindAudio, Uri: "urn:ietf:params:rtp-hdrext:ssrc-audio-level", PreferredId: 1},
		{Kind: MediaKindVideo, Uri: "urn:ietf:params:rtp-hdrext:toffset", PreferredId: 2},
		{Kind: MediaKindAudio, Uri: "http://www.webrtc.org/experiments/rtp-hdrext/abs-send-time", PreferredId: 3},
		{Kind: MediaKindVideo, Uri: "http://www.webrtc.org/experiments/rtp-hdrext/abs-send-time", PreferredId: 3},
		{Kind: MediaKindVideo, Uri: "http://www.ietf.org/id/draft-holmer-rmcat-transport-wide-cc-extensions-01", PreferredId: 11},
		{Kind: MediaKindVideo, Uri: "urn:3gpp:video-orientation", PreferredId: 4},
		{Kind: MediaKindAudio, Uri: "urn:ietf:params:rtp-hdrext:sdes:mid", PreferredId: 5},
		{Kind: MediaKindVideo, Uri: "urn:ietf:params:rtp-hdrext:sdes:mid", PreferredId: 5},
		{Kind: MediaKindVideo, Uri: "urn:ietf:params:rtp-hdrext:sdes:rtp-stream-id", PreferredId: 6},
		{Kind: MediaKindVideo, Uri: "urn:ietf:params:rtp-hdrext:sdes:repaired-rtp-stream-id", PreferredId: 7},
	},
}

func standardVideoFeedback() []RtcpFeedback {
	return []RtcpFeedback{
		{Type: "nack"},
		{Type: "nack", Parameter: "pli"},
		{Type: "ccm", Parameter: "fir"},
		{Type: "goog-remb"},
	}
}

// GetAvailableRtpCapabilities returns a deep copy of the shared
// available-capabilities table (§4.5), so callers may freely mutate
// their copy.
func GetAvailableRtpCapabilities() RtpCapabilities {
	var out RtpCapabilities
	copier.CopyWithOption(&out, &availableRtpCapabilities, copier.Option{DeepCopy: true})
	return out
}

// payloadTypePool is the fixed initial dynamic-payload-type pool of
// §4.5: "[100..127, 96..99]".
func payloadTypePool() []int {
	pool := make([]int, 0, 32)
	for pt := 100; pt <= 127; pt++ {
		pool = append(pool, pt)
	}
	for pt := 96; pt <= 99; pt++ {
		pool = append(pool, pt)
	}
	return pool
}

// codecsMatch implements the §4.5 codec matching predicate, shared by
// router capability build and consumer parameter synthesis:
//   - mimeType compares equal case-insensitively
//   - clockRate numerically equals
//   - channels (audio only) equal, defaulting to 1
//   - for video/h264, integer parameters.packetization-mode equal,
//     defaulting to 0
func codecsMatch(a mimeClockChannelParams, b mimeClockChannelParams) bool {
	if !strings.EqualFold(a.mimeType(), b.mimeType()) {
		return false
	}
	if a.clockRate() != b.clockRate() {
		return false
	}
	if strings.HasPrefix(strings.ToLower(a.mimeType()), "audio/") {
		ca, cb := a.channels(), b.channels()
		if ca == 0 {
			ca = 1
		}
		if cb == 0 {
			cb = 1
		}
		if ca != cb {
			return false
		}
	}
	if strings.EqualFold(a.mimeType(), "video/h264") {
		if packetizationMode(a.parameters()) != packetizationMode(b.parameters()) {
			return false
		}
	}
	return true
}

// mimeClockChannelParams abstracts over RtpCodecCapability and
// RtpCodecParameters so codecsMatch can compare either combination
// (capability-vs-capability in router build, capability-vs-parameters
// in consumer synthesis).
type mimeClockChannelParams interface {
	mimeType() string
	clockRate() int
	channels() int
	parameters() H
}

func (c RtpCodecCapability) mimeType() string { return c.MimeType }
func (c RtpCodecCapability) clockRate() int   { return c.ClockRate }
func (c RtpCodecCapability) channels() int    { return c.Channels }
func (c RtpCodecCapability) parameters() H    { return c.Parameters }

func (c RtpCodecParameters) mimeType() string { return c.MimeType }
func (c RtpCodecParameters) clockRate() int   { return c.ClockRate }
func (c RtpCodecParameters) channels() int    { return c.Channels }
func (c RtpCodecParameters) parameters() H    { return c.Parameters }

// packetizationMode extracts parameters["packetization-mode"] as an
// int, defaulting to 0 per §4.5/§4.4.4 step 3.
func packetizationMode(params H) int {
	if params == nil {
		return 0
	}
	v, ok := params["packetization-mode"]
	if !ok {
		return 0
	}
	return toInt(v)
}

// toInt coerces the handful of numeric JSON representations
// (float64 from encoding/json, int from Go-constructed literals,
// string from worst-case caller input) into an int, defaulting to 0.
func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}

// mergeCodecOverride deep-merges a user (router-options) codec over a
// cloned available codec: any non-zero user field replaces the
// available one, matching "clone it, deep-merge the user codec over
// it" (§4.5 Router capability build).
func mergeCodecOverride(base RtpCodecCapability, override RtpCodecCapability) RtpCodecCapability {
	out := base
	if override.PreferredPayloadType != 0 {
		out.PreferredPayloadType = override.PreferredPayloadType
	}
	if override.Parameters != nil {
		merged := H{}
		for k, v := range base.Parameters {
			merged[k] = v
		}
		for k, v := range override.Parameters {
			merged[k] = v
		}
		out.Parameters = merged
	}
	if len(override.RtcpFeedback) > 0 {
		out.RtcpFeedback = override.RtcpFeedback
	}
	return out
}

// GenerateRouterRtpCapabilities builds a Router's negotiated
// rtp_capabilities from the caller-supplied media codec list (the
// "user codecs" of §4.5 Router capability build), matched against the
// shared available-capabilities table.
func GenerateRouterRtpCapabilities(mediaCodecs []RtpCodecCapability) (RtpCapabilities, error) {
	available := GetAvailableRtpCapabilities()
	pool := payloadTypePool()
	poolIdx := 0
	used := map[int]bool{}

	takeNextPT := func() (int, error) {
		for poolIdx < len(pool) {
			pt := pool[poolIdx]
			poolIdx++
			if !used[pt] {
				used[pt] = true
				return pt, nil
			}
		}
		return 0, NewError(ErrTooManyDynamicPayloads, "payload type pool exhausted")
	}

	var caps RtpCapabilities
	caps.HeaderExtensions = append(caps.HeaderExtensions, available.HeaderExtensions...)

	for _, userCodec := range mediaCodecs {
		var matched *RtpCodecCapability
		for i := range available.Codecs {
			if codecsMatch(available.Codecs[i], userCodec) {
				matched = &available.Codecs[i]
				break
			}
		}
		if matched == nil {
			return RtpCapabilities{}, NewErrorf(ErrInvalidArgs, "no matching available codec for %s", userCodec.MimeType)
		}

		codec := mergeCodecOverride(*matched, userCodec)
		codec.Kind = matched.Kind
		codec.MimeType = matched.MimeType
		codec.ClockRate = matched.ClockRate
		if codec.Channels == 0 {
			codec.Channels = matched.Channels
		}

		var pt int
		var err error
		if userCodec.PreferredPayloadType != 0 {
			pt = userCodec.PreferredPayloadType
			used[pt] = true
		} else {
			pt, err = takeNextPT()
			if err != nil {
				return RtpCapabilities{}, err
			}
		}
		codec.PreferredPayloadType = pt
		caps.Codecs = append(caps.Codecs, codec)

		if codec.Kind == MediaKindVideo {
			rtxPT, err := takeNextPT()
			if err != nil {
				return RtpCapabilities{}, err
			}
			caps.Codecs = append(caps.Codecs, RtpCodecCapability{
				Kind:                 MediaKindVideo,
				MimeType:             "video/rtx",
				ClockRate:            codec.ClockRate,
				PreferredPayloadType: rtxPT,
				Parameters:           H{"apt": pt},
			})
		}
	}

	return caps, nil
}
