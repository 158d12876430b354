package sfu

import "testing"

// scenario 1 of §8: opus consumable + matching client caps (with an
// added rtcpFeedback entry) yields exactly one codec, the client's
// feedback, one in-range ssrc encoding.
func TestSynthesizeConsumerRtpParametersOpus(t *testing.T) {
	consumable := RtpParameters{
		Codecs: []RtpCodecParameters{
			{
				MimeType:    "audio/opus",
				PayloadType: 100,
				ClockRate:   48000,
				Channels:    2,
				Parameters:  H{"useinbandfec": 1, "usedtx": 1},
			},
		},
	}
	clientCaps := RtpCapabilities{
		Codecs: []RtpCodecCapability{
			{
				Kind: MediaKindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2,
				RtcpFeedback: []RtcpFeedback{{Type: "transport-cc"}},
			},
		},
	}

	result, err := synthesizeConsumerRtpParameters(consumable, clientCaps, ProducerTypeSimple)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.rtpParameters.Codecs) != 1 {
		t.Fatalf("expected exactly one codec, got %d", len(result.rtpParameters.Codecs))
	}
	codec := result.rtpParameters.Codecs[0]
	if codec.PayloadType != 100 || codec.Channels != 2 {
		t.Fatalf("codec = %+v, want payloadType=100 channels=2", codec)
	}
	if len(codec.RtcpFeedback) != 1 || codec.RtcpFeedback[0].Type != "transport-cc" {
		t.Fatalf("rtcpFeedback = %+v, want copied from client [{transport-cc}]", codec.RtcpFeedback)
	}
	if len(result.rtpParameters.Encodings) != 1 {
		t.Fatalf("expected exactly one output encoding, got %d", len(result.rtpParameters.Encodings))
	}
	ssrc := result.rtpParameters.Encodings[0].Ssrc
	if ssrc < 100_000_000 || ssrc >= 1_000_000_000 {
		t.Fatalf("ssrc %d out of range [1e8, 1e9)", ssrc)
	}
}

// scenario 2 of §8: consumable audio/opus against client caps offering
// only video/H264 fails with INVALID_RTP_PARAMETERS.
func TestSynthesizeConsumerRtpParametersNoMatch(t *testing.T) {
	consumable := RtpParameters{
		Codecs: []RtpCodecParameters{
			{MimeType: "audio/opus", PayloadType: 100, ClockRate: 48000, Channels: 2},
		},
	}
	clientCaps := RtpCapabilities{
		Codecs: []RtpCodecCapability{
			{Kind: MediaKindVideo, MimeType: "video/H264", ClockRate: 90000, Parameters: H{"packetization-mode": 1}},
		},
	}

	_, err := synthesizeConsumerRtpParameters(consumable, clientCaps, ProducerTypeSimple)
	if err == nil {
		t.Fatal("expected INVALID_RTP_PARAMETERS")
	}
	if kindOf(err) != ErrInvalidRtpParameters {
		t.Fatalf("got kind %v, want INVALID_RTP_PARAMETERS", kindOf(err))
	}
}

func TestSynthesizeConsumerRtpParametersDropsUnmatchedRtx(t *testing.T) {
	// the rtx codec's apt (201) points at a payload type that never
	// makes it into the chosen set (only VP8/101 matches the client),
	// so the rtx codec itself must be dropped.
	consumable := RtpParameters{
		Codecs: []RtpCodecParameters{
			{MimeType: "video/VP8", PayloadType: 101, ClockRate: 90000},
			{MimeType: "video/H264", PayloadType: 103, ClockRate: 90000},
			{MimeType: "video/rtx", PayloadType: 102, ClockRate: 90000, Parameters: H{"apt": 201}},
		},
	}
	clientCaps := RtpCapabilities{
		Codecs: []RtpCodecCapability{
			{Kind: MediaKindVideo, MimeType: "video/VP8", ClockRate: 90000},
		},
	}

	result, err := synthesizeConsumerRtpParameters(consumable, clientCaps, ProducerTypeSimple)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, c := range result.rtpParameters.Codecs {
		if isRtxMimeType(c.MimeType) {
			t.Fatal("rtx codec should be dropped when its apt does not point at a chosen media codec")
		}
	}
	if result.rtpParameters.Encodings[0].Rtx != nil {
		t.Fatal("no rtx ssrc should be generated when no rtx codec survives")
	}

	// now with the apt pointing at the payload type that did survive
	// matching, the rtx codec (and its ssrc) must be retained.
	consumableRtx := RtpParameters{
		Codecs: []RtpCodecParameters{
			{MimeType: "video/VP8", PayloadType: 101, ClockRate: 90000},
			{MimeType: "video/rtx", PayloadType: 102, ClockRate: 90000, Parameters: H{"apt": 101}},
		},
	}
	result2, err := synthesizeConsumerRtpParameters(consumableRtx, clientCaps, ProducerTypeSimple)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	foundRtx := false
	for _, c := range result2.rtpParameters.Codecs {
		if isRtxMimeType(c.MimeType) {
			foundRtx = true
		}
	}
	if !foundRtx {
		t.Fatal("expected the video/rtx codec to survive since its apt media codec was chosen")
	}
	if result2.rtpParameters.Encodings[0].Rtx == nil {
		t.Fatal("expected an rtx ssrc on the output encoding when an rtx codec survives")
	}
}

func TestParseTemporalLayersDefaultsToOne(t *testing.T) {
	if got := parseTemporalLayers("S2"); got != 1 {
		t.Fatalf("parseTemporalLayers(S2) = %d, want 1", got)
	}
	if got := parseTemporalLayers("S2T3"); got != 3 {
		t.Fatalf("parseTemporalLayers(S2T3) = %d, want 3", got)
	}
}
