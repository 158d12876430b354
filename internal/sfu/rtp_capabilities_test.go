package sfu

import "testing"

func TestGenerateRouterRtpCapabilitiesPairsRtx(t *testing.T) {
	caps, err := GenerateRouterRtpCapabilities([]RtpCodecCapability{
		{Kind: MediaKindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
		{Kind: MediaKindVideo, MimeType: "video/VP8", ClockRate: 90000},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var videoMedia, videoRtx *RtpCodecCapability
	for i := range caps.Codecs {
		c := &caps.Codecs[i]
		switch {
		case c.MimeType == "video/VP8":
			videoMedia = c
		case c.MimeType == "video/rtx":
			videoRtx = c
		}
	}
	if videoMedia == nil {
		t.Fatal("expected a video/VP8 codec in router capabilities")
	}
	if videoRtx == nil {
		t.Fatal("expected a paired video/rtx codec (§8 testable property)")
	}
	if toInt(videoRtx.Parameters["apt"]) != videoMedia.PreferredPayloadType {
		t.Fatalf("rtx apt = %v, want media codec payload type %d", videoRtx.Parameters["apt"], videoMedia.PreferredPayloadType)
	}
}

func TestGenerateRouterRtpCapabilitiesNoRtxForAudio(t *testing.T) {
	caps, err := GenerateRouterRtpCapabilities([]RtpCodecCapability{
		{Kind: MediaKindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(caps.Codecs) != 1 {
		t.Fatalf("expected exactly one codec for an audio-only request, got %d", len(caps.Codecs))
	}
}

func TestGenerateRouterRtpCapabilitiesUnknownCodec(t *testing.T) {
	_, err := GenerateRouterRtpCapabilities([]RtpCodecCapability{
		{Kind: MediaKindVideo, MimeType: "video/AV1", ClockRate: 90000},
	})
	if err == nil {
		t.Fatal("expected an error for a codec absent from the available-capabilities table")
	}
	if kindOf(err) != ErrInvalidArgs {
		t.Fatalf("got kind %v, want INVALID_ARGS", kindOf(err))
	}
}

func TestGenerateRouterRtpCapabilitiesExhaustsPayloadPool(t *testing.T) {
	// Each video codec request consumes two payload types (media+rtx);
	// the pool has 32 entries, so 17 requests guarantee exhaustion.
	var codecs []RtpCodecCapability
	for i := 0; i < 17; i++ {
		codecs = append(codecs, RtpCodecCapability{Kind: MediaKindVideo, MimeType: "video/VP8", ClockRate: 90000})
	}
	_, err := GenerateRouterRtpCapabilities(codecs)
	if err == nil {
		t.Fatal("expected TOO_MANY_DYNAMIC_PAYLOADS once the pool is exhausted")
	}
	if kindOf(err) != ErrTooManyDynamicPayloads {
		t.Fatalf("got kind %v, want TOO_MANY_DYNAMIC_PAYLOADS", kindOf(err))
	}
}

func TestCodecsMatchH264PacketizationMode(t *testing.T) {
	a := RtpCodecCapability{MimeType: "video/H264", ClockRate: 90000, Parameters: H{"packetization-mode": 1}}
	b := RtpCodecCapability{MimeType: "video/h264", ClockRate: 90000, Parameters: H{"packetization-mode": 1}}
	if !codecsMatch(a, b) {
		t.Fatal("expected matching packetization-mode 1 codecs to match")
	}
	c := RtpCodecCapability{MimeType: "video/H264", ClockRate: 90000, Parameters: H{"packetization-mode": 0}}
	if codecsMatch(a, c) {
		t.Fatal("expected differing packetization-mode to not match")
	}
}

func TestCodecsMatchAudioChannelsDefaultToOne(t *testing.T) {
	a := RtpCodecCapability{MimeType: "audio/PCMU", ClockRate: 8000}
	b := RtpCodecCapability{MimeType: "audio/PCMU", ClockRate: 8000, Channels: 1}
	if !codecsMatch(a, b) {
		t.Fatal("expected missing channels (default 1) to match explicit channels=1")
	}
}

func kindOf(err error) ErrorKind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return ""
}
