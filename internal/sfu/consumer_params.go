package sfu

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"

	"github.com/jinzhu/copier"
)

// consumerParamsResult is everything §4.4.4's synthesis algorithm
// produces besides the fresh mid (assigned by the caller from the
// owning Transport's next_mid counter, step 11).
type consumerParamsResult struct {
	rtpParameters RtpParameters
	consumerType  ConsumerType
}

// sanitizeClientRtpCapabilities implements §4.4.4 step 2: every codec
// sets kind from its mimeType prefix, parameters is coerced to a
// (possibly empty) object, rtcpFeedback to a (possibly empty) slice,
// header extensions are left as given (the Go struct shape already
// forces the remaining fields).
func sanitizeClientRtpCapabilities(caps RtpCapabilities) RtpCapabilities {
	out := caps
	out.Codecs = make([]RtpCodecCapability, len(caps.Codecs))
	for i, c := range caps.Codecs {
		if c.Parameters == nil {
			c.Parameters = H{}
		}
		if c.RtcpFeedback == nil {
			c.RtcpFeedback = []RtcpFeedback{}
		}
		if c.Kind == "" {
			if strings.HasPrefix(strings.ToLower(c.MimeType), "audio/") {
				c.Kind = MediaKindAudio
			} else {
				c.Kind = MediaKindVideo
			}
		}
		out.Codecs[i] = c
	}
	return out
}

// isRtxMimeType reports whether a codec mimeType is the RTX
// retransmission codec (case-insensitive, per §4.5/§4.4.4).
func isRtxMimeType(mimeType string) bool {
	return strings.EqualFold(mimeType, "video/rtx")
}

// synthesizeConsumerRtpParameters implements the §4.4.4 Consumer
// parameter synthesis algorithm, steps 1-10 (steps 11-12, mid
// assignment and the worker command, are the caller's job in
// Transport.Consume in transport_media.go since they need the owning
// Transport).
func synthesizeConsumerRtpParameters(consumable RtpParameters, clientCaps RtpCapabilities, producerType ProducerType) (consumerParamsResult, error) {
	clientCaps = sanitizeClientRtpCapabilities(clientCaps)

	// Step 1: deep-clone the producer's consumable_rtp_parameters.
	var cloned RtpParameters
	if err := copier.CopyWithOption(&cloned, &consumable, copier.Option{DeepCopy: true}); err != nil {
		return consumerParamsResult{}, NewError(ErrInvalidArgs, err.Error())
	}

	// Step 3: for each consumable (non-rtx) codec, find the first
	// matching client codec, copying its rtcpFeedback onto the chosen
	// codec. RTX codecs are matched to their media codec by apt payload
	// type below (sanitize step), not via codecsMatch (RTX codecs only carry
	// clockRate+apt, not a real mimeType match target on the client).
	var chosen []RtpCodecParameters
	mediaPTToChosenIdx := map[int]int{}

	for _, consumableCodec := range cloned.Codecs {
		if isRtxMimeType(consumableCodec.MimeType) {
			continue
		}
		var matchClient *RtpCodecCapability
		for i := range clientCaps.Codecs {
			cc := clientCaps.Codecs[i]
			if isRtxMimeType(cc.MimeType) {
				continue
			}
			if codecsMatch(consumableCodec, cc) {
				matchClient = &clientCaps.Codecs[i]
				break
			}
		}
		if matchClient == nil {
			continue
		}
		out := consumableCodec
		out.RtcpFeedback = matchClient.RtcpFeedback
		mediaPTToChosenIdx[consumableCodec.PayloadType] = len(chosen)
		chosen = append(chosen, out)
	}

	// Step 4: fail if no non-rtx media codec survived.
	if len(chosen) == 0 {
		return consumerParamsResult{}, NewError(ErrInvalidRtpParameters, "no consumable codec matches the client's rtp capabilities")
	}

	// Sanitize RTX (step 3 continued): retain a consumable video/rtx
	// codec only if the chosen set contains the media codec its apt
	// points at.
	for _, consumableCodec := range cloned.Codecs {
		if !isRtxMimeType(consumableCodec.MimeType) {
			continue
		}
		apt := toInt(consumableCodec.Parameters["apt"])
		if idx, ok := mediaPTToChosenIdx[apt]; ok {
			_ = idx
			chosen = append(chosen, consumableCodec)
		}
	}

	// Step 5: intersect header extensions by (preferredId==id AND uri
	// equal).
	var headerExts []RtpHeaderExtensionParameters
	hasExt := map[string]bool{}
	for _, he := range cloned.HeaderExtensions {
		for _, ce := range clientCaps.HeaderExtensions {
			if ce.PreferredId == he.Id && ce.Uri == he.Uri {
				headerExts = append(headerExts, he)
				hasExt[he.Uri] = true
				break
			}
		}
	}

	// Step 6: reduce rtcp feedback according to available header
	// extensions.
	dropGoogRemb := hasExt["http://www.ietf.org/id/draft-holmer-rmcat-transport-wide-cc-extensions-01"]
	dropTransportCC := !dropGoogRemb && hasExt["http://www.webrtc.org/experiments/rtp-hdrext/abs-send-time"]
	dropBoth := !dropGoogRemb && !dropTransportCC

	for i := range chosen {
		var kept []RtcpFeedback
		for _, fb := range chosen[i].RtcpFeedback {
			switch {
			case dropBoth && (fb.Type == "goog-remb" || fb.Type == "transport-cc"):
				continue
			case dropGoogRemb && fb.Type == "goog-remb":
				continue
			case dropTransportCC && fb.Type == "transport-cc":
				continue
			}
			kept = append(kept, fb)
		}
		chosen[i].RtcpFeedback = kept
	}

	// Step 7: generate a single output encoding with a random ssrc.
	ssrc, err := randomSsrc()
	if err != nil {
		return consumerParamsResult{}, NewError(ErrInvalidArgs, err.Error())
	}
	encoding := RtpEncodingParameters{Ssrc: ssrc}

	hasRtx := false
	for _, c := range chosen {
		if isRtxMimeType(c.MimeType) {
			hasRtx = true
			break
		}
	}
	if hasRtx {
		rtxSsrc, err := randomSsrc()
		if err != nil {
			return consumerParamsResult{}, NewError(ErrInvalidArgs, err.Error())
		}
		encoding.Rtx = &struct {
			Ssrc uint32 `json:"ssrc"`
		}{Ssrc: rtxSsrc}
	}

	// Step 8: scalabilityMode.
	consumerType := ConsumerType(producerType)
	if len(cloned.Encodings) == 1 && cloned.Encodings[0].ScalabilityMode != "" {
		encoding.ScalabilityMode = cloned.Encodings[0].ScalabilityMode
	} else if len(cloned.Encodings) > 1 {
		temporal := 1
		for _, enc := range cloned.Encodings {
			if enc.ScalabilityMode != "" {
				if t := parseTemporalLayers(enc.ScalabilityMode); t > 0 {
					temporal = t
				}
				break
			}
		}
		encoding.ScalabilityMode = "S" + strconv.Itoa(len(cloned.Encodings)) + "T" + strconv.Itoa(temporal)
		consumerType = ConsumerTypeSimulcast
	}

	// Step 9: maxBitrate = max over consumable encodings' maxBitrate.
	maxBitrate := 0
	for _, enc := range cloned.Encodings {
		if enc.MaxBitrate > maxBitrate {
			maxBitrate = enc.MaxBitrate
		}
	}
	encoding.MaxBitrate = maxBitrate

	result := RtpParameters{
		Codecs:           chosen,
		HeaderExtensions: headerExts,
		Encodings:        []RtpEncodingParameters{encoding},
		Rtcp:             cloned.Rtcp, // step 10: copied verbatim
	}

	return consumerParamsResult{rtpParameters: result, consumerType: consumerType}, nil
}

// parseTemporalLayers extracts the T<N> temporal layer count from a
// scalabilityMode string such as "S2T3", defaulting to 1 (§4.4.4
// step 8).
func parseTemporalLayers(mode string) int {
	idx := strings.IndexByte(mode, 'T')
	if idx < 0 || idx == len(mode)-1 {
		return 1
	}
	n, err := strconv.Atoi(mode[idx+1:])
	if err != nil || n <= 0 {
		return 1
	}
	return n
}

// randomSsrc returns a random ssrc in [100000000, 1000000000) as
// required by §8's testable property and §4.4.4 step 7.
func randomSsrc() (uint32, error) {
	const lo, hi = 100_000_000, 1_000_000_000
	n, err := rand.Int(rand.Reader, big.NewInt(hi-lo))
	if err != nil {
		return 0, err
	}
	return uint32(lo + n.Int64()), nil
}
