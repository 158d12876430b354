package sfu

// WebRtcTransportListenIp is one listen/announced IP pair (§4.4.2
// WebRTC spec).
type WebRtcTransportListenIp struct {
	Ip          string `json:"ip"`
	AnnouncedIp string `json:"announcedIp,omitempty"`
}

// WebRtcTransportFlag enumerates the {ENABLE_UDP, ENABLE_TCP,
// PREFER_UDP/TCP, ENABLE_SCTP, ENABLE_DATA_CHANNEL} flag set (§4.4.2).
type WebRtcTransportFlag string

const (
	FlagEnableUDP         WebRtcTransportFlag = "ENABLE_UDP"
	FlagEnableTCP         WebRtcTransportFlag = "ENABLE_TCP"
	FlagPreferUDP         WebRtcTransportFlag = "PREFER_UDP"
	FlagPreferTCP         WebRtcTransportFlag = "PREFER_TCP"
	FlagEnableSCTP        WebRtcTransportFlag = "ENABLE_SCTP"
	FlagEnableDataChannel WebRtcTransportFlag = "ENABLE_DATA_CHANNEL"
)

// WebRtcTransportOptions are the caller-supplied inputs to
// router.createWebRtcTransport (§4.4.2).
type WebRtcTransportOptions struct {
	ListenIps             []WebRtcTransportListenIp
	Flags                 []WebRtcTransportFlag
	InitialOutgoingBitrate int
	NumSctpStreams         int
	MaxSctpMessageSize     int
}

func (o WebRtcTransportOptions) hasFlag(f WebRtcTransportFlag) bool {
	for _, cur := range o.Flags {
		if cur == f {
			return true
		}
	}
	return false
}

// DtlsFingerprint is one hash-algorithm/value pair offered in a
// connect() call (§4.4.2: "SHA-1/224/256/384/512").
type DtlsFingerprint struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

// DtlsRole is the negotiated DTLS role of a connect() call.
type DtlsRole string

const (
	DtlsRoleAuto   DtlsRole = "auto"
	DtlsRoleClient DtlsRole = "client"
	DtlsRoleServer DtlsRole = "server"
)

// WebRtcTransportConnectOptions carries the DTLS parameters of a
// connect() call (§4.4.2).
type WebRtcTransportConnectOptions struct {
	Fingerprints []DtlsFingerprint `json:"fingerprints"`
	Role         DtlsRole          `json:"role,omitempty"`
}

// WebRtcTransport is the {ENABLE_UDP,...} network endpoint kind of
// §4.4.2.
type WebRtcTransport struct {
	Transport
	iceParameters    H
	iceCandidates    []H
	dtlsParameters   H
}

// CreateWebRtcTransport implements router.createWebRtcTransport
// (§4.4.1/§4.4.2, §6.1).
func (r *Router) CreateWebRtcTransport(opts WebRtcTransportOptions) (*WebRtcTransport, error) {
	internal := internalData{RouterId: r.internal.RouterId, TransportId: newUUID()}

	reqData := H{
		"listenIps":              opts.ListenIps,
		"enableUdp":              opts.hasFlag(FlagEnableUDP),
		"enableTcp":              opts.hasFlag(FlagEnableTCP),
		"preferUdp":              opts.hasFlag(FlagPreferUDP),
		"preferTcp":              opts.hasFlag(FlagPreferTCP),
		"initialAvailableOutgoingBitrate": opts.InitialOutgoingBitrate,
		"enableSctp":             opts.hasFlag(FlagEnableSCTP),
		"numSctpStreams":         H{"OS": opts.NumSctpStreams, "MIS": opts.NumSctpStreams},
		"maxSctpMessageSize":     opts.MaxSctpMessageSize,
		"isDataChannel":          opts.hasFlag(FlagEnableDataChannel),
	}

	resp := r.channel.Request("router.createWebRtcTransport", internal, reqData)
	if err := resp.Err(); err != nil {
		return nil, err
	}

	var reply struct {
		IceParameters  H `json:"iceParameters"`
		IceCandidates  []H `json:"iceCandidates"`
		DtlsParameters H `json:"dtlsParameters"`
		SctpParameters struct {
			MIS int `json:"MIS"`
		} `json:"sctpParameters"`
	}
	resp.Unmarshal(&reply)

	wt := &WebRtcTransport{
		Transport: newTransportBase(transportParams{
			internal: internal, router: r, channel: r.channel, payload: r.payload,
			bus: r.bus, registry: r.registry, kind: TransportKindWebRTC,
		}),
		iceParameters:  reply.IceParameters,
		iceCandidates:  reply.IceCandidates,
		dtlsParameters: reply.DtlsParameters,
	}
	if opts.hasFlag(FlagEnableSCTP) {
		if err := wt.setStreamMaxSlots(reply.SctpParameters.MIS); err != nil {
			return nil, err
		}
	}

	r.registry.Add(wt)
	r.addTransport(&wt.Transport)
	r.bus.Emit(Event{Kind: EventTransportCreated, ResourceID: wt.LocalID(), Data: wt})
	return wt, nil
}

func (t *WebRtcTransport) IceParameters() H  { return t.iceParameters }
func (t *WebRtcTransport) IceCandidates() []H { return t.iceCandidates }
func (t *WebRtcTransport) DtlsParameters() H { return t.dtlsParameters }

// Connect supplies DTLS fingerprints/role (§4.4.2 WebRTC connect()).
func (t *WebRtcTransport) Connect(opts WebRtcTransportConnectOptions) error {
	return t.channel.Request("transport.connect", t.internal, opts).Err()
}

// RestartIce returns new ICE parameters (§4.4.2 WebRTC restart_ice()).
func (t *WebRtcTransport) RestartIce() (H, error) {
	resp := t.channel.Request("transport.restartIce", t.internal)
	if err := resp.Err(); err != nil {
		return nil, err
	}
	var out struct {
		IceParameters H `json:"iceParameters"`
	}
	if err := resp.Unmarshal(&out); err != nil {
		return nil, err
	}
	t.iceParameters = out.IceParameters
	t.bus.Emit(Event{Kind: EventTransportUpdated, ResourceID: t.LocalID(), Data: t})
	return out.IceParameters, nil
}
