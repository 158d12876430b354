package sfu

// SrtpCryptoSuite enumerates the two suites §4.4.2 Plain transport
// allows.
type SrtpCryptoSuite string

const (
	SrtpAesCm128HmacSha1_80 SrtpCryptoSuite = "AES_CM_128_HMAC_SHA1_80"
	SrtpAesCm128HmacSha1_32 SrtpCryptoSuite = "AES_CM_128_HMAC_SHA1_32"
)

// PlainTransportOptions are the caller-supplied inputs to
// router.createPlainTransport (§4.4.2 Plain).
type PlainTransportOptions struct {
	ListenIp           WebRtcTransportListenIp
	EnableSctp         bool
	NumSctpStreams     int
	MaxSctpMessageSize int
	EnableSrtp         bool
	SrtpCryptoSuite    SrtpCryptoSuite
	Comedia            bool
	NoMux              bool
}

// PlainTransportConnectOptions carries the remote IP/ports and,
// if SRTP is enabled, a keyBase64+suite (§4.4.2 Plain connect()).
type PlainTransportConnectOptions struct {
	Ip             string `json:"ip,omitempty"`
	Port           int    `json:"port,omitempty"`
	RtcpPort       int    `json:"rtcpPort,omitempty"`
	SrtpParameters *struct {
		CryptoSuite SrtpCryptoSuite `json:"cryptoSuite"`
		KeyBase64   string          `json:"keyBase64"`
	} `json:"srtpParameters,omitempty"`
}

// PlainTransport is the no-DTLS UDP endpoint kind of §4.4.2. Its tuple
// and rtcpTuple live on the embedded Transport base so worker-pushed
// "tuple"/"rtcptuple" notifications (handled there) stay in sync with
// what Connect() last set.
type PlainTransport struct {
	Transport
}

// CreatePlainTransport implements router.createPlainTransport
// (§4.4.1/§4.4.2, §6.1).
func (r *Router) CreatePlainTransport(opts PlainTransportOptions) (*PlainTransport, error) {
	internal := internalData{RouterId: r.internal.RouterId, TransportId: newUUID()}

	reqData := H{
		"listenIp":           opts.ListenIp,
		"enableSctp":         opts.EnableSctp,
		"numSctpStreams":     H{"OS": opts.NumSctpStreams, "MIS": opts.NumSctpStreams},
		"maxSctpMessageSize": opts.MaxSctpMessageSize,
		"enableSrtp":         opts.EnableSrtp,
		"srtpCryptoSuite":    opts.SrtpCryptoSuite,
		"comedia":            opts.Comedia,
		"rtcpMux":            !opts.NoMux,
	}

	resp := r.channel.Request("router.createPlainTransport", internal, reqData)
	if err := resp.Err(); err != nil {
		return nil, err
	}

	var reply struct {
		Tuple          H `json:"tuple"`
		RtcpTuple      H `json:"rtcpTuple"`
		SctpParameters struct {
			MIS int `json:"MIS"`
		} `json:"sctpParameters"`
	}
	resp.Unmarshal(&reply)

	pt := &PlainTransport{
		Transport: newTransportBase(transportParams{
			internal: internal, router: r, channel: r.channel, payload: r.payload,
			bus: r.bus, registry: r.registry, kind: TransportKindPlain,
		}),
	}
	pt.tuple = reply.Tuple
	pt.rtcpTuple = reply.RtcpTuple
	if opts.EnableSctp {
		if err := pt.setStreamMaxSlots(reply.SctpParameters.MIS); err != nil {
			return nil, err
		}
	}

	r.registry.Add(pt)
	r.addTransport(&pt.Transport)
	r.bus.Emit(Event{Kind: EventTransportCreated, ResourceID: pt.LocalID(), Data: pt})
	return pt, nil
}

func (t *PlainTransport) Tuple() H {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tuple
}

func (t *PlainTransport) RtcpTuple() H {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rtcpTuple
}

// Connect supplies remote IP/ports and, if SRTP is enabled, the
// negotiated key (§4.4.2 Plain connect()).
func (t *PlainTransport) Connect(opts PlainTransportConnectOptions) error {
	resp := t.channel.Request("transport.connect", t.internal, opts)
	if err := resp.Err(); err != nil {
		return err
	}
	var reply struct {
		Tuple     H `json:"tuple"`
		RtcpTuple H `json:"rtcpTuple"`
	}
	resp.Unmarshal(&reply)
	t.mu.Lock()
	if reply.Tuple != nil {
		t.tuple = reply.Tuple
	}
	if reply.RtcpTuple != nil {
		t.rtcpTuple = reply.RtcpTuple
	}
	t.mu.Unlock()
	t.bus.Emit(Event{Kind: EventTransportTuple, ResourceID: t.LocalID(), Data: t})
	return nil
}
