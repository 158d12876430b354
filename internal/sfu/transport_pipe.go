package sfu

// PipeTransportOptions are the caller-supplied inputs to
// router.createPipeTransport: a router-to-router tunnel, specified but
// not exercised by this repo's own tests beyond construction (§4.4.2
// Pipe: "specified but not exercised in this spec").
type PipeTransportOptions struct {
	ListenIp           WebRtcTransportListenIp
	EnableSctp         bool
	NumSctpStreams     int
	MaxSctpMessageSize int
	EnableRtx          bool
	EnableSrtp         bool
}

// PipeTransportConnectOptions mirrors the Plain transport connect
// shape (§4.4.2, grounded on the teacher's pipe_transport.go Connect).
type PipeTransportConnectOptions struct {
	Ip             string `json:"ip"`
	Port           int    `json:"port"`
	SrtpParameters H      `json:"srtpParameters,omitempty"`
}

// PipeTransport is the router-to-router tunnel kind of §4.4.2. Its
// tuple lives on the embedded Transport base alongside every other
// kind's (see transport.go handleWorkerNotification).
type PipeTransport struct {
	Transport
	rtx bool
}

// CreatePipeTransport implements router.createPipeTransport.
func (r *Router) CreatePipeTransport(opts PipeTransportOptions) (*PipeTransport, error) {
	internal := internalData{RouterId: r.internal.RouterId, TransportId: newUUID()}

	reqData := H{
		"listenIp":           opts.ListenIp,
		"enableSctp":         opts.EnableSctp,
		"numSctpStreams":     H{"OS": opts.NumSctpStreams, "MIS": opts.NumSctpStreams},
		"maxSctpMessageSize": opts.MaxSctpMessageSize,
		"enableRtx":          opts.EnableRtx,
		"enableSrtp":         opts.EnableSrtp,
	}

	resp := r.channel.Request("router.createPipeTransport", internal, reqData)
	if err := resp.Err(); err != nil {
		return nil, err
	}

	var reply struct {
		Tuple          H `json:"tuple"`
		SctpParameters struct {
			MIS int `json:"MIS"`
		} `json:"sctpParameters"`
	}
	resp.Unmarshal(&reply)

	pt := &PipeTransport{
		Transport: newTransportBase(transportParams{
			internal: internal, router: r, channel: r.channel, payload: r.payload,
			bus: r.bus, registry: r.registry, kind: TransportKindPipe,
		}),
		rtx: opts.EnableRtx,
	}
	pt.tuple = reply.Tuple
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

func (t *PipeTransport) Tuple() H {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tuple
}

// Connect provides the remote tuple (and, if SRTP is enabled, keying
// material), mirroring the Plain transport shape (§4.4.2).
func (t *PipeTransport) Connect(opts PipeTransportConnectOptions) error {
	resp := t.channel.Request("transport.connect", t.internal, opts)
	if err := resp.Err(); err != nil {
		return err
	}
	var reply struct {
		Tuple H `json:"tuple"`
	}
	resp.Unmarshal(&reply)
	t.mu.Lock()
	if reply.Tuple != nil {
		t.tuple = reply.Tuple
	}
	t.mu.Unlock()
	return nil
}
