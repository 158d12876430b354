package sfu

// DirectTransportOptions are the caller-supplied inputs to
// router.createDirectTransport: no network, used for in-process
// payload Producers/Consumers (§4.4.2 Direct).
type DirectTransportOptions struct {
	MaxMessageSize int
}

// DirectTransport is the no-network kind of §4.4.2, capped by
// max_message_size.
type DirectTransport struct {
	Transport
	maxMessageSize int
}

// CreateDirectTransport implements router.createDirectTransport.
func (r *Router) CreateDirectTransport(opts DirectTransportOptions) (*DirectTransport, error) {
	internal := internalData{RouterId: r.internal.RouterId, TransportId: newUUID()}

	resp := r.channel.Request("router.createDirectTransport", internal, H{
		"direct":         true,
		"maxMessageSize": opts.MaxMessageSize,
	})
	if err := resp.Err(); err != nil {
		return nil, err
	}

	dt := &DirectTransport{
		Transport: newTransportBase(transportParams{
			internal: internal, router: r, channel: r.channel, payload: r.payload,
			bus: r.bus, registry: r.registry, kind: TransportKindDirect,
		}),
		maxMessageSize: opts.MaxMessageSize,
	}

	r.registry.Add(dt)
	r.addTransport(&dt.Transport)
	r.bus.Emit(Event{Kind: EventTransportCreated, ResourceID: dt.LocalID(), Data: dt})
	return dt, nil
}

func (t *DirectTransport) MaxMessageSize() int { return t.maxMessageSize }

// SendRtp delivers an in-process RTP/data payload to a Direct
// Producer's worker-side counterpart, over the payload channel
// (§4.1 Framing: payload messages). Only valid on a Direct transport;
// callers on other kinds get REQUIRED_DIRECT_TRANSPORT (§7).
func (t *DirectTransport) SendRtp(producer *Producer, payload []byte) error {
	if t.kind != TransportKindDirect {
		return NewError(ErrRequiredDirectTransport, "operation requires a Direct transport")
	}
	internal := t.internal
	internal.ProducerId = producer.Id()
	return t.payload.Send("send", internal, H{}, payload)
}
