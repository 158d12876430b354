package sfu

// DataProducerOptions are the caller-supplied inputs to
// transport.ProduceData (§4.4.3).
type DataProducerOptions struct {
	SctpStreamParameters *SctpStreamParameters
	Label                string
	Protocol              string
}

// DataProducer is an inbound SCTP (or, on a Direct transport,
// in-process channel) data stream (§3 Producer{Media,Data}).
type DataProducer struct {
	resourceBase
	logger    Logger
	internal  internalData
	transport *Transport
	channel   *Channel
	payload   *PayloadChannel
	bus       *EventBus
	registry  *Registry

	sctpStreamParameters *SctpStreamParameters
	label                string
	protocol             string
}

func newDataProducer(transport *Transport, internal internalData, opts DataProducerOptions) *DataProducer {
	return &DataProducer{
		resourceBase:         newResourceBase(internal.DataProducerId),
		logger:               NewLogger("DataProducer"),
		internal:             internal,
		transport:            transport,
		channel:              transport.channel,
		payload:              transport.payload,
		bus:                  transport.bus,
		registry:             transport.registry,
		sctpStreamParameters: opts.SctpStreamParameters,
		label:                opts.Label,
		protocol:             opts.Protocol,
	}
}

func (p *DataProducer) Id() string        { return p.internal.DataProducerId }
func (p *DataProducer) Label() string     { return p.label }
func (p *DataProducer) Protocol() string  { return p.protocol }
func (p *DataProducer) Transport() *Transport { return p.transport }

func (p *DataProducer) Dump() DumpResult {
	resp := p.channel.Request("dataProducer.dump", p.internal)
	return NewDumpResult(resp.Data(), resp.Err())
}

func (p *DataProducer) GetStats() DumpResult {
	resp := p.channel.Request("dataProducer.getStats", p.internal)
	return NewDumpResult(resp.Data(), resp.Err())
}

// dataProducerPPID picks the SCTP PPID per RFC 8831, §4.4.3 "Data
// Producer send": binary=false,len>0 -> 51; binary=true,len>0 -> 53;
// binary=false,len=0 -> 56 (single space sent); binary=true,len=0 -> 57
// (single NUL sent).
func dataProducerPPID(binary bool, payloadLen int) (ppid int, sendPayload []byte) {
	switch {
	case !binary && payloadLen > 0:
		return 51, nil
	case binary && payloadLen > 0:
		return 53, nil
	case !binary && payloadLen == 0:
		return 56, []byte{' '}
	default:
		return 57, []byte{0}
	}
}

// Send transmits a data-channel message over the payload channel. If
// ppid is nil it is chosen per dataProducerPPID.
func (p *DataProducer) Send(payload []byte, binary bool, ppid *int) error {
	pt := 0
	body := payload
	if ppid != nil {
		pt = *ppid
	} else {
		var substituted []byte
		pt, substituted = dataProducerPPID(binary, len(payload))
		if substituted != nil {
			body = substituted
		}
	}
	return p.payload.Send("send", p.internal, H{"ppid": pt}, body)
}

func (p *DataProducer) Close() {
	if !p.markClosePending() {
		return
	}
	p.logger.Debug("close()")
	p.channel.Request("dataProducer.close", p.internal)
	p.registry.Remove(p)
	p.transport.removeDataProducer(p)
	p.bus.Emit(Event{Kind: EventProducerClosed, ResourceID: p.LocalID(), Data: p})
}

func (p *DataProducer) transportClosed() {
	if !p.markClosePending() {
		return
	}
	p.logger.Debug("transportClosed()")
	p.registry.Remove(p)
	p.bus.Emit(Event{Kind: EventProducerClosed, ResourceID: p.LocalID(), Data: p})
}
