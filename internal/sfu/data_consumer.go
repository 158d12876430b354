package sfu

import "sync"

// DataConsumerOptions are the caller-supplied inputs to
// transport.ConsumeData (§4.4.3/§4.4.4 data-channel counterpart).
type DataConsumerOptions struct {
	DataProducerId string
}

// DataConsumer is an outbound SCTP/in-process data stream derived from
// a DataProducer (§3).
type DataConsumer struct {
	resourceBase
	logger       Logger
	internal     internalData
	transport    *Transport
	dataProducer *DataProducer
	channel      *Channel
	bus          *EventBus
	registry     *Registry

	sctpStreamParameters *SctpStreamParameters
	label                string
	protocol             string

	mu                       sync.Mutex
	bufferedAmountLowThreshold int

	producerEventHandler HandlerID
}

func newDataConsumer(transport *Transport, dataProducer *DataProducer, internal internalData) *DataConsumer {
	dc := &DataConsumer{
		resourceBase:         newResourceBase(internal.DataConsumerId),
		logger:               NewLogger("DataConsumer"),
		internal:             internal,
		transport:            transport,
		dataProducer:         dataProducer,
		channel:              transport.channel,
		bus:                  transport.bus,
		registry:             transport.registry,
		sctpStreamParameters: dataProducer.sctpStreamParameters,
		label:                dataProducer.label,
		protocol:             dataProducer.protocol,
	}

	producerID := dataProducer.LocalID()
	dc.producerEventHandler = transport.bus.On(func(ev Event) {
		if ev.ResourceID == producerID && ev.Kind == EventProducerClosed {
			dc.producerClosed()
		}
	})

	return dc
}

func (c *DataConsumer) Id() string          { return c.internal.DataConsumerId }
func (c *DataConsumer) DataProducerId() string { return c.internal.DataProducerId }
func (c *DataConsumer) Label() string       { return c.label }
func (c *DataConsumer) Protocol() string    { return c.protocol }

func (c *DataConsumer) Dump() DumpResult {
	resp := c.channel.Request("dataConsumer.dump", c.internal)
	return NewDumpResult(resp.Data(), resp.Err())
}

func (c *DataConsumer) GetStats() DumpResult {
	resp := c.channel.Request("dataConsumer.getStats", c.internal)
	return NewDumpResult(resp.Data(), resp.Err())
}

func (c *DataConsumer) GetBufferedAmount() (int, error) {
	resp := c.channel.Request("dataConsumer.getBufferedAmount", c.internal)
	var out struct {
		BufferedAmount int `json:"bufferedAmount"`
	}
	if err := resp.Unmarshal(&out); err != nil {
		return 0, err
	}
	return out.BufferedAmount, nil
}

func (c *DataConsumer) SetBufferedAmountLowThreshold(threshold int) error {
	if err := c.channel.Request("dataConsumer.setBufferedAmountLowThreshold", c.internal, H{"threshold": threshold}).Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.bufferedAmountLowThreshold = threshold
	c.mu.Unlock()
	return nil
}

func (c *DataConsumer) producerClosed() {
	if !c.markClosePending() {
		return
	}
	c.logger.Debug("producerClosed()")
	c.bus.Off(c.producerEventHandler)
	c.registry.Remove(c)
	c.bus.Emit(Event{Kind: EventConsumerClosed, ResourceID: c.LocalID(), Data: c})
}

func (c *DataConsumer) Close() {
	if !c.markClosePending() {
		return
	}
	c.logger.Debug("close()")
	c.bus.Off(c.producerEventHandler)
	c.channel.Request("dataConsumer.close", c.internal)
	c.registry.Remove(c)
	c.transport.removeDataConsumer(c)
	c.bus.Emit(Event{Kind: EventConsumerClosed, ResourceID: c.LocalID(), Data: c})
}

func (c *DataConsumer) transportClosed() {
	if !c.markClosePending() {
		return
	}
	c.logger.Debug("transportClosed()")
	c.bus.Off(c.producerEventHandler)
	c.registry.Remove(c)
	c.bus.Emit(Event{Kind: EventConsumerClosed, ResourceID: c.LocalID(), Data: c})
}
