package sfu

// This file holds the transport.{produce,consume,produceData,
// consumeData} operations shared by every Transport kind (§6.1 method
// set; §4.4.3/§4.4.4 creation algorithms).

// Produce creates a media Producer on this Transport (§4.4.3
// Creation). producerType defaults to ProducerTypeSimple unless the
// caller passes a multi-encoding rtp_parameters, in which case it is
// ProducerTypeSimulcast.
func (t *Transport) Produce(opts ProducerOptions) (*Producer, error) {
	internal := t.internal
	internal.ProducerId = newUUID()

	producerType := ProducerTypeSimple
	if len(opts.RtpParameters.Encodings) > 1 {
		producerType = ProducerTypeSimulcast
	}

	reqData := H{
		"kind":          opts.Kind,
		"rtpParameters": opts.RtpParameters,
		"rtpMapping":    H{},
		"paused":        opts.Paused,
	}
	resp := t.channel.Request("transport.produce", internal, reqData)
	if err := resp.Err(); err != nil {
		return nil, err
	}

	var reply struct {
		Type ProducerType `json:"type"`
	}
	resp.Unmarshal(&reply)
	if reply.Type != "" {
		producerType = reply.Type
	}

	producer := newProducer(t, internal, opts.Kind, opts.RtpParameters, producerType, opts.Paused)
	t.registry.Add(producer)
	t.addProducer(producer)
	t.bus.Emit(Event{Kind: EventProducerCreated, ResourceID: producer.LocalID(), Data: producer})
	return producer, nil
}

// Consume creates a Consumer of producer on this Transport,
// implementing the full §4.4.4 algorithm: parameter synthesis (steps
// 1-10, in consumer_params.go), mid assignment (step 11), the
// transport.consume command (step 12), and storing the reply (step
// 13).
func (t *Transport) Consume(producer *Producer, clientCaps RtpCapabilities, paused bool, preferredLayers *ConsumerLayers, resumeOnProducerResume bool) (*Consumer, error) {
	result, err := synthesizeConsumerRtpParameters(producer.ConsumableRtpParameters(), clientCaps, producer.ProducerType())
	if err != nil {
		return nil, err
	}
	result.rtpParameters.Mid = t.nextMidString()

	internal := t.internal
	internal.ConsumerId = newUUID()
	internal.ProducerId = producer.Id()

	reqData := H{
		"kind":                   producer.Kind(),
		"rtpParameters":          result.rtpParameters,
		"consumableRtpEncodings": producer.ConsumableRtpParameters().Encodings,
		"paused":                 paused,
		"type":                   result.consumerType,
	}
	if preferredLayers != nil {
		reqData["preferredLayers"] = *preferredLayers
	}

	resp := t.channel.Request("transport.consume", internal, reqData)
	if err := resp.Err(); err != nil {
		return nil, err
	}

	var reply struct {
		Paused          bool           `json:"paused"`
		ProducerPaused  bool           `json:"producerPaused"`
		Score           ConsumerScore  `json:"score"`
		PreferredLayers ConsumerLayers `json:"preferredLayers"`
	}
	resp.Unmarshal(&reply)

	layers := ConsumerLayers{}
	if preferredLayers != nil {
		layers = *preferredLayers
	}
	if reply.PreferredLayers.SpatialLayer != 0 || reply.PreferredLayers.TemporalLayer != nil {
		layers = reply.PreferredLayers
	}

	consumer := newConsumer(t, producer, internal, producer.Kind(), result.rtpParameters, result.consumerType, reply.Paused || paused, reply.ProducerPaused || producer.Paused(), layers, resumeOnProducerResume)
	if reply.Score.Score != 0 {
		consumer.score = reply.Score
	}

	t.registry.Add(consumer)
	t.addConsumer(consumer)
	producer.addConsumer(consumer)
	t.bus.Emit(Event{Kind: EventConsumerCreated, ResourceID: consumer.LocalID(), Data: consumer})
	return consumer, nil
}

// ProduceData creates a Data Producer on this Transport (§4.4.3).
func (t *Transport) ProduceData(opts DataProducerOptions) (*DataProducer, error) {
	internal := t.internal
	internal.DataProducerId = newUUID()

	reqData := H{"label": opts.Label, "protocol": opts.Protocol}
	if opts.SctpStreamParameters != nil {
		reqData["sctpStreamParameters"] = opts.SctpStreamParameters
	} else {
		reqData["type"] = "direct"
	}

	resp := t.channel.Request("transport.produceData", internal, reqData)
	if err := resp.Err(); err != nil {
		return nil, err
	}

	dp := newDataProducer(t, internal, opts)
	t.registry.Add(dp)
	t.addDataProducer(dp)
	t.bus.Emit(Event{Kind: EventProducerCreated, ResourceID: dp.LocalID(), Data: dp})
	return dp, nil
}

// ConsumeData creates a Data Consumer of dataProducer, allocating an
// SCTP stream id from this Transport's bitset when the Transport
// carries SCTP (§4.4.2 Tie-breaks and edge cases: "SCTP stream id
// allocation... returns −1 if none").
func (t *Transport) ConsumeData(dataProducer *DataProducer) (*DataConsumer, error) {
	internal := t.internal
	internal.DataConsumerId = newUUID()
	internal.DataProducerId = dataProducer.Id()

	reqData := H{"label": dataProducer.Label(), "protocol": dataProducer.Protocol(), "type": "sctp"}
	if dataProducer.sctpStreamParameters != nil {
		streamID := t.allocateStreamId()
		if streamID < 0 {
			return nil, NewError(ErrInvalidState, "no free SCTP stream ids")
		}
		params := *dataProducer.sctpStreamParameters
		params.StreamId = streamID
		reqData["sctpStreamParameters"] = params
	}

	resp := t.channel.Request("transport.consumeData", internal, reqData)
	if err := resp.Err(); err != nil {
		return nil, err
	}

	dc := newDataConsumer(t, dataProducer, internal)
	t.registry.Add(dc)
	t.addDataConsumer(dc)
	t.bus.Emit(Event{Kind: EventConsumerCreated, ResourceID: dc.LocalID(), Data: dc})
	return dc, nil
}
