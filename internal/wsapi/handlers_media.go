package wsapi

import (
	"github.com/wirow-io/mediaserver/internal/room"
	"github.com/wirow-io/mediaserver/internal/sfu"
)

func handleRtpCapabilities(conn *Connection, frame map[string]interface{}) (map[string]interface{}, error) {
	r, _ := conn.membership()
	if r == nil {
		return nil, errNotMember()
	}
	return map[string]interface{}{"rtpCapabilities": r.Router().RtpCapabilities()}, nil
}

// handleTransportsInit implements transports_init: a RECV transport is
// always created; a SEND transport is skipped for non-owner members of
// a WEBINAR room (§4.7 "WEBINAR additionally forbids non-owner members
// from instantiating a SEND transport").
func handleTransportsInit(conn *Connection, frame map[string]interface{}) (map[string]interface{}, error) {
	r, m := conn.membership()
	if r == nil || m == nil {
		return nil, errNotMember()
	}

	opts := sfu.WebRtcTransportOptions{
		ListenIps: []sfu.WebRtcTransportListenIp{conn.server.listenIP},
		Flags: []sfu.WebRtcTransportFlag{
			sfu.FlagEnableUDP, sfu.FlagEnableTCP, sfu.FlagPreferUDP,
			sfu.FlagEnableSCTP, sfu.FlagEnableDataChannel,
		},
	}

	out := map[string]interface{}{}

	recv, err := r.Router().CreateWebRtcTransport(opts)
	if err != nil {
		return nil, err
	}
	m.AddTransport(recv, room.FlagRecv)
	out["recv"] = transportInitPayload(recv)

	if r.CanSend(m.UserID) {
		send, err := r.Router().CreateWebRtcTransport(opts)
		if err != nil {
			return nil, err
		}
		m.AddTransport(send, room.FlagSend)
		out["send"] = transportInitPayload(send)
	}

	return out, nil
}

func transportInitPayload(t *sfu.WebRtcTransport) map[string]interface{} {
	return map[string]interface{}{
		"id":             t.Id(),
		"iceParameters":  t.IceParameters(),
		"iceCandidates":  t.IceCandidates(),
		"dtlsParameters": t.DtlsParameters(),
	}
}

func transportByFlagField(m *room.Member, frame map[string]interface{}) (*sfu.WebRtcTransport, error) {
	flag := room.ResourceFlag(stringField(frame, "flag"))
	t, ok := m.TransportByFlag(flag)
	if !ok {
		return nil, errInvalidInput("unknown transport flag")
	}
	return t, nil
}

func handleTransportConnect(conn *Connection, frame map[string]interface{}) (map[string]interface{}, error) {
	_, m := conn.membership()
	if m == nil {
		return nil, errNotMember()
	}
	t, err := transportByFlagField(m, frame)
	if err != nil {
		return nil, err
	}
	var opts sfu.WebRtcTransportConnectOptions
	if err := decodeField(frame, "dtlsParameters", &opts); err != nil {
		return nil, errInvalidInput("malformed dtlsParameters")
	}
	if err := t.Connect(opts); err != nil {
		return nil, err
	}
	return nil, nil
}

func handleTransportProduce(conn *Connection, frame map[string]interface{}) (map[string]interface{}, error) {
	r, m := conn.membership()
	if r == nil || m == nil {
		return nil, errNotMember()
	}
	if !r.CanSend(m.UserID) {
		return nil, errForbidden()
	}
	t, ok := m.TransportByFlag(room.FlagSend)
	if !ok {
		return nil, errInvalidInput("no SEND transport")
	}

	var rtpParameters sfu.RtpParameters
	if err := decodeField(frame, "rtpParameters", &rtpParameters); err != nil {
		return nil, errInvalidInput("malformed rtpParameters")
	}
	kind := sfu.MediaKind(stringField(frame, "kind"))

	producer, err := t.Produce(sfu.ProducerOptions{Kind: kind, RtpParameters: rtpParameters, Paused: boolField(frame, "paused")})
	if err != nil {
		return nil, err
	}
	m.AddProducer(producer)

	r.Announce(m, room.H{
		"cmd": "new_producer", "user_id": m.UserID, "producer_id": producer.Id(), "kind": string(kind),
	})

	return map[string]interface{}{"id": producer.Id()}, nil
}

func handleTransportRestartIce(conn *Connection, frame map[string]interface{}) (map[string]interface{}, error) {
	_, m := conn.membership()
	if m == nil {
		return nil, errNotMember()
	}
	t, err := transportByFlagField(m, frame)
	if err != nil {
		return nil, err
	}
	iceParams, err := t.RestartIce()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"iceParameters": iceParams}, nil
}

func producerByIDField(m *room.Member, frame map[string]interface{}) (*sfu.Producer, error) {
	id := stringField(frame, "producer_id")
	p, ok := m.ProducerByID(id)
	if !ok {
		return nil, errInvalidInput("unknown producer_id")
	}
	return p, nil
}

func handleProducerClose(conn *Connection, frame map[string]interface{}) (map[string]interface{}, error) {
	_, m := conn.membership()
	if m == nil {
		return nil, errNotMember()
	}
	p, err := producerByIDField(m, frame)
	if err != nil {
		return nil, err
	}
	p.Close()
	m.RemoveProducer(p.Id())
	return nil, nil
}

func handleProducerPause(conn *Connection, frame map[string]interface{}) (map[string]interface{}, error) {
	_, m := conn.membership()
	if m == nil {
		return nil, errNotMember()
	}
	p, err := producerByIDField(m, frame)
	if err != nil {
		return nil, err
	}
	if err := p.Pause(); err != nil {
		return nil, err
	}
	return nil, nil
}

func handleProducerResume(conn *Connection, frame map[string]interface{}) (map[string]interface{}, error) {
	_, m := conn.membership()
	if m == nil {
		return nil, errNotMember()
	}
	p, err := producerByIDField(m, frame)
	if err != nil {
		return nil, err
	}
	if err := p.Resume(); err != nil {
		return nil, err
	}
	return nil, nil
}

func consumerByIDField(m *room.Member, frame map[string]interface{}) (*sfu.Consumer, error) {
	id := stringField(frame, "consumer_id")
	c, ok := m.ConsumerByID(id)
	if !ok {
		return nil, errInvalidInput("unknown consumer_id")
	}
	return c, nil
}

func handleConsumerPause(conn *Connection, frame map[string]interface{}) (map[string]interface{}, error) {
	_, m := conn.membership()
	if m == nil {
		return nil, errNotMember()
	}
	c, err := consumerByIDField(m, frame)
	if err != nil {
		return nil, err
	}
	if err := c.Pause(); err != nil {
		return nil, err
	}
	return nil, nil
}

func handleConsumerResume(conn *Connection, frame map[string]interface{}) (map[string]interface{}, error) {
	_, m := conn.membership()
	if m == nil {
		return nil, errNotMember()
	}
	c, err := consumerByIDField(m, frame)
	if err != nil {
		return nil, err
	}
	if err := c.Resume(); err != nil {
		return nil, err
	}
	return nil, nil
}

func handleConsumerSetPriority(conn *Connection, frame map[string]interface{}) (map[string]interface{}, error) {
	_, m := conn.membership()
	if m == nil {
		return nil, errNotMember()
	}
	c, err := consumerByIDField(m, frame)
	if err != nil {
		return nil, err
	}
	priority, _ := frame["priority"].(float64)
	if err := c.SetPriority(int(priority)); err != nil {
		return nil, err
	}
	return nil, nil
}

func handleConsumerSetPreferredLayers(conn *Connection, frame map[string]interface{}) (map[string]interface{}, error) {
	_, m := conn.membership()
	if m == nil {
		return nil, errNotMember()
	}
	c, err := consumerByIDField(m, frame)
	if err != nil {
		return nil, err
	}
	var layers sfu.ConsumerLayers
	if err := decodeField(frame, "layers", &layers); err != nil {
		return nil, errInvalidInput("malformed layers")
	}
	if err := c.SetPreferredLayers(layers); err != nil {
		return nil, err
	}
	return nil, nil
}

// handleAcquireRoomStreams implements acquire_room_streams: every
// other visible member's Producer this member has not yet consumed is
// consumed onto this member's RECV transport, and an unsolicited
// `consumer` frame is pushed per newly created Consumer rather than
// returned in the response body (§4.8 "Handlers may also originate
// unsolicited frames").
func handleAcquireRoomStreams(conn *Connection, frame map[string]interface{}) (map[string]interface{}, error) {
	r, m := conn.membership()
	if r == nil || m == nil {
		return nil, errNotMember()
	}
	recv, ok := m.TransportByFlag(room.FlagRecv)
	if !ok {
		return nil, errInvalidInput("no RECV transport")
	}

	count := 0
	for _, other := range r.VisibleMembers(m) {
		if other == m {
			continue
		}
		for _, p := range other.Producers() {
			if m.HasConsumed(p.Id()) {
				continue
			}
			consumer, err := recv.Consume(p, m.RtpCapabilities, false, nil, true)
			if err != nil {
				continue
			}
			m.AddConsumer(consumer)
			count++
			conn.WriteJSON(map[string]interface{}{
				"cmd": "consumer", "id": consumer.Id(), "producer_id": p.Id(),
				"user_id": other.UserID, "kind": string(consumer.Kind()),
				"rtpParameters": consumer.RtpParameters(), "type": string(consumer.ConsumerType()),
			})
		}
	}

	return map[string]interface{}{"acquired": count}, nil
}
