package sfu

import (
	"encoding/json"
	"net"
	"sync"
	"sync/atomic"
)

// payloadDescriptor is the JSON half of a two-frame payload message
// (§4.1 Framing: "first a JSON descriptor ... then the opaque binary
// payload").
type payloadDescriptor struct {
	Event    string          `json:"event"`
	Internal internalData    `json:"internal,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// payloadSink receives a fully paired (descriptor, binary) payload
// message.
type payloadSink func(desc payloadDescriptor, payload []byte)

// PayloadChannel carries binary payload frames (Direct transport
// send/receive, RTP trace payloads) as descriptor-then-bytes pairs.
// The per-worker state machine only ever accepts descriptor-first,
// binary-second; any other interleaving is a protocol violation that
// kills the worker (§4.1 Payload correlation).
type PayloadChannel struct {
	logger Logger

	writeMu sync.Mutex
	writer  *frameWriter
	conn    net.Conn

	onPayload    payloadSink
	onWorkerExit func()
	closed       atomic.Bool

	// awaiting holds the descriptor received so far while we wait for
	// its paired binary frame; nil means "expecting a descriptor next".
	awaiting *payloadDescriptor
}

func newPayloadChannel(producerConn, consumerConn net.Conn) *PayloadChannel {
	pc := &PayloadChannel{
		logger: NewLogger("PayloadChannel"),
		writer: newFrameWriter(producerConn),
		conn:   producerConn,
	}
	go pc.readLoop(consumerConn)
	return pc
}

func (pc *PayloadChannel) readLoop(consumerConn net.Conn) {
	reader := newFrameReader(consumerConn)
	for {
		frame, err := reader.ReadFrame()
		if err != nil {
			pc.handleWorkerExit()
			return
		}

		if pc.awaiting == nil {
			// Expecting a descriptor: must be JSON.
			if len(frame) == 0 || frame[0] != '{' {
				pc.logger.Error("payload channel: expected descriptor, got non-JSON frame")
				pc.handleProtocolViolation()
				return
			}
			var desc payloadDescriptor
			if err := json.Unmarshal(frame, &desc); err != nil {
				pc.logger.Error("payload channel: malformed descriptor: %v", err)
				pc.handleProtocolViolation()
				return
			}
			pc.awaiting = &desc
		} else {
			desc := *pc.awaiting
			pc.awaiting = nil
			if pc.onPayload != nil {
				pc.onPayload(desc, frame)
			}
		}
	}
}

// handleProtocolViolation kills the worker on any interleaving other
// than descriptor-first, binary-second (§4.1).
func (pc *PayloadChannel) handleProtocolViolation() {
	pc.handleWorkerExit()
}

func (pc *PayloadChannel) handleWorkerExit() {
	if !pc.closed.CompareAndSwap(false, true) {
		return
	}
	if pc.onWorkerExit != nil {
		pc.onWorkerExit()
	}
}

// Send writes a descriptor+binary pair for an outbound payload message
// (e.g. a Data Producer's send()).
func (pc *PayloadChannel) Send(event string, internal internalData, data interface{}, payload []byte) error {
	if pc.closed.Load() {
		return NewError(ErrWorkerExit, "worker already closed")
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return NewError(ErrInvalidArgs, err.Error())
	}
	desc := payloadDescriptor{Event: event, Internal: internal, Data: raw}
	descRaw, err := json.Marshal(desc)
	if err != nil {
		return NewError(ErrInvalidArgs, err.Error())
	}

	pc.writeMu.Lock()
	defer pc.writeMu.Unlock()
	if err := pc.writer.WriteFrame(descRaw); err != nil {
		return NewError(ErrWorkerComm, err.Error())
	}
	return pc.writer.WriteFrame(payload)
}

func (pc *PayloadChannel) Close() {
	if !pc.closed.CompareAndSwap(false, true) {
		return
	}
	pc.conn.Close()
}
