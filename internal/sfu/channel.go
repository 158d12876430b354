package sfu

import (
	"encoding/json"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// command is the outbound shape of §4.1/§6.1.
type command struct {
	ID       uint32       `json:"id"`
	Method   string       `json:"method"`
	Internal internalData `json:"internal,omitempty"`
	Data     interface{}  `json:"data,omitempty"`
}

// inboundMessage covers both reply and event shapes; exactly one of
// (ID!=0) or (Event!="") is populated for any given frame.
type inboundMessage struct {
	ID       uint32          `json:"id"`
	Accepted bool            `json:"accepted"`
	Data     json.RawMessage `json:"data"`
	Error    string          `json:"error"`
	Reason   string          `json:"reason"`

	Event    string `json:"event"`
	TargetID string `json:"targetId"`
}

// Response is the result of a single Request: either an error or a
// raw data payload the caller can Unmarshal into a method-specific
// struct.
type Response struct {
	data []byte
	err  error
}

func (r Response) Data() []byte { return r.data }
func (r Response) Err() error   { return r.err }

func (r Response) Unmarshal(v interface{}) error {
	if r.err != nil {
		return r.err
	}
	if len(r.data) == 0 {
		return nil
	}
	return json.Unmarshal(r.data, v)
}

type pendingRequest struct {
	replyCh chan Response
	sentAt  time.Time
}

// notificationSink receives every parsed event frame, in arrival
// order, for hand-off to the single-threaded Event Bus (§4.1
// "Concurrency contract": event delivery is handed off, handlers never
// run on the I/O thread).
type notificationSink func(event, targetID string, data []byte)

// logSink receives tagged log lines ('D'/'W'/'E'/'X').
type logSink func(tag byte, line string)

const defaultCommandTimeout = 30 * time.Second

// Channel is the command/reply half of the Worker Bus (§4.1): it
// frames outbound commands, correlates inbound replies by id, and
// forwards inbound event notifications to a sink. One Channel exists
// per worker; its outbound-buffer mutex is "each worker has its own
// mutex guarding its outbound buffers" (§5).
type Channel struct {
	logger Logger
	pid    int

	writeMu sync.Mutex
	writer  *frameWriter
	conn    net.Conn

	mu      sync.Mutex
	pending map[uint32]*pendingRequest
	nextID  uint32
	closed  atomic.Bool

	onNotification notificationSink
	onLog          logSink
	onWorkerExit   func()

	commandTimeout time.Duration
	sweepStop      chan struct{}
}

func newChannel(producerConn, consumerConn net.Conn, pid int) *Channel {
	c := &Channel{
		logger:         NewLogger("Channel"),
		pid:            pid,
		writer:         newFrameWriter(producerConn),
		conn:           producerConn,
		pending:        make(map[uint32]*pendingRequest),
		commandTimeout: defaultCommandTimeout,
		sweepStop:      make(chan struct{}),
	}

	go c.readLoop(consumerConn)
	go c.sweepLoop()

	return c
}

// readLoop parses inbound reply/event frames off the worker's reply
// pipe until it closes (worker exit) or a framing violation occurs.
func (c *Channel) readLoop(consumerConn net.Conn) {
	reader := newFrameReader(consumerConn)
	for {
		frame, err := reader.ReadFrame()
		if err != nil {
			c.handleWorkerExit()
			return
		}
		if len(frame) == 0 {
			continue
		}
		// A raw log line is tagged by a single leading ASCII byte and is
		// not JSON; a command/reply/event frame always starts with '{'.
		if frame[0] != '{' {
			if c.onLog != nil {
				c.onLog(frame[0], string(frame[1:]))
			}
			continue
		}

		var msg inboundMessage
		if err := json.Unmarshal(frame, &msg); err != nil {
			c.logger.Error("worker[pid:%d] sent unparseable JSON: %v", c.pid, err)
			c.handleCommError()
			return
		}

		switch {
		case msg.Event != "":
			if c.onNotification != nil {
				c.onNotification(msg.Event, msg.TargetID, msg.Data)
			}
		case msg.ID != 0:
			c.completeRequest(msg.ID, msg)
		default:
			c.logger.Error("worker[pid:%d] sent a frame with neither id nor event", c.pid)
		}
	}
}

func (c *Channel) completeRequest(id uint32, msg inboundMessage) {
	c.mu.Lock()
	pr, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	var resp Response
	if msg.Error != "" {
		resp = Response{err: NewError(ErrWorkerAnswer, msg.Reason)}
	} else {
		resp = Response{data: msg.Data}
	}
	pr.replyCh <- resp
}

// handleWorkerExit completes every pending waiter with WORKER_EXIT
// (§4.1 Failure semantics, §7 WORKER_EXIT).
func (c *Channel) handleWorkerExit() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[uint32]*pendingRequest)
	c.mu.Unlock()

	for _, pr := range pending {
		pr.replyCh <- Response{err: NewError(ErrWorkerExit, "worker process exited")}
	}
	if c.onWorkerExit != nil {
		c.onWorkerExit()
	}
}

// handleCommError treats a framing/protocol violation as fatal to the
// worker (§4.1/§7: WORKER_COMM kills the worker).
func (c *Channel) handleCommError() {
	if c.pid > 0 {
		_ = syscall.Kill(c.pid, syscall.SIGINT)
	}
	c.handleWorkerExit()
}

// sweepLoop is the 1 Hz background sweeper that times out stale
// waiters (§4.1, §5 Cancellation and timeouts).
func (c *Channel) sweepLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweepOnce()
		case <-c.sweepStop:
			return
		}
	}
}

func (c *Channel) sweepOnce() {
	now := time.Now()
	var expired []*pendingRequest

	c.mu.Lock()
	for id, pr := range c.pending {
		if now.Sub(pr.sentAt) >= c.commandTimeout {
			expired = append(expired, pr)
			delete(c.pending, id)
		}
	}
	c.mu.Unlock()

	for _, pr := range expired {
		pr.replyCh <- Response{err: NewError(ErrWorkerCommandTimeout, "command timed out")}
	}
}

// Request sends a command and blocks until the reply arrives, the
// worker exits, or the command timeout expires (send_and_wait, §5).
// data may be nil.
func (c *Channel) Request(method string, internal internalData, data ...interface{}) Response {
	if c.closed.Load() {
		return Response{err: NewError(ErrWorkerExit, "worker already closed")}
	}

	var payload interface{}
	if len(data) > 0 {
		payload = data[0]
	}

	id := atomic.AddUint32(&c.nextID, 1)
	if id == 0 {
		id = atomic.AddUint32(&c.nextID, 1)
	}

	pr := &pendingRequest{replyCh: make(chan Response, 1), sentAt: time.Now()}
	c.mu.Lock()
	c.pending[id] = pr
	c.mu.Unlock()

	cmd := command{ID: id, Method: method, Internal: internal, Data: payload}
	raw, err := json.Marshal(cmd)
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return Response{err: NewError(ErrInvalidArgs, err.Error())}
	}

	c.writeMu.Lock()
	werr := c.writer.WriteFrame(raw)
	c.writeMu.Unlock()
	if werr != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return Response{err: NewError(ErrWorkerComm, werr.Error())}
	}

	return <-pr.replyCh
}

func (c *Channel) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	close(c.sweepStop)
	c.conn.Close()

	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[uint32]*pendingRequest)
	c.mu.Unlock()
	for _, pr := range pending {
		pr.replyCh <- Response{err: NewError(ErrWorkerExit, "worker closed")}
	}
}
