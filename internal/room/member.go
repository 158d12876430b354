package room

import (
	"sync"

	"github.com/wirow-io/mediaserver/internal/sfu"
)

// ResourceFlag tags a Member's transport with its direction (§4.7: "a
// vector of {resource, flags} refs where flags identifies transport
// direction (RECV or SEND)").
type ResourceFlag string

const (
	FlagSend ResourceFlag = "SEND"
	FlagRecv ResourceFlag = "RECV"
)

// closer is the minimal contract a Member-owned resource must satisfy;
// every sfu Transport/Producer/Consumer/DataProducer/DataConsumer
// already has a Close() method of this shape.
type closer interface {
	Close()
}

// Member is one participant of a Room (§4.7). It tracks its own
// Transports (by direction flag, per "Flags-based lookup"), its
// Producers (by id, so other members can look them up to Consume), its
// Consumers (by consumer id; HasConsumed scans them by source producer
// id so acquire_room_streams can avoid re-consuming a stream it
// already pulled), and every other
// resource it owns purely for teardown ordering.
type Member struct {
	Wsid            string
	UserID          string
	UUID            string
	RtpCapabilities sfu.RtpCapabilities

	mu           sync.Mutex
	displayName  string
	transports   map[ResourceFlag]*sfu.WebRtcTransport
	producers    map[string]*sfu.Producer
	consumers    map[string]*sfu.Consumer
	others       []closer // insertion order; closed in reverse
	closed       bool
	taskPool     *TaskPool
}

func NewMember(wsid, userID, uuid, displayName string, caps sfu.RtpCapabilities, pool *TaskPool) *Member {
	return &Member{
		Wsid:            wsid,
		UserID:          userID,
		UUID:            uuid,
		displayName:     displayName,
		RtpCapabilities: caps,
		transports:      make(map[ResourceFlag]*sfu.WebRtcTransport),
		producers:       make(map[string]*sfu.Producer),
		consumers:       make(map[string]*sfu.Consumer),
		taskPool:        pool,
	}
}

func (m *Member) DisplayName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.displayName
}

// SetDisplayName implements the §4.8 `member_info_set` command.
func (m *Member) SetDisplayName(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.displayName = name
}

// AddTransport binds a direction-tagged transport to this member
// (§4.7 "Flags-based lookup finds the member's send/recv transport").
func (m *Member) AddTransport(t *sfu.WebRtcTransport, flags ResourceFlag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transports[flags] = t
}

func (m *Member) TransportByFlag(flags ResourceFlag) (*sfu.WebRtcTransport, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transports[flags]
	return t, ok
}

// AddProducer records a Producer so other members can look it up by id
// to Consume it (§4.4.4, §4.8 `acquire_room_streams`).
func (m *Member) AddProducer(p *sfu.Producer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.producers[p.Id()] = p
}

func (m *Member) RemoveProducer(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.producers, id)
}

func (m *Member) ProducerByID(id string) (*sfu.Producer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.producers[id]
	return p, ok
}

func (m *Member) Producers() []*sfu.Producer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*sfu.Producer, 0, len(m.producers))
	for _, p := range m.producers {
		out = append(out, p)
	}
	return out
}

// AddConsumer records a Consumer keyed by its own id, so consumer_*
// commands can look it up with ConsumerByID; HasConsumed finds it by
// the id of the Producer it consumes.
func (m *Member) AddConsumer(c *sfu.Consumer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consumers[c.Id()] = c
}

func (m *Member) RemoveConsumer(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.consumers, id)
}

func (m *Member) ConsumerByID(id string) (*sfu.Consumer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.consumers[id]
	return c, ok
}

// HasConsumed reports whether this member already holds a Consumer of
// producerID, regardless of that Consumer's own id.
func (m *Member) HasConsumed(producerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.consumers {
		if c.ProducerId() == producerID {
			return true
		}
	}
	return false
}

// AddOther tracks a resource (DataProducer, DataConsumer, RtpObserver)
// that must be closed when the member leaves but is not looked up by
// direction flag, producer id, or consumer id.
func (m *Member) AddOther(res closer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.others = append(m.others, res)
}

// Close tears down every resource this member owns: the resources
// added with AddOther in reverse insertion order, then its Consumers,
// then its transports last (closing them cascades to everything still
// attached, including this member's Producers, which are not closed
// directly). Consumers and transports are held in maps, so the order
// among Consumers and among transports is not defined. Each close is
// routed through the task pool and waited for before the next, so the
// Room's own lock is never reentered by a resource's cascade-close
// path (§4.7).
func (m *Member) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	others := m.others
	m.others = nil
	consumers := m.consumers
	m.consumers = nil
	transports := m.transports
	m.transports = nil
	m.producers = nil
	m.mu.Unlock()

	var wg sync.WaitGroup
	closeOne := func(res closer) {
		wg.Add(1)
		m.taskPool.Submit(func() {
			defer wg.Done()
			res.Close()
		})
		wg.Wait()
	}

	for i := len(others) - 1; i >= 0; i-- {
		closeOne(others[i])
	}
	for _, c := range consumers {
		closeOne(c)
	}
	for _, t := range transports {
		closeOne(t)
	}
}
