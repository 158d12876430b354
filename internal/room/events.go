package room

// RoomEvent is one entry of a room's append-only events log (§4.7
// Room history/chat persistence). Kind is the tag of the tuple the
// spec writes as a JSON array (e.g. ["joined", ts, user_id, uuid,
// name]); Args holds everything after the timestamp in that same
// order. RoomEvent itself encodes to JSON as a `{kind, ts, args}`
// object, which is the form stored in RoomDocument.Events; only
// asTuple (used by Room.Messages) produces the `[kind, ts, ...args]`
// array.
type RoomEvent struct {
	Kind string        `json:"kind"`
	Ts   int64         `json:"ts"`
	Args []interface{} `json:"args,omitempty"`
}

// asTuple renders a RoomEvent as the flat `[kind, ts, ...args]` tuple
// §4.7 specifies; Room.Messages returns events in this form.
func (e RoomEvent) asTuple() []interface{} {
	out := make([]interface{}, 0, 2+len(e.Args))
	out = append(out, e.Kind, e.Ts)
	out = append(out, e.Args...)
	return out
}

const (
	RoomEventCreated     = "created"
	RoomEventClosed      = "closed"
	RoomEventRenamed     = "renamed"
	RoomEventJoined      = "joined"
	RoomEventLeft        = "left"
	RoomEventMessage     = "message"
	RoomEventRecStart    = "recstart"
	RoomEventRecStop     = "recstop"
	RoomEventWhiteboard  = "whiteboard"
)

// Broadcaster is the minimal contract Room needs to push unsolicited
// frames at its members; internal/wsapi implements it so internal/room
// never imports the WS layer (§4.8 "handlers may also originate
// unsolicited frames"). Room itself decides which members should see
// a given event (LIGHT/MEETING visibility) and calls SendToMember once
// per recipient.
type Broadcaster interface {
	SendToMember(m *Member, msg interface{})
}

// NoopBroadcaster is used where a Room is constructed without a live
// WS layer (tests, offline tooling).
type NoopBroadcaster struct{}

func (NoopBroadcaster) SendToMember(*Member, interface{}) {}
