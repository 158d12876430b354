package room

import (
	"sync"
	"time"

	"github.com/wirow-io/mediaserver/internal/sfu"
)

// Flag is one of the room-shaping flags of §4.7.
type Flag string

const (
	FlagMeeting Flag = "MEETING"
	FlagWebinar Flag = "WEBINAR"
	FlagLight   Flag = "LIGHT"
	FlagALO     Flag = "ALO"
)

// DefaultIdleTimeout is room.idle_timeout_sec's default (§4.7: "a Room
// is closed automatically when its last member leaves and an idle
// grace timer... expires with no rejoin").
const DefaultIdleTimeout = 60 * time.Second

// Room owns a Router 1:1 and a list of Members (§4.7).
type Room struct {
	mu sync.Mutex

	uuid  string
	cid   string
	name  string
	owner string // user_id of the owner
	ctime time.Time
	flags map[Flag]bool

	router *sfu.Router
	members []*Member
	events  []RoomEvent

	whiteboardLogged bool
	recording        bool

	idleTimeout time.Duration
	idleTimer   *time.Timer
	closed      bool

	store       *Store
	broadcaster Broadcaster
	taskPool    *TaskPool
	onClosed    func(cid string)
}

// Options configure a new Room.
type Options struct {
	UUID        string
	Cid         string
	Name        string
	Owner       string
	Flags       []Flag
	Router      *sfu.Router
	Store       *Store
	Broadcaster Broadcaster
	TaskPool    *TaskPool
	IdleTimeout time.Duration
	OnClosed    func(cid string)
}

// NewRoom constructs a Room, persists its `["created", ts]` document,
// and binds it to its Router (§4.7). If a prior document for the same
// uuid exists, the caller is expected to have archived it first via
// ArchivePriorSession.
func NewRoom(opts Options) (*Room, error) {
	flags := make(map[Flag]bool, len(opts.Flags))
	for _, f := range opts.Flags {
		flags[f] = true
	}
	idleTimeout := opts.IdleTimeout
	if idleTimeout == 0 {
		idleTimeout = DefaultIdleTimeout
	}
	broadcaster := opts.Broadcaster
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}

	r := &Room{
		uuid:        opts.UUID,
		cid:         opts.Cid,
		name:        opts.Name,
		owner:       opts.Owner,
		ctime:       time.Now(),
		flags:       flags,
		router:      opts.Router,
		store:       opts.Store,
		broadcaster: broadcaster,
		taskPool:    opts.TaskPool,
		idleTimeout: idleTimeout,
		onClosed:    opts.OnClosed,
	}
	r.router.SetRoom(r)
	r.appendEvent(RoomEventCreated, nil)
	if err := r.persist(); err != nil {
		return nil, err
	}
	return r, nil
}

// ArchivePriorSession implements §4.7 "On new-session creation of a
// same-uuid room": the prior document's uuid/cid are swapped and it is
// flagged session=true, and the result is saved keyed by its new cid
// (the room's uuid) as history.
func ArchivePriorSession(store *Store, prior RoomDocument) error {
	prior.UUID, prior.Cid = prior.Cid, prior.UUID
	prior.Session = true
	return store.SaveRoom(prior)
}

func (r *Room) HasFlag(f Flag) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flags[f]
}

func (r *Room) Cid() string  { return r.cid }
func (r *Room) UUID() string { return r.uuid }
func (r *Room) Router() *sfu.Router { return r.router }

func (r *Room) Name() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.name
}

func (r *Room) Owner() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.owner
}

func (r *Room) Members() []*Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Member(nil), r.members...)
}

// VisibleMembers returns the members of r that observer is allowed to
// see per §4.7's LIGHT/MEETING visibility rule (observer itself is
// always included).
func (r *Room) VisibleMembers(observer *Member) []*Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Member, 0, len(r.members))
	for _, m := range r.members {
		if m == observer || r.visibleTo(m, observer) {
			out = append(out, m)
		}
	}
	return out
}

// MemberByUserID finds a currently-joined member by user id.
func (r *Room) MemberByUserID(userID string) (*Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members {
		if m.UserID == userID {
			return m, true
		}
	}
	return nil, false
}

func (r *Room) appendEvent(kind string, args []interface{}) RoomEvent {
	ev := RoomEvent{Kind: kind, Ts: time.Now().Unix(), Args: args}
	r.events = append(r.events, ev)
	return ev
}

func (r *Room) persist() error {
	if r.store == nil {
		return nil
	}
	return r.store.SaveRoom(RoomDocument{
		UUID: r.uuid, Cid: r.cid, Name: r.name, Owner: r.owner,
		Ctime: r.ctime.Unix(), Events: append([]RoomEvent(nil), r.events...),
	})
}

// visibleTo implements §4.7 "Membership and webinar visibility": in a
// LIGHT room, join/leave/member-list visibility is owner<->member
// only; in a MEETING room every member sees every other member.
func (r *Room) visibleTo(subject, observer *Member) bool {
	if !r.flags[FlagLight] {
		return true
	}
	if subject == observer {
		return true
	}
	return subject.UserID == r.owner || observer.UserID == r.owner
}

// broadcastVisible sends msg to every current member for whom
// visibleTo(aboutMember, member) holds, honoring LIGHT-room visibility
// rules rather than a flat broadcast.
func (r *Room) broadcastVisible(aboutMember *Member, msg interface{}) {
	r.mu.Lock()
	members := append([]*Member(nil), r.members...)
	r.mu.Unlock()
	for _, m := range members {
		if r.visibleTo(aboutMember, m) {
			r.broadcaster.SendToMember(m, msg)
		}
	}
}

// Join adds a Member to the room (§4.7), cancels any pending idle
// timer, logs and persists the `joined` event, and announces the join
// to whichever members LIGHT/MEETING visibility allows to see it.
func (r *Room) Join(m *Member) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return sfu.NewError(sfu.ErrInvalidState, "room is closed")
	}
	if r.idleTimer != nil {
		r.idleTimer.Stop()
		r.idleTimer = nil
	}
	r.members = append(r.members, m)
	r.appendEvent(RoomEventJoined, []interface{}{m.UserID, m.UUID, m.DisplayName()})
	err := r.persist()
	r.mu.Unlock()
	if err != nil {
		return err
	}

	if r.store != nil {
		_ = r.store.SaveJoin(m.UserID, r.cid, time.Now().Unix())
	}

	r.broadcastVisible(m, H{"cmd": "member_info", "event": "joined", "user_id": m.UserID, "uuid": m.UUID, "name": m.DisplayName()})
	return nil
}

// H is a loose JSON object for unsolicited WS frames originated by the
// Room Domain (member_info, GAUGE, ...), mirroring internal/sfu's H at
// the WS boundary rather than importing it (§9 design notes: keep the
// Room Domain free of the worker-IPC JsonValue type).
type H map[string]interface{}

// Leave removes a Member from the room, closes its resources, logs
// `left`, and — if the room is now empty — starts the idle timer that
// auto-closes the room (§4.7).
func (r *Room) Leave(m *Member) {
	r.mu.Lock()
	for i, cur := range r.members {
		if cur == m {
			r.members = append(r.members[:i], r.members[i+1:]...)
			break
		}
	}
	r.appendEvent(RoomEventLeft, []interface{}{m.UserID, m.DisplayName()})
	_ = r.persist()
	empty := len(r.members) == 0
	r.mu.Unlock()

	m.Close()

	r.broadcastVisible(m, H{"cmd": "member_info", "event": "left", "user_id": m.UserID, "name": m.DisplayName()})

	if empty {
		r.mu.Lock()
		if !r.closed {
			r.idleTimer = time.AfterFunc(r.idleTimeout, r.closeIdle)
		}
		r.mu.Unlock()
	}
}

func (r *Room) closeIdle() {
	r.mu.Lock()
	if r.closed || len(r.members) > 0 {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	r.Close()
}

// Rename implements Supplemented feature #1: owner-only guard on
// room_info_set (§4.7, SPEC_FULL §"Supplemented features").
func (r *Room) Rename(requesterUserID, newName string) error {
	r.mu.Lock()
	if requesterUserID != r.owner {
		r.mu.Unlock()
		return sfu.NewError(sfu.ErrInvalidArgs, "only the room owner may rename the room")
	}
	old := r.name
	r.name = newName
	r.appendEvent(RoomEventRenamed, []interface{}{old, newName})
	err := r.persist()
	r.mu.Unlock()
	if err != nil {
		return err
	}
	r.broadcastVisible(nil, H{"cmd": "room_info", "name": newName})
	return nil
}

// SendMessage sanitizes and logs a chat message, then delivers it
// either to a single recipient or broadcasts it to the room (§4.7 Chat
// message handling).
func (r *Room) SendMessage(sender *Member, recipientUserID string, tree MessageNode) error {
	htmlMsg := SanitizeMessage(tree)

	r.mu.Lock()
	r.appendEvent(RoomEventMessage, []interface{}{sender.UserID, sender.DisplayName(), recipientUserID, htmlMsg})
	perr := r.persist()
	r.mu.Unlock()
	if perr != nil {
		return perr
	}

	frame := H{"cmd": "room_message", "user_id": sender.UserID, "name": sender.DisplayName(), "message": htmlMsg}
	if recipientUserID != "" {
		r.mu.Lock()
		members := append([]*Member(nil), r.members...)
		r.mu.Unlock()
		for _, m := range members {
			if m.UserID == recipientUserID {
				r.broadcaster.SendToMember(m, frame)
			}
		}
		return nil
	}
	r.broadcastVisible(sender, frame)
	return nil
}

// Announce lets the WS layer push an unsolicited frame through the
// same LIGHT/MEETING visibility rule as every other room broadcast
// (§4.8 "handlers may also originate unsolicited frames", e.g.
// new_producer notices).
func (r *Room) Announce(aboutMember *Member, msg H) {
	r.broadcastVisible(aboutMember, msg)
}

// Messages renders the events log as the `[kind, ts, ...args]` tuples
// §4.7 specifies on the wire.
func (r *Room) Messages() [][]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]interface{}, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.asTuple()
	}
	return out
}

// SetRecording appends recstart/recstop to the events log (§4.7).
func (r *Room) SetRecording(on bool) error {
	r.mu.Lock()
	if on == r.recording {
		r.mu.Unlock()
		return nil
	}
	r.recording = on
	kind := RoomEventRecStop
	if on {
		kind = RoomEventRecStart
	}
	r.appendEvent(kind, nil)
	err := r.persist()
	r.mu.Unlock()
	return err
}

// WhiteboardOpen implements Supplemented feature #3: the whiteboard
// link is logged only the first time any member opens it.
func (r *Room) WhiteboardOpen(m *Member, link string) error {
	r.mu.Lock()
	if r.whiteboardLogged {
		r.mu.Unlock()
		return nil
	}
	r.whiteboardLogged = true
	r.appendEvent(RoomEventWhiteboard, []interface{}{m.DisplayName(), link})
	err := r.persist()
	r.mu.Unlock()
	if err != nil {
		return err
	}
	if r.store != nil {
		_ = r.store.SaveWhiteboard(Whiteboard{Cid: r.cid, Link: link})
	}
	return nil
}

// CanSend implements Supplemented feature #4: in a WEBINAR room only
// the owner may instantiate a SEND transport.
func (r *Room) CanSend(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.flags[FlagWebinar] {
		return true
	}
	return userID == r.owner
}

// Close tears the room down from the Room side: closes every member,
// closes the Router (whose call back into CloseFromRouter returns at
// once, since the room is already marked closed), appends `closed`,
// and notifies the owner
// manager so it can drop the room from its index.
func (r *Room) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	if r.idleTimer != nil {
		r.idleTimer.Stop()
	}
	members := r.members
	r.members = nil
	r.appendEvent(RoomEventClosed, nil)
	_ = r.persist()
	r.mu.Unlock()

	for _, m := range members {
		m.Close()
	}
	r.router.Close()
	if r.onClosed != nil {
		r.onClosed(r.cid)
	}
}

// CloseFromRouter implements the sfu.roomCloser contract: the Router
// is already tearing itself down (Router.Close or a worker crash), so
// this must not call
// router.Close() again, only close members and persist.
func (r *Room) CloseFromRouter() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	if r.idleTimer != nil {
		r.idleTimer.Stop()
	}
	members := r.members
	r.members = nil
	r.appendEvent(RoomEventClosed, nil)
	_ = r.persist()
	r.mu.Unlock()

	for _, m := range members {
		m.Close()
	}
	if r.onClosed != nil {
		r.onClosed(r.cid)
	}
}

// Manager indexes live rooms by cid, the unit the WS layer and
// persistence key on (§4.7, §6.3).
type Manager struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

func NewManager() *Manager {
	return &Manager{rooms: make(map[string]*Room)}
}

func (mgr *Manager) Add(r *Room) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	mgr.rooms[r.cid] = r
}

func (mgr *Manager) Get(cid string) (*Room, bool) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	r, ok := mgr.rooms[cid]
	return r, ok
}

func (mgr *Manager) Remove(cid string) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	delete(mgr.rooms, cid)
}

func (mgr *Manager) List() []*Room {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	out := make([]*Room, 0, len(mgr.rooms))
	for _, r := range mgr.rooms {
		out = append(out, r)
	}
	return out
}
