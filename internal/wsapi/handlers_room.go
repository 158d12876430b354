package wsapi

import (
	uuid "github.com/satori/go.uuid"

	"github.com/wirow-io/mediaserver/internal/room"
)

// registerHandlers wires every §4.8 command into the dispatcher.
func registerHandlers(d *Dispatcher) {
	d.Register("ping", handlePing)
	d.Register("room_create", handleRoomCreate)
	d.Register("room_join", handleRoomJoin)
	d.Register("room_leave", handleRoomLeave)
	d.Register("room_message", handleRoomMessage)
	d.Register("room_messages", handleRoomMessages)
	d.Register("room_info_get", handleRoomInfoGet)
	d.Register("room_info_set", handleRoomInfoSet)
	d.Register("member_info_set", handleMemberInfoSet)
	d.Register("recording", handleRecording)
	d.Register("whiteboard_open", handleWhiteboardOpen)
	d.Register("history_rooms_remove", handleHistoryRoomsRemove)

	d.Register("rtp_capabilities", handleRtpCapabilities)
	d.Register("transports_init", handleTransportsInit)
	d.Register("transport_connect", handleTransportConnect)
	d.Register("transport_produce", handleTransportProduce)
	d.Register("transport_restart_ice", handleTransportRestartIce)
	d.Register("producer_close", handleProducerClose)
	d.Register("producer_pause", handleProducerPause)
	d.Register("producer_resume", handleProducerResume)
	d.Register("consumer_pause", handleConsumerPause)
	d.Register("consumer_resume", handleConsumerResume)
	d.Register("consumer_set_priority", handleConsumerSetPriority)
	d.Register("consumer_set_preferred_layers", handleConsumerSetPreferredLayers)
	d.Register("acquire_room_streams", handleAcquireRoomStreams)
}

func handlePing(conn *Connection, frame map[string]interface{}) (map[string]interface{}, error) {
	return map[string]interface{}{"cmd": "pong"}, nil
}

// handleRoomCreate implements room_create (§4.7, §4.8). uuid is the
// caller's persistent room identity; cid is this session's identity.
// A prior live document for the same uuid is archived first (§4.7
// "On new-session creation of a same-uuid room").
func handleRoomCreate(conn *Connection, frame map[string]interface{}) (map[string]interface{}, error) {
	ownerID := stringField(frame, "user_id")
	if ownerID == "" {
		return nil, errInvalidInput("user_id required")
	}

	roomUUID := stringField(frame, "uuid")
	if roomUUID == "" {
		roomUUID = uuid.NewV4().String()
	}
	cid := uuid.NewV4().String()
	name := stringField(frame, "name")

	var flagNames []string
	decodeField(frame, "flags", &flagNames)
	flags := make([]room.Flag, 0, len(flagNames))
	for _, f := range flagNames {
		flags = append(flags, room.Flag(f))
	}

	if conn.server.store != nil {
		if prior, ok, err := conn.server.store.FindRoomByUUID(roomUUID); err == nil && ok && !prior.Session {
			_ = room.ArchivePriorSession(conn.server.store, prior)
		}
	}

	worker, err := conn.server.lb.PickWorker()
	if err != nil {
		return nil, err
	}
	router, err := worker.CreateRouter(conn.server.mediaCodecs)
	if err != nil {
		return nil, err
	}

	r, err := room.NewRoom(room.Options{
		UUID:        roomUUID,
		Cid:         cid,
		Name:        name,
		Owner:       ownerID,
		Flags:       flags,
		Router:      router,
		Store:       conn.server.store,
		Broadcaster: conn.server,
		TaskPool:    conn.server.taskPool,
		OnClosed:    conn.server.rooms.Remove,
	})
	if err != nil {
		return nil, err
	}
	conn.server.rooms.Add(r)

	return map[string]interface{}{"cid": cid, "uuid": roomUUID}, nil
}

func handleRoomJoin(conn *Connection, frame map[string]interface{}) (map[string]interface{}, error) {
	cid := stringField(frame, "cid")
	r, ok := conn.server.rooms.Get(cid)
	if !ok {
		return nil, errRoomNotFound()
	}

	userID := stringField(frame, "user_id")
	if userID == "" {
		return nil, errInvalidInput("user_id required")
	}
	memberUUID := stringField(frame, "uuid")
	if memberUUID == "" {
		memberUUID = uuid.NewV4().String()
	}
	name := stringField(frame, "name")

	m := room.NewMember(conn.sessionID, userID, memberUUID, name, r.Router().RtpCapabilities(), conn.server.taskPool)
	if err := r.Join(m); err != nil {
		return nil, err
	}
	conn.setMembership(r, m)
	conn.userID = userID

	visible := r.VisibleMembers(m)
	members := make([]map[string]interface{}, 0, len(visible))
	for _, other := range visible {
		members = append(members, map[string]interface{}{
			"user_id": other.UserID, "uuid": other.UUID, "name": other.DisplayName(),
		})
	}

	return map[string]interface{}{
		"cid": r.Cid(), "uuid": r.UUID(), "name": r.Name(), "owner": r.Owner(),
		"members": members,
	}, nil
}

func handleRoomLeave(conn *Connection, frame map[string]interface{}) (map[string]interface{}, error) {
	r, m := conn.membership()
	if r == nil || m == nil {
		return nil, errNotMember()
	}
	r.Leave(m)
	conn.clearMembership()
	return nil, nil
}

func handleRoomMessage(conn *Connection, frame map[string]interface{}) (map[string]interface{}, error) {
	r, m := conn.membership()
	if r == nil || m == nil {
		return nil, errNotMember()
	}
	var tree room.MessageNode
	if err := decodeField(frame, "message", &tree); err != nil {
		return nil, errInvalidInput("malformed message")
	}
	recipient := stringField(frame, "recipient_user_id")
	if err := r.SendMessage(m, recipient, tree); err != nil {
		return nil, err
	}
	return nil, nil
}

func handleRoomMessages(conn *Connection, frame map[string]interface{}) (map[string]interface{}, error) {
	r, _ := conn.membership()
	if r == nil {
		return nil, errNotMember()
	}
	return map[string]interface{}{"messages": r.Messages()}, nil
}

func handleRoomInfoGet(conn *Connection, frame map[string]interface{}) (map[string]interface{}, error) {
	r, _ := conn.membership()
	if r == nil {
		return nil, errNotMember()
	}
	return map[string]interface{}{"cid": r.Cid(), "uuid": r.UUID(), "name": r.Name(), "owner": r.Owner()}, nil
}

func handleRoomInfoSet(conn *Connection, frame map[string]interface{}) (map[string]interface{}, error) {
	r, m := conn.membership()
	if r == nil || m == nil {
		return nil, errNotMember()
	}
	if err := r.Rename(m.UserID, stringField(frame, "name")); err != nil {
		return nil, err
	}
	return nil, nil
}

func handleMemberInfoSet(conn *Connection, frame map[string]interface{}) (map[string]interface{}, error) {
	r, m := conn.membership()
	if r == nil || m == nil {
		return nil, errNotMember()
	}
	m.SetDisplayName(stringField(frame, "name"))
	r.Announce(m, room.H{"cmd": "member_info", "event": "updated", "user_id": m.UserID, "name": m.DisplayName()})
	return nil, nil
}

func handleRecording(conn *Connection, frame map[string]interface{}) (map[string]interface{}, error) {
	r, m := conn.membership()
	if r == nil || m == nil {
		return nil, errNotMember()
	}
	if m.UserID != r.Owner() {
		return nil, errForbidden()
	}
	if err := r.SetRecording(boolField(frame, "on")); err != nil {
		return nil, err
	}
	return nil, nil
}

func handleWhiteboardOpen(conn *Connection, frame map[string]interface{}) (map[string]interface{}, error) {
	r, m := conn.membership()
	if r == nil || m == nil {
		return nil, errNotMember()
	}
	if err := r.WhiteboardOpen(m, stringField(frame, "link")); err != nil {
		return nil, err
	}
	return nil, nil
}

// handleHistoryRoomsRemove drops a closed room's persisted document
// from history. A still-live room (found in the in-memory Manager)
// cannot be removed this way.
func handleHistoryRoomsRemove(conn *Connection, frame map[string]interface{}) (map[string]interface{}, error) {
	cid := stringField(frame, "cid")
	if cid == "" {
		return nil, errInvalidInput("cid required")
	}
	if _, ok := conn.server.rooms.Get(cid); ok {
		return nil, errForbidden()
	}
	if conn.server.store == nil {
		return nil, nil
	}
	if err := conn.server.store.DeleteRoom(cid); err != nil {
		return nil, err
	}
	return nil, nil
}
