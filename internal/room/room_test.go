package room

import (
	"testing"
	"time"

	"github.com/wirow-io/mediaserver/internal/sfu"
)

// newTestRoom builds a Room bypassing NewRoom's router binding, so the
// join/leave/event-log logic (§4.7) can be exercised without spawning
// a real sfu.Router/Worker.
func newTestRoom(flags ...Flag) *Room {
	fl := make(map[Flag]bool, len(flags))
	for _, f := range flags {
		fl[f] = true
	}
	return &Room{
		uuid:        "room-uuid",
		cid:         "room-cid",
		name:        "Test Room",
		owner:       "u1",
		ctime:       time.Now(),
		flags:       fl,
		broadcaster: NoopBroadcaster{},
		idleTimeout: time.Hour,
	}
}

// §8 scenario 5: user U1 creates room X; U2 joins; U2 leaves. The
// events log must read [created, joined(U2), left(U2)] in that order
// (U1 never joins in this test).
func TestRoomJoinLeaveEventLog(t *testing.T) {
	r := newTestRoom(FlagMeeting)
	r.appendEvent(RoomEventCreated, nil)

	u2 := NewMember("ws2", "u2", "uuid-u2", "U2", sfu.RtpCapabilities{}, nil)
	if err := r.Join(u2); err != nil {
		t.Fatalf("Join: %v", err)
	}
	r.Leave(u2)

	msgs := r.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 events (created, joined, left), got %d: %v", len(msgs), msgs)
	}
	if msgs[0][0] != RoomEventCreated {
		t.Fatalf("event 0 = %v, want created", msgs[0])
	}
	if msgs[1][0] != RoomEventJoined || msgs[1][2] != "u2" {
		t.Fatalf("event 1 = %v, want joined for u2", msgs[1])
	}
	if msgs[2][0] != RoomEventLeft || msgs[2][2] != "u2" {
		t.Fatalf("event 2 = %v, want left for u2", msgs[2])
	}

	ts := msgs[0][1].(int64)
	for _, m := range msgs[1:] {
		if m[1].(int64) < ts {
			t.Fatalf("event timestamps must be monotonic non-decreasing: %v", msgs)
		}
		ts = m[1].(int64)
	}
}

func TestRoomLeaveStartsIdleTimerWhenEmpty(t *testing.T) {
	r := newTestRoom(FlagMeeting)
	r.idleTimeout = 10 * time.Millisecond
	u := NewMember("ws1", "u1", "uuid-u1", "U1", sfu.RtpCapabilities{}, nil)
	if err := r.Join(u); err != nil {
		t.Fatalf("Join: %v", err)
	}
	r.Leave(u)

	r.mu.Lock()
	hasTimer := r.idleTimer != nil
	r.mu.Unlock()
	if !hasTimer {
		t.Fatal("expected an idle timer to be armed once the last member leaves")
	}
}

func TestRoomLightVisibilityRestrictsToOwner(t *testing.T) {
	r := newTestRoom(FlagLight)
	owner := NewMember("ws1", "u1", "uuid-u1", "Owner", sfu.RtpCapabilities{}, nil)
	memberA := NewMember("ws2", "u2", "uuid-u2", "A", sfu.RtpCapabilities{}, nil)
	memberB := NewMember("ws3", "u3", "uuid-u3", "B", sfu.RtpCapabilities{}, nil)

	if !r.visibleTo(memberA, owner) {
		t.Fatal("owner must see every member in a LIGHT room")
	}
	if !r.visibleTo(owner, memberA) {
		t.Fatal("a member must see the owner in a LIGHT room")
	}
	if r.visibleTo(memberA, memberB) {
		t.Fatal("two non-owner members must not see each other in a LIGHT room")
	}
}

func TestRoomVisibleMembersRestrictsListInLightRoom(t *testing.T) {
	r := newTestRoom(FlagLight)
	owner := NewMember("ws1", "u1", "uuid-u1", "Owner", sfu.RtpCapabilities{}, nil)
	memberA := NewMember("ws2", "u2", "uuid-u2", "A", sfu.RtpCapabilities{}, nil)
	memberB := NewMember("ws3", "u3", "uuid-u3", "B", sfu.RtpCapabilities{}, nil)
	r.members = []*Member{owner, memberA, memberB}

	visibleToA := r.VisibleMembers(memberA)
	if len(visibleToA) != 2 {
		t.Fatalf("expected memberA to see itself and the owner only, got %d: %v", len(visibleToA), visibleToA)
	}
	for _, m := range visibleToA {
		if m == memberB {
			t.Fatal("memberA must not see memberB in a LIGHT room")
		}
	}

	visibleToOwner := r.VisibleMembers(owner)
	if len(visibleToOwner) != 3 {
		t.Fatalf("expected the owner to see every member, got %d", len(visibleToOwner))
	}
}

func TestRoomMeetingVisibilityIsFlat(t *testing.T) {
	r := newTestRoom(FlagMeeting)
	memberA := NewMember("ws2", "u2", "uuid-u2", "A", sfu.RtpCapabilities{}, nil)
	memberB := NewMember("ws3", "u3", "uuid-u3", "B", sfu.RtpCapabilities{}, nil)
	if !r.visibleTo(memberA, memberB) {
		t.Fatal("in a MEETING room every member must see every other member")
	}
}

func TestRoomRenameOwnerOnly(t *testing.T) {
	r := newTestRoom(FlagMeeting)
	if err := r.Rename("not-owner", "New Name"); err == nil {
		t.Fatal("expected a non-owner rename to be rejected")
	}
	if err := r.Rename("u1", "New Name"); err != nil {
		t.Fatalf("expected the owner's rename to succeed: %v", err)
	}
	if r.Name() != "New Name" {
		t.Fatalf("Name() = %q, want %q", r.Name(), "New Name")
	}
}
