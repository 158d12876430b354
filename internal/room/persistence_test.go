package room

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.db")
	store, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// §8 round-trip property: a ticket redeems exactly once; a second
// redemption of the same value fails.
func TestTicketSingleUse(t *testing.T) {
	store := newTestStore(t)
	ticket := Ticket{Value: "tkt-1", SessionID: "sess-1", ExpiresAt: 9_999_999_999}
	if err := store.SaveTicket(ticket); err != nil {
		t.Fatalf("SaveTicket: %v", err)
	}

	got, ok, err := store.TakeTicket("tkt-1")
	if err != nil || !ok {
		t.Fatalf("expected first TakeTicket to succeed, got ok=%v err=%v", ok, err)
	}
	if got.SessionID != "sess-1" {
		t.Fatalf("SessionID = %q, want sess-1", got.SessionID)
	}

	_, ok, err = store.TakeTicket("tkt-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected a second redemption of the same ticket to miss (UNKNOWN_TICKET_ID)")
	}
}

func TestSweepExpiredTickets(t *testing.T) {
	store := newTestStore(t)
	if err := store.SaveTicket(Ticket{Value: "expired", SessionID: "s1", ExpiresAt: 100}); err != nil {
		t.Fatalf("SaveTicket: %v", err)
	}
	if err := store.SaveTicket(Ticket{Value: "fresh", SessionID: "s2", ExpiresAt: 9_999_999_999}); err != nil {
		t.Fatalf("SaveTicket: %v", err)
	}

	if err := store.SweepExpiredTickets(1000); err != nil {
		t.Fatalf("SweepExpiredTickets: %v", err)
	}

	if _, ok, _ := store.TakeTicket("expired"); ok {
		t.Fatal("expected the expired ticket to have been swept")
	}
	if _, ok, _ := store.TakeTicket("fresh"); !ok {
		t.Fatal("expected the unexpired ticket to survive the sweep")
	}
}

func TestJoinKeyDistinguishesRoomsPerUser(t *testing.T) {
	store := newTestStore(t)
	if err := store.SaveJoin("u1", "room-a", 1); err != nil {
		t.Fatalf("SaveJoin: %v", err)
	}
	if ok, err := store.HasJoined("u1", "room-a"); err != nil || !ok {
		t.Fatalf("expected HasJoined(u1, room-a) to be true, got ok=%v err=%v", ok, err)
	}
	if ok, err := store.HasJoined("u1", "room-b"); err != nil || ok {
		t.Fatalf("expected HasJoined(u1, room-b) to be false, got ok=%v err=%v", ok, err)
	}
}

func TestArchivePriorSessionSwapsUUIDAndCid(t *testing.T) {
	store := newTestStore(t)
	prior := RoomDocument{UUID: "room-uuid", Cid: "cid-1", Name: "R", Owner: "u1"}

	if err := ArchivePriorSession(store, prior); err != nil {
		t.Fatalf("ArchivePriorSession: %v", err)
	}

	archived, ok, err := store.GetRoom("room-uuid")
	if err != nil || !ok {
		t.Fatalf("expected the archived document to be stored under its swapped cid, ok=%v err=%v", ok, err)
	}
	if !archived.Session {
		t.Fatal("expected the archived document to be flagged session=true")
	}
	if archived.UUID != "cid-1" {
		t.Fatalf("archived.UUID = %q, want the original cid %q", archived.UUID, "cid-1")
	}

	if _, ok, _ := store.FindRoomByUUID("room-uuid"); ok {
		t.Fatal("an archived (session=true) document must not be returned by FindRoomByUUID")
	}
}
