package room

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// bucket names mirror §6.3's document collections verbatim.
const (
	bucketRooms       = "rooms"
	bucketJoins       = "joins"
	bucketTickets     = "tickets"
	bucketSessions    = "sessions"
	bucketUsers       = "users"
	bucketTasks       = "tasks"
	bucketGauges      = "gauges"
	bucketWhiteboards = "whiteboards"
)

var allBuckets = []string{
	bucketRooms, bucketJoins, bucketTickets, bucketSessions,
	bucketUsers, bucketTasks, bucketGauges, bucketWhiteboards,
}

// Store is the bbolt-backed implementation of the persistence
// boundary §1 declares out of scope for anything beyond a concrete
// KV: one bucket per collection, JSON-encoded documents, string keys
// matching each collection's identifying index from §6.3.
type Store struct {
	db *bolt.DB
}

func OpenStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(b)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) put(bucket, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Put([]byte(key), data)
	})
}

func (s *Store) get(bucket, key string, v interface{}) (bool, error) {
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucket)).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, v)
	})
	return found, err
}

func (s *Store) delete(bucket, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Delete([]byte(key))
	})
}

func (s *Store) forEach(bucket string, fn func(key string, data []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucket)).ForEach(func(k, v []byte) error {
			return fn(string(k), v)
		})
	})
}

// RoomDocument is the `rooms` collection shape of §4.7: "{uuid, cid,
// name, owner, ctime, events[]}". Session stands in for the
// original's "session=true" archival flag (§4.7 "On new-session
// creation...").
type RoomDocument struct {
	UUID    string      `json:"uuid"`
	Cid     string      `json:"cid"`
	Name    string      `json:"name"`
	Owner   string      `json:"owner"`
	Ctime   int64       `json:"ctime"`
	Events  []RoomEvent `json:"events"`
	Session bool        `json:"session,omitempty"`
}

// SaveRoom upserts a room document keyed by cid (§6.3: "rooms (uuid
// unique, cid)" — cid is the primary storage key here, uuid is the
// cross-session identity carried across archived documents).
func (s *Store) SaveRoom(doc RoomDocument) error {
	return s.put(bucketRooms, doc.Cid, doc)
}

func (s *Store) GetRoom(cid string) (RoomDocument, bool, error) {
	var doc RoomDocument
	ok, err := s.get(bucketRooms, cid, &doc)
	return doc, ok, err
}

func (s *Store) DeleteRoom(cid string) error {
	return s.delete(bucketRooms, cid)
}

// FindRoomByUUID scans the rooms bucket for the live (non-archived)
// document carrying uuid. Acceptable for this collection's expected
// cardinality; a production deployment would add a secondary index.
func (s *Store) FindRoomByUUID(uuid string) (RoomDocument, bool, error) {
	var found RoomDocument
	ok := false
	err := s.forEach(bucketRooms, func(_ string, data []byte) error {
		var doc RoomDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
		if doc.UUID == uuid && !doc.Session {
			found = doc
			ok = true
		}
		return nil
	})
	return found, ok, err
}

// joinKey implements the original_source-resolved dedup key of
// SPEC_FULL's Supplemented features #2.
func joinKey(userID, roomCid string) string {
	return userID + ":" + roomCid
}

func (s *Store) SaveJoin(userID, roomCid string, ts int64) error {
	return s.put(bucketJoins, joinKey(userID, roomCid), ts)
}

func (s *Store) HasJoined(userID, roomCid string) (bool, error) {
	var ts int64
	return s.get(bucketJoins, joinKey(userID, roomCid), &ts)
}

// Ticket is a short-lived WS handshake credential (§4.8, §6.3: "tickets
// (name unique) — WS tickets, TTL via sweeper").
type Ticket struct {
	Value     string `json:"value"`
	SessionID string `json:"sessionId"`
	ExpiresAt int64  `json:"expiresAt"`
}

func (s *Store) SaveTicket(t Ticket) error {
	return s.put(bucketTickets, t.Value, t)
}

func (s *Store) TakeTicket(value string) (Ticket, bool, error) {
	var t Ticket
	ok, err := s.get(bucketTickets, value, &t)
	if err != nil || !ok {
		return Ticket{}, ok, err
	}
	// Single-use: delete regardless of outcome once resolved (§4.8:
	// "the server resolves it back to the session id, drops the
	// tickets row").
	if err := s.delete(bucketTickets, value); err != nil {
		return t, true, err
	}
	return t, true, nil
}

// SweepExpiredTickets drops every ticket whose TTL has elapsed.
func (s *Store) SweepExpiredTickets(now int64) error {
	var expired []string
	err := s.forEach(bucketTickets, func(key string, data []byte) error {
		var t Ticket
		if err := json.Unmarshal(data, &t); err != nil {
			return err
		}
		if t.ExpiresAt <= now {
			expired = append(expired, key)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, key := range expired {
		if err := s.delete(bucketTickets, key); err != nil {
			return err
		}
	}
	return nil
}

type Session struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Ts     int64  `json:"ts"`
}

func (s *Store) SaveSession(sess Session) error {
	return s.put(bucketSessions, sess.ID, sess)
}

func (s *Store) GetSession(id string) (Session, bool, error) {
	var sess Session
	ok, err := s.get(bucketSessions, id, &sess)
	return sess, ok, err
}

type User struct {
	Name  string `json:"name"`
	UUID  string `json:"uuid"`
	Ctime int64  `json:"ctime"`
}

func (s *Store) SaveUser(u User) error {
	return s.put(bucketUsers, u.Name, u)
}

func (s *Store) GetUser(name string) (User, bool, error) {
	var u User
	ok, err := s.get(bucketUsers, name, &u)
	return u, ok, err
}

// Task is a persistent deferred job, e.g. recording post-processing
// (§6.3: "tasks (hook)").
type Task struct {
	Hook    string          `json:"hook"`
	Payload json.RawMessage `json:"payload"`
	Ctime   int64           `json:"ctime"`
}

func (s *Store) SaveTask(t Task) error {
	return s.put(bucketTasks, t.Hook, t)
}

func (s *Store) DeleteTask(hook string) error {
	return s.delete(bucketTasks, hook)
}

// Gauge is a time-stamped {t,g,l} telemetry triple (§6.3).
type Gauge struct {
	T int64   `json:"t"`
	G string  `json:"g"`
	L float64 `json:"l"`
}

func (s *Store) SaveGauge(g Gauge) error {
	return s.put(bucketGauges, fmt.Sprintf("%020d", g.T), g)
}

type Whiteboard struct {
	Cid  string `json:"cid"`
	Link string `json:"link"`
}

func (s *Store) SaveWhiteboard(w Whiteboard) error {
	return s.put(bucketWhiteboards, w.Cid, w)
}

func (s *Store) GetWhiteboard(cid string) (Whiteboard, bool, error) {
	var w Whiteboard
	ok, err := s.get(bucketWhiteboards, cid, &w)
	return w, ok, err
}
