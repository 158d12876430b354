package wsapi

import (
	"testing"

	"github.com/wirow-io/mediaserver/internal/sfu"
)

func TestDispatchUnknownCommand(t *testing.T) {
	d := newDispatcher()
	resp := d.Dispatch(nil, map[string]interface{}{"cmd": "nope"})
	if resp["error"] != "error.invalid_input" {
		t.Fatalf("expected error.invalid_input for an unregistered command, got %v", resp)
	}
}

func TestDispatchEchoesHook(t *testing.T) {
	d := newDispatcher()
	d.Register("ping", func(conn *Connection, frame map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"pong": true}, nil
	})
	resp := d.Dispatch(nil, map[string]interface{}{"cmd": "ping", "hook": "abc123"})
	if resp["hook"] != "abc123" {
		t.Fatalf("expected hook to be echoed back, got %v", resp)
	}
	if resp["pong"] != true {
		t.Fatalf("expected handler payload to be preserved, got %v", resp)
	}
}

func TestDispatchHandlerErrorShapesErrorToken(t *testing.T) {
	d := newDispatcher()
	d.Register("boom", func(conn *Connection, frame map[string]interface{}) (map[string]interface{}, error) {
		return nil, sfu.NewError(sfu.ErrResourceNotFound, "gone")
	})
	resp := d.Dispatch(nil, map[string]interface{}{"cmd": "boom", "hook": "h1"})
	if resp["error"] != "error.room_not_found" {
		t.Fatalf("expected NOT_EXISTS-family errors to map onto error.room_not_found, got %v", resp)
	}
	if resp["hook"] != "h1" {
		t.Fatalf("expected hook to be echoed even on error, got %v", resp)
	}
}

func TestErrorTokenMapsTokenErrorsVerbatim(t *testing.T) {
	if got := errorToken(errNotMember()); got != "error.not_a_room_member" {
		t.Fatalf("errorToken(errNotMember()) = %q", got)
	}
	if got := errorToken(errForbidden()); got != "error.insufficient_permissions" {
		t.Fatalf("errorToken(errForbidden()) = %q", got)
	}
}

func TestErrorTokenUnspecifiedFallback(t *testing.T) {
	if got := errorToken(sfu.NewError(sfu.ErrWorkerCommandTimeout, "timeout")); got != "error.unspecified" {
		t.Fatalf("errorToken(WORKER_COMMAND_TIMEOUT) = %q, want error.unspecified", got)
	}
}
