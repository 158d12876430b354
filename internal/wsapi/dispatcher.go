package wsapi

import (
	"github.com/wirow-io/mediaserver/internal/sfu"
)

// HandlerFunc implements one `cmd` of §4.8's command table. It returns
// the payload to merge into the response frame, or an error that
// Dispatch renders as one of the error.* tokens (§7).
type HandlerFunc func(conn *Connection, frame map[string]interface{}) (map[string]interface{}, error)

// Dispatcher is the cmd -> handler registry of §4.8.
type Dispatcher struct {
	handlers map[string]HandlerFunc
}

func newDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

func (d *Dispatcher) Register(cmd string, fn HandlerFunc) {
	d.handlers[cmd] = fn
}

// tokenError carries one of the WS-layer error tokens of §7 that have
// no corresponding sfu.ErrorKind (they describe WS/Room Domain
// concerns, not worker-facing ones).
type tokenError struct {
	token string
}

func (e *tokenError) Error() string { return e.token }

func errRoomNotFound() error           { return &tokenError{"error.room_not_found"} }
func errNotMember() error              { return &tokenError{"error.not_a_room_member"} }
func errForbidden() error              { return &tokenError{"error.insufficient_permissions"} }
func errInvalidInput(reason string) error {
	return &tokenError{"error.invalid_input"}
}

// errorToken renders any error surfaced by a handler as one of the
// fixed tokens of §7. sfu.Error kinds that describe bad input or a
// missing resource map onto the WS vocabulary; everything else is
// unspecified.
func errorToken(err error) string {
	if te, ok := err.(*tokenError); ok {
		return te.token
	}
	if se, ok := err.(*sfu.Error); ok {
		switch se.Kind {
		case sfu.ErrInvalidArgs, sfu.ErrInvalidRtpParameters, sfu.ErrTooManyDynamicPayloads:
			return "error.invalid_input"
		case sfu.ErrNotExists, sfu.ErrResourceNotFound:
			return "error.room_not_found"
		case sfu.ErrInvalidState:
			return "error.invalid_input"
		}
	}
	return "error.unspecified"
}

// Dispatch runs one decoded WS frame through its handler and shapes
// the response, echoing `hook` back per §4.8 ("responses echo hook").
func (d *Dispatcher) Dispatch(conn *Connection, frame map[string]interface{}) map[string]interface{} {
	cmd, _ := frame["cmd"].(string)
	hook := frame["hook"]

	handler, ok := d.handlers[cmd]
	if !ok {
		return withHook(hook, map[string]interface{}{"error": "error.invalid_input"})
	}

	payload, err := handler(conn, frame)
	if err != nil {
		return withHook(hook, map[string]interface{}{"error": errorToken(err)})
	}
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return withHook(hook, payload)
}

func withHook(hook interface{}, m map[string]interface{}) map[string]interface{} {
	if hook != nil {
		m["hook"] = hook
	}
	return m
}
