package sfu

import "fmt"

// ErrorKind is the closed taxonomy of §7: a token, not a Go type, so
// callers can switch on it the same way the wire protocol's "error"
// field is a token.
type ErrorKind string

const (
	ErrInvalidArgs             ErrorKind = "INVALID_ARGS"
	ErrInvalidState            ErrorKind = "INVALID_STATE"
	ErrNotExists               ErrorKind = "NOT_EXISTS"
	ErrWorkerSpawn             ErrorKind = "WORKER_SPAWN"
	ErrWorkerComm              ErrorKind = "WORKER_COMM"
	ErrWorkerCommandTimeout    ErrorKind = "WORKER_COMMAND_TIMEOUT"
	ErrWorkerExit              ErrorKind = "WORKER_EXIT"
	ErrWorkerAnswer            ErrorKind = "WORKER_ANSWER"
	ErrWorkerUnexpectedData    ErrorKind = "WORKER_UNEXPECTED_DATA"
	ErrInvalidRtpParameters    ErrorKind = "INVALID_RTP_PARAMETERS"
	ErrTooManyDynamicPayloads  ErrorKind = "TOO_MANY_DYNAMIC_PAYLOADS"
	ErrRequiredDirectTransport ErrorKind = "REQUIRED_DIRECT_TRANSPORT"
	ErrResourceNotFound        ErrorKind = "RESOURCE_NOT_FOUND"
)

// Error is the concrete error type carried across the control plane.
// Reason is free text (e.g. the worker's "reason" field); Kind is the
// stable token used for programmatic dispatch and for surfacing to
// WebSocket clients via the error.* token vocabulary.
type Error struct {
	Kind   ErrorKind
	Reason string
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func NewError(kind ErrorKind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

func NewErrorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Is makes errors.Is match any *Error target of the same Kind,
// whatever its Reason, e.g. errors.Is(err, sfu.NewError(sfu.ErrNotExists, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}
