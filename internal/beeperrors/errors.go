// Package beeperrors implements the error taxonomy of §7: wire errors
// (fatal, tear the session down), protocol errors (carry a BEEP reply
// code back to the peer), transport errors (fatal), and user errors
// (local-only, never touch the wire).
package beeperrors

import (
	"context"
	stdErrors "errors"
	"fmt"
)

// fatalMarker is implemented by every error kind that must tear the
// session down (Wire and Transport per §7's propagation policy).
type fatalMarker interface {
	error
	isFatal()
}

// WireError indicates a malformed frame or CMP payload: MalformedFrame,
// FramingError, UnknownCmp, CmpSyntax and friends. Always fatal.
type WireError struct {
	Op  string
	Err error
}

func (e *WireError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("wire error: %s", e.Op)
	}
	return fmt.Sprintf("wire error: %s: %v", e.Op, e.Err)
}
func (e *WireError) Unwrap() error { return e.Err }
func (e *WireError) isFatal()      {}

// TransportError wraps any I/O failure surfaced by the transport
// collaborator (§6). Always fatal.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transport error: %s", e.Op)
	}
	return fmt.Sprintf("transport error: %s: %v", e.Op, e.Err)
}
func (e *TransportError) Unwrap() error { return e.Err }
func (e *TransportError) isFatal()      {}

// ProtocolError is a BEEP-level error that flows back to the peer as an
// ERR frame carrying a CMP `error` element; never fatal on its own.
// Code is one of the reply codes enumerated in §7.
type ProtocolError struct {
	Op   string
	Code int
	Err  error
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("protocol error %d: %s", e.Code, e.Op)
	}
	return fmt.Sprintf("protocol error %d: %s: %v", e.Code, e.Op, e.Err)
}
func (e *ProtocolError) Unwrap() error { return e.Err }

// UserError is a local-side rejection that never touches the wire, e.g.
// an operation on a channel number that is not in the channel table.
type UserError struct {
	Op  string
	Err error
}

func (e *UserError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("user error: %s", e.Op)
	}
	return fmt.Sprintf("user error: %s: %v", e.Op, e.Err)
}
func (e *UserError) Unwrap() error { return e.Err }

// Constructors. Callers are expected to keep layering context with
// fmt.Errorf("...: %w", err) beneath these.
func NewWireError(op string, cause error) error     { return &WireError{Op: op, Err: cause} }
func NewTransportError(op string, cause error) error { return &TransportError{Op: op, Err: cause} }
func NewUserError(op string, cause error) error      { return &UserError{Op: op, Err: cause} }
func NewProtocolError(op string, code int, cause error) error {
	return &ProtocolError{Op: op, Code: code, Err: cause}
}

// IsFatal reports whether err is (or wraps) a Wire or Transport error —
// the two kinds that, per §7's propagation policy, disconnect the
// session and fire every pending callback exactly once.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var fm fatalMarker
	return stdErrors.As(err, &fm)
}

// AsProtocolError reports whether err is (or wraps) a ProtocolError, and
// if so returns its BEEP reply code.
func AsProtocolError(err error) (code int, ok bool) {
	if err == nil {
		return 0, false
	}
	var pe *ProtocolError
	if stdErrors.As(err, &pe) {
		return pe.Code, true
	}
	return 0, false
}

// IsTransportClosed reports whether err indicates the transport was
// closed out from under an in-flight operation: context cancellation,
// deadline expiry, or any TransportError.
func IsTransportClosed(err error) bool {
	if err == nil {
		return false
	}
	if stdErrors.Is(err, context.Canceled) || stdErrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te *TransportError
	return stdErrors.As(err, &te)
}
