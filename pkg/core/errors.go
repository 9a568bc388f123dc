package core

import (
	"fmt"
)

// Error is the engine-wide error type. Kind decides how the caller reacts:
// some kinds are terminal for the session, some are dropped per-frame, and
// some are swallowed with the affected data retained for retry.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`
	Op      string    `json:"op,omitempty"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Op, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorKind categorizes errors.
type ErrorKind string

const (
	// ErrPermission: microphone/device access denied. Terminal and
	// user-actionable; never retried automatically.
	ErrPermission ErrorKind = "permission_error"
	// ErrTransport: the streaming connection was lost or rejected.
	// Terminal for the session; recoverable only by a full restart.
	ErrTransport ErrorKind = "transport_error"
	// ErrPlaybackDecode: a malformed inbound audio frame. The frame is
	// dropped and the session continues.
	ErrPlaybackDecode ErrorKind = "playback_decode_error"
	// ErrPersistence: a flush or save call failed. The affected turns stay
	// buffered and are retried at the next flush boundary.
	ErrPersistence ErrorKind = "persistence_error"
	// ErrReport: report generation failed. Non-fatal; the session still
	// completes because the interview data is already durably saved.
	ErrReport ErrorKind = "report_error"
	// ErrInvalidRequest: the caller passed something unusable.
	ErrInvalidRequest ErrorKind = "invalid_request_error"
	// ErrAPI: a collaborator endpoint returned a non-retryable failure.
	ErrAPI ErrorKind = "api_error"
)

// NewPermissionError creates a terminal device-permission error.
func NewPermissionError(message string, err error) *Error {
	return &Error{Kind: ErrPermission, Message: message, Err: err}
}

// NewTransportError creates a terminal transport error for operation op.
func NewTransportError(op, message string, err error) *Error {
	return &Error{Kind: ErrTransport, Op: op, Message: message, Err: err}
}

// NewPlaybackDecodeError creates a droppable per-frame decode error.
func NewPlaybackDecodeError(message string, err error) *Error {
	return &Error{Kind: ErrPlaybackDecode, Message: message, Err: err}
}

// NewPersistenceError creates a retryable persistence error for operation op.
func NewPersistenceError(op string, err error) *Error {
	return &Error{Kind: ErrPersistence, Op: op, Message: "persist failed", Err: err}
}

// NewReportError creates a non-fatal report error.
func NewReportError(err error) *Error {
	return &Error{Kind: ErrReport, Message: "report generation failed", Err: err}
}

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{Kind: ErrInvalidRequest, Message: message}
}

// NewAPIError creates a generic API error.
func NewAPIError(message string) *Error {
	return &Error{Kind: ErrAPI, Message: message}
}

// IsFatal reports whether the error should move the session to its error
// state. Audio-path and persistence errors are handled at the call site.
func (e *Error) IsFatal() bool {
	switch e.Kind {
	case ErrPermission, ErrTransport:
		return true
	default:
		return false
	}
}

// KindOf returns the ErrorKind of err, or "" for foreign errors.
func KindOf(err error) ErrorKind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return ""
}
