// Package apierror maps engine errors onto HTTP responses.
package apierror

import (
	"errors"
	"net/http"

	"github.com/voxprep/voxprep/pkg/core"
)

// Envelope is the JSON error body: {"error": {...}}.
type Envelope struct {
	Error *Body `json:"error"`
}

// Body mirrors core.Error on the wire plus the request id.
type Body struct {
	Kind      core.ErrorKind `json:"kind"`
	Message   string         `json:"message"`
	Code      string         `json:"code,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// Error codes the store layer attaches for status refinement.
const (
	CodeSessionNotFound  = "session_not_found"
	CodeSequenceConflict = "sequence_conflict"
)

// FromError converts any error into a wire body and HTTP status. Unknown
// errors become opaque api_error responses so internals do not leak.
func FromError(err error, requestID string) (*Body, int) {
	var ce *core.Error
	if !errors.As(err, &ce) {
		return &Body{
			Kind:      core.ErrAPI,
			Message:   "internal error",
			RequestID: requestID,
		}, http.StatusInternalServerError
	}
	body := &Body{
		Kind:      ce.Kind,
		Message:   ce.Message,
		Code:      ce.Code,
		RequestID: requestID,
	}
	return body, status(ce)
}

func status(e *core.Error) int {
	switch e.Code {
	case CodeSessionNotFound:
		return http.StatusNotFound
	case CodeSequenceConflict:
		return http.StatusConflict
	}
	switch e.Kind {
	case core.ErrInvalidRequest:
		return http.StatusBadRequest
	case core.ErrPermission:
		return http.StatusForbidden
	case core.ErrReport, core.ErrAPI:
		return http.StatusBadGateway
	case core.ErrPersistence:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
