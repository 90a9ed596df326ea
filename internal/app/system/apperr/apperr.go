// internal/app/system/apperr/apperr.go
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindForbidden  Kind = "forbidden"
	KindInternal   Kind = "internal"
)

// Conflict reasons. A precondition conflict means the caller's version token
// is stale; a source mismatch means a member is no longer where the caller
// last saw them; a concurrent update means an unconditional write kept losing
// the commit race.
const (
	ReasonPrecondition   = "precondition_failed"
	ReasonSourceMismatch = "source_mismatch"
	ReasonConcurrent     = "concurrent_update"
)

// Sentinels for errors.Is checks against a Kind.
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrForbidden  = &Error{Kind: KindForbidden}
	ErrInternal   = &Error{Kind: KindInternal}
)

// Error is the single error type returned across the roster engine.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so errors.Is(err, ErrConflict) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Reason == "" || t.Reason == e.Reason)
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds a conflict error with the given reason.
func Conflict(reason, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected failure (usually from the store).
func Internal(err error, msg string) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsConflict reports whether err is a conflict of any reason.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// HTTPStatus maps an error to its response status code.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		if e.Reason == ReasonPrecondition {
			return http.StatusPreconditionFailed
		}
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// FromStatus rebuilds an error from an HTTP status, used by API clients.
func FromStatus(status int, reason, msg string) *Error {
	var k Kind
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		k = KindValidation
	case http.StatusNotFound:
		k = KindNotFound
	case http.StatusForbidden, http.StatusUnauthorized:
		k = KindForbidden
	case http.StatusConflict:
		k = KindConflict
		if reason == "" {
			reason = ReasonSourceMismatch
		}
	case http.StatusPreconditionFailed:
		k = KindConflict
		reason = ReasonPrecondition
	default:
		k = KindInternal
	}
	return &Error{Kind: k, Reason: reason, Message: msg}
}

// Body is the JSON error envelope.
type Body struct {
	Error BodyError `json:"error"`
}

type BodyError struct {
	Kind    Kind   `json:"kind"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

// WriteJSON writes err as a JSON error envelope. Internal errors never leak
// their wrapped cause to the client.
func WriteJSON(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	body := Body{Error: BodyError{Kind: KindInternal, Message: "internal error"}}
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		body.Error = BodyError{Kind: e.Kind, Reason: e.Reason, Message: e.Message}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
