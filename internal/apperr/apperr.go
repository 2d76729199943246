// Package apperr defines the structured error kinds shared by the workflow
// services and the HTTP layer.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies a failure so callers can map it to status codes and
// user-facing text uniformly.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindNotFound         Kind = "not_found"
	KindState            Kind = "state"
	KindDeadlineExpired  Kind = "deadline_expired"
	KindCapacityExceeded Kind = "capacity_exceeded"
	KindDuplicate        Kind = "duplicate"
	KindPersistence      Kind = "persistence"
	KindAuthorization    Kind = "authorization"
)

// FieldError is used to indicate an error with a specific input field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// Error is a failure with a kind and a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality, so errors.Is(err, apperr.ErrDuplicate) matches any
// duplicate error regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrValidation       = &Error{Kind: KindValidation}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrState            = &Error{Kind: KindState}
	ErrDeadlineExpired  = &Error{Kind: KindDeadlineExpired}
	ErrCapacityExceeded = &Error{Kind: KindCapacityExceeded}
	ErrDuplicate        = &Error{Kind: KindDuplicate}
	ErrPersistence      = &Error{Kind: KindPersistence}
	ErrAuthorization    = &Error{Kind: KindAuthorization}
)

func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

func Validation(msg string, fields ...FieldError) error {
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

// Persistence wraps a store failure. The message stays generic; the cause is
// kept for logging only.
func Persistence(err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindPersistence, Message: "terjadi kesalahan pada penyimpanan data", Err: err}
}

// KindOf returns the kind of err. Unknown errors are persistence failures.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindPersistence
}

// HTTPStatus maps a kind to the status code surfaced by the API.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindState, KindDeadlineExpired, KindCapacityExceeded, KindDuplicate:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAuthorization:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
