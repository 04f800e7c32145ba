// Package apperror carries the error kinds the HTTP layer maps onto status
// codes. Services return *Error values; anything else is treated as internal.
package apperror

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

type Kind string

const (
	KindValidation    Kind = "validation"
	KindMissingResume Kind = "missing_resume"
	KindJobNotFound   Kind = "job_not_found"
	KindNotFound      Kind = "not_found"
	KindDuplicate     Kind = "duplicate_application"
	KindInvalidStatus Kind = "invalid_status"
	KindBadRequest    Kind = "bad_request"
	KindAuth          Kind = "auth"
	KindForbidden     Kind = "forbidden"
	KindStorage       Kind = "storage"
	KindInternal      Kind = "internal"
)

type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string // offending input fields, validation only
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Cause() error { return e.cause }

func (e *Error) Unwrap() error { return e.cause }

// Is matches on Kind so callers can write errors.Is(err, apperror.Duplicate).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	Validation    = &Error{Kind: KindValidation}
	MissingResume = &Error{Kind: KindMissingResume}
	JobNotFound   = &Error{Kind: KindJobNotFound}
	NotFound      = &Error{Kind: KindNotFound}
	Duplicate     = &Error{Kind: KindDuplicate}
	InvalidStatus = &Error{Kind: KindInvalidStatus}
	BadRequest    = &Error{Kind: KindBadRequest}
	Auth          = &Error{Kind: KindAuth}
	Forbidden     = &Error{Kind: KindForbidden}
	Storage       = &Error{Kind: KindStorage}
)

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, cause: errors.WithStack(err)}
}

func NewValidation(msg string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

func NewStorage(err error, msg string) *Error {
	return Wrap(KindStorage, err, msg)
}

// As extracts the *Error from a chain, falling back to an internal error.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Message: "internal server error", cause: err}
}

func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindMissingResume, KindDuplicate, KindInvalidStatus, KindBadRequest:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound, KindJobNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
