package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/camden-git/civicregistry/repository"
)

// Kind classifies a service failure for the transport layer.
type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindStale      Kind = "stale"
	KindNotFound   Kind = "not_found"
	KindForbidden  Kind = "forbidden"
	KindInternal   Kind = "internal"
)

// Error is returned by every service operation. Message is safe to show to clients;
// Err holds the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func validationf(format string, args ...interface{}) *Error {
	return newError(KindValidation, nil, format, args...)
}

func conflictf(format string, args ...interface{}) *Error {
	return newError(KindConflict, nil, format, args...)
}

func notFoundf(format string, args ...interface{}) *Error {
	return newError(KindNotFound, nil, format, args...)
}

func internal(err error, format string, args ...interface{}) *Error {
	return newError(KindInternal, err, format, args...)
}

// IsKind reports whether err is a service error of the given kind.
func IsKind(err error, kind Kind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == kind
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// translate maps store errors to service errors. what names the entity for messages.
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	var se *Error
	switch {
	case errors.As(err, &se):
		return se
	case errors.Is(err, gorm.ErrRecordNotFound):
		return newError(KindNotFound, err, "%s not found", what)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return newError(KindConflict, err, "%s conflicts with an existing record", what)
	case errors.Is(err, repository.ErrStaleVersion):
		return newError(KindStale, err, "%s was modified by another request, reload and retry", what)
	default:
		return internal(err, "failed to process %s", what)
	}
}
