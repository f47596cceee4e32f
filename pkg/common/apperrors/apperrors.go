package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindBadRequest
	KindState
	KindExternal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindBadRequest:
		return "bad_request"
	case KindState:
		return "state"
	case KindExternal:
		return "external_failure"
	default:
		return "internal"
	}
}

// Error attaches a Kind to an underlying reason.
type Error struct {
	Kind   Kind
	reason error
}

func (e *Error) Error() string {
	return e.reason.Error()
}

func (e *Error) Unwrap() error {
	return e.reason
}

func New(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, reason: fmt.Errorf(format, args...)}
}

func NotFound(format string, args ...interface{}) error {
	return New(KindNotFound, format, args...)
}

func BadRequest(format string, args ...interface{}) error {
	return New(KindBadRequest, format, args...)
}

func State(format string, args ...interface{}) error {
	return New(KindState, format, args...)
}

func External(format string, args ...interface{}) error {
	return New(KindExternal, format, args...)
}

func Internal(format string, args ...interface{}) error {
	return New(KindInternal, format, args...)
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindBadRequest:
		return http.StatusBadRequest
	case KindState:
		return http.StatusConflict
	case KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
