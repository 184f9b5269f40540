package poserr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a POS error so callers can render a message or map it
// to a transport status without string matching.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindConflict            Kind = "conflict"
	KindInvalidState        Kind = "invalid_state"
	KindInvalidTransition   Kind = "invalid_transition"
	KindInsufficientFunds   Kind = "insufficient_funds"
	KindCreditLimitExceeded Kind = "credit_limit_exceeded"
	KindNotFound            Kind = "not_found"
	KindUnavailable         Kind = "unavailable"
)

// Error is the single error type returned by the POS services.
type Error struct {
	Kind    Kind
	Field   string
	Message string
	Err     error
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrValidation          = &Error{Kind: KindValidation}
	ErrConflict            = &Error{Kind: KindConflict}
	ErrInvalidState        = &Error{Kind: KindInvalidState}
	ErrInvalidTransition   = &Error{Kind: KindInvalidTransition}
	ErrInsufficientFunds   = &Error{Kind: KindInsufficientFunds}
	ErrCreditLimitExceeded = &Error{Kind: KindCreditLimitExceeded}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrUnavailable         = &Error{Kind: KindUnavailable}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Validation reports malformed or missing input on a named field.
func Validation(field, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func InvalidState(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

func InvalidTransition(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidTransition, Message: fmt.Sprintf(format, args...)}
}

func InsufficientFunds(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInsufficientFunds, Message: fmt.Sprintf(format, args...)}
}

func CreditLimitExceeded(format string, args ...interface{}) *Error {
	return &Error{Kind: KindCreditLimitExceeded, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports an unknown id of the given entity.
func NotFound(entity, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %s not found", entity, id)}
}

// Unavailable wraps a persistence or transport failure the caller may retry.
func Unavailable(message string, err error) *Error {
	return &Error{Kind: KindUnavailable, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// FieldOf returns the offending field of a validation error, if any.
func FieldOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}

// HTTPStatus maps an error to the status code the terminal API returns.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindInvalidState, KindInvalidTransition:
		return http.StatusConflict
	case KindInsufficientFunds, KindCreditLimitExceeded:
		return http.StatusUnprocessableEntity
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
