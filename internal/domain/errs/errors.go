package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindQuotaExceeded  Kind = "quota_exceeded"
	KindExternal       Kind = "external_service"
	KindPartialFailure Kind = "partial_failure"
)

// Error is the typed failure returned by every usecase.
type Error struct {
	Kind    Kind
	Message string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by kind, so errors.Is(err, errs.ErrNotFound) works
// for any NotFound error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Field == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrValidation     = &Error{Kind: KindValidation}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrConflict       = &Error{Kind: KindConflict}
	ErrQuotaExceeded  = &Error{Kind: KindQuotaExceeded}
	ErrExternal       = &Error{Kind: KindExternal}
	ErrPartialFailure = &Error{Kind: KindPartialFailure}
)

// Validation reports a malformed or missing field.
func Validation(field, format string, a ...interface{}) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: fmt.Sprintf(format, a...)}
}

// NotFound reports an unknown entity id.
func NotFound(format string, a ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, a...)}
}

// Conflict reports a state clash (duplicate subscription, lost capacity race, illegal transition).
func Conflict(format string, a ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, a...)}
}

// QuotaExceeded reports pip consumption beyond the purchased amount.
func QuotaExceeded(format string, a ...interface{}) *Error {
	return &Error{Kind: KindQuotaExceeded, Message: fmt.Sprintf(format, a...)}
}

// External wraps a messaging gateway or other remote failure.
func External(err error, format string, a ...interface{}) *Error {
	return &Error{Kind: KindExternal, Message: fmt.Sprintf(format, a...), Err: err}
}

// PartialFailure reports a fan-out with mixed per-recipient outcomes.
func PartialFailure(err error, format string, a ...interface{}) *Error {
	return &Error{Kind: KindPartialFailure, Message: fmt.Sprintf(format, a...), Err: err}
}

// KindOf returns the kind of the first *Error in the chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
