package services

import (
	"fmt"
	"time"
)

type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindInvalidPlan    ErrorKind = "invalid_plan"
	KindNotFound       ErrorKind = "not_found"
	KindBlocked        ErrorKind = "blocked"
	KindExpired        ErrorKind = "expired"
	KindDeviceConflict ErrorKind = "device_conflict"
	KindUnavailable    ErrorKind = "unavailable"
	KindServer         ErrorKind = "server"
)

// Error is a rejection that is reported to the caller as is. Anything that is
// not an *Error is an internal failure.
type Error struct {
	Kind           ErrorKind
	Message        string
	Expired        bool
	DeviceConflict bool
	// ExpiresAt is set for KindExpired.
	ExpiresAt *time.Time
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func validationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func serverError(err error) *Error {
	return &Error{Kind: KindServer, Message: "internal server error", Err: err}
}
