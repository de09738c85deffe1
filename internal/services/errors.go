package services

import (
	"errors"

	"github.com/saeid-a/CareMarketBack/internal/store"
)

var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrInvalidStatus          = errors.New("invalid status")
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// Store error kinds re-exported so callers need not import the port.
	ErrNotFound  = store.ErrNotFound
	ErrForbidden = store.ErrForbidden
	ErrCollision = store.ErrCollision
)

const (
	CodeNotFound          = "NOT_FOUND"
	CodeCollision         = "APPOINTMENT_COLLISION"
	CodeForbidden         = "FORBIDDEN"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeInvalidTransition = "INVALID_STATE_TRANSITION"
	CodeUnknown           = "UNKNOWN"
)

// ErrorCode classifies err into the error taxonomy exposed to callers.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, store.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, store.ErrCollision):
		return CodeCollision
	case errors.Is(err, store.ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidStatus):
		return CodeInvalidInput
	case errors.Is(err, ErrInvalidStateTransition), errors.Is(err, store.ErrStaleStatus):
		return CodeInvalidTransition
	default:
		return CodeUnknown
	}
}
