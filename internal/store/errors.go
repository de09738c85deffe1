package store

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrCollision   = errors.New("appointment collision")
	ErrForbidden   = errors.New("forbidden")
	ErrStaleStatus = errors.New("appointment status changed concurrently")
)

// CollisionError describes a rejected booking. The conflicting interval is
// zero when the backend only reported a constraint violation.
type CollisionError struct {
	ProviderID     string
	RequestedStart time.Time
	RequestedEnd   time.Time
	ConflictingID  string
	ConflictStart  time.Time
	ConflictEnd    time.Time
}

func (e *CollisionError) Error() string {
	if e.ConflictStart.IsZero() {
		return fmt.Sprintf(
			"provider %s is already booked within %s to %s; pick another time",
			e.ProviderID,
			e.RequestedStart.UTC().Format(time.RFC3339),
			e.RequestedEnd.UTC().Format(time.RFC3339),
		)
	}
	return fmt.Sprintf(
		"provider %s is already booked %s to %s; pick another time",
		e.ProviderID,
		e.ConflictStart.UTC().Format(time.RFC3339),
		e.ConflictEnd.UTC().Format(time.RFC3339),
	)
}

func (e *CollisionError) Is(target error) bool {
	return target == ErrCollision
}
