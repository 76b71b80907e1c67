package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a referenced transport, slot or resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned for duplicate references and double-booked resources.
	ErrConflict = errors.New("conflict")
	// ErrInUse is returned when a referenced entity cannot be removed.
	ErrInUse = errors.New("in use")
	// ErrForbidden is returned when the caller role does not allow the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalid is returned for malformed input or an illegal state transition.
	ErrInvalid = errors.New("invalid")
)

// Error carries the failing entity next to one of the sentinel kinds above.
type Error struct {
	Kind    error
	Entity  string
	ID      string
	Date    time.Time
	Message string
	// Related lists the ids of colliding entities for conflicts.
	Related []string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Entity != "" {
		b.WriteString(": ")
		b.WriteString(e.Entity)
		if e.ID != "" {
			b.WriteString(" ")
			b.WriteString(e.ID)
		}
	}
	if !e.Date.IsZero() {
		b.WriteString(" on ")
		b.WriteString(e.Date.Format(DayLayout))
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Kind }

// NotFound builds an ErrNotFound for the given entity.
func NotFound(entity, id string) error {
	return &Error{Kind: ErrNotFound, Entity: entity, ID: id}
}

// InUse builds an ErrInUse for the given entity.
func InUse(entity, id, msg string) error {
	return &Error{Kind: ErrInUse, Entity: entity, ID: id, Message: msg}
}

// Invalid builds an ErrInvalid with a formatted message.
func Invalid(format string, args ...any) error {
	return &Error{Kind: ErrInvalid, Message: fmt.Sprintf(format, args...)}
}

// Forbidden builds an ErrForbidden for the given role.
func Forbidden(role Role) error {
	return &Error{Kind: ErrForbidden, Message: fmt.Sprintf("role %q cannot modify the plan", role)}
}
