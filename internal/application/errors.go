package application

import (
	"errors"
	"fmt"
	"time"

	"github.com/example/class-scheduler/internal/scheduler"
)

var (
	// ErrUnauthorized is returned when the acting user lacks permission for an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyExists is returned when a unique key such as a room name is already taken.
	ErrAlreadyExists = errors.New("application: already exists")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

func newValidationError(field, message string) *ValidationError {
	vErr := &ValidationError{}
	vErr.add(field, message)
	return vErr
}

// ScheduleConflictError reports the entry that blocks a proposed placement.
type ScheduleConflictError struct {
	Type       scheduler.ConflictType
	ClassName  string
	Start      time.Time
	ScheduleID string
}

// Error implements the error interface.
func (e *ScheduleConflictError) Error() string {
	if e == nil {
		return ""
	}
	switch e.Type {
	case scheduler.ConflictTypeTeacher:
		return fmt.Sprintf("teacher is already teaching %q at %s", e.ClassName, e.Start.UTC().Format(time.RFC3339))
	default:
		return fmt.Sprintf("class %q already has a session at %s", e.ClassName, e.Start.UTC().Format(time.RFC3339))
	}
}

func conflictError(conflict scheduler.Conflict) *ScheduleConflictError {
	return &ScheduleConflictError{
		Type:       conflict.Type,
		ClassName:  conflict.ClassName,
		Start:      conflict.Start,
		ScheduleID: conflict.EntryID,
	}
}
