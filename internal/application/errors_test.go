package application

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/example/class-scheduler/internal/scheduler"
)

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	var err *ValidationError
	if err.Error() != "" {
		t.Fatalf("expected empty string for nil error, got %q", err.Error())
	}

	withFields := newValidationError("field", "invalid")
	if got := withFields.Error(); got != "validation failed" {
		t.Fatalf("expected generic message, got %q", got)
	}
	if !withFields.HasErrors() {
		t.Fatalf("expected HasErrors to report true when fields are present")
	}
	if (&ValidationError{}).HasErrors() {
		t.Fatalf("expected HasErrors to report false for empty error")
	}
}

func TestScheduleConflictError(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, time.March, 4, 10, 0, 0, 0, time.UTC)
	err := conflictError(scheduler.Conflict{Type: scheduler.ConflictTypeClass, EntryID: "entry-1", ClassName: "Math 1", Start: start})

	if !strings.Contains(err.Error(), "Math 1") || !strings.Contains(err.Error(), "2024-03-04T10:00:00Z") {
		t.Fatalf("unexpected message %q", err.Error())
	}

	wrapped := fmt.Errorf("create: %w", err)
	var target *ScheduleConflictError
	if !errors.As(wrapped, &target) || target.ScheduleID != "entry-1" {
		t.Fatalf("expected conflict error to unwrap, got %v", wrapped)
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	cases := map[string]error{
		"":                 nil,
		"unauthorized":     ErrUnauthorized,
		"not_found":        fmt.Errorf("wrap: %w", ErrNotFound),
		"already_exists":   ErrAlreadyExists,
		"validation":       newValidationError("start", "start is required"),
		"conflict_teacher": &ScheduleConflictError{Type: scheduler.ConflictTypeTeacher},
		"unexpected":       errors.New("boom"),
	}
	for want, err := range cases {
		if got := ErrorKind(err); got != want {
			t.Fatalf("ErrorKind(%v) = %q, want %q", err, got, want)
		}
	}
}
