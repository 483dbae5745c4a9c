package persistence

import (
	"context"
	"slices"
	"time"
)

// Transactor runs fn inside a single store transaction. Repository calls made
// with the ctx handed to fn join that transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ClassFilter narrows class queries.
type ClassFilter struct {
	TeacherID  string
	StudentID  string
	ActiveOnly bool
}

// Matches reports whether class satisfies the filter.
func (f ClassFilter) Matches(class Class) bool {
	if f.TeacherID != "" && class.TeacherID != f.TeacherID {
		return false
	}
	if f.StudentID != "" && !slices.Contains(class.StudentIDs, f.StudentID) {
		return false
	}
	if f.ActiveOnly && !class.Active {
		return false
	}
	return true
}

// ClassRepository stores classes, rosters and lessons.
type ClassRepository interface {
	CreateClass(ctx context.Context, class Class) error
	UpdateClass(ctx context.Context, class Class) error
	GetClass(ctx context.Context, id string) (Class, error)
	ListClasses(ctx context.Context, filter ClassFilter) ([]Class, error)
	CreateLesson(ctx context.Context, lesson Lesson) error
	GetLesson(ctx context.Context, id string) (Lesson, error)
}

// EntryFilter narrows schedule entry queries. From and To select entries whose
// [Start, End) interval overlaps [From, To). Cancelled entries are skipped
// unless IncludeCancelled is set.
type EntryFilter struct {
	ClassIDs         []string
	TeacherID        string
	From             *time.Time
	To               *time.Time
	EndsBefore       *time.Time
	Statuses         []string
	IncludeCancelled bool
}

// Matches reports whether entry satisfies the filter.
func (f EntryFilter) Matches(entry ScheduleEntry) bool {
	if len(f.ClassIDs) > 0 && !slices.Contains(f.ClassIDs, entry.ClassID) {
		return false
	}
	if f.TeacherID != "" && entry.TeacherID != f.TeacherID {
		return false
	}
	if f.From != nil && !entry.End.After(*f.From) {
		return false
	}
	if f.To != nil && !entry.Start.Before(*f.To) {
		return false
	}
	if f.EndsBefore != nil && !entry.End.Before(*f.EndsBefore) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, entry.Status) {
		return false
	}
	if entry.Status == StatusCancelled && !f.IncludeCancelled {
		return false
	}
	return true
}

// ScheduleEntryRepository stores schedule entries.
type ScheduleEntryRepository interface {
	CreateEntries(ctx context.Context, entries []ScheduleEntry) error
	GetEntry(ctx context.Context, id string) (ScheduleEntry, error)
	GetEntryByRoomName(ctx context.Context, roomName string) (ScheduleEntry, error)
	// ListSeries returns the head and every child of a series, cancelled ones included.
	ListSeries(ctx context.Context, seriesID string) ([]ScheduleEntry, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]ScheduleEntry, error)
	UpdateEntries(ctx context.Context, entries []ScheduleEntry) error
	DeleteEntries(ctx context.Context, ids []string) error
}

// PresenceFilter narrows presence ledger queries.
type PresenceFilter struct {
	ScheduleIDs []string
	StudentID   string
	OpenOnly    bool
}

// Matches reports whether event satisfies the filter.
func (f PresenceFilter) Matches(event PresenceEvent) bool {
	if len(f.ScheduleIDs) > 0 && !slices.Contains(f.ScheduleIDs, event.ScheduleID) {
		return false
	}
	if f.StudentID != "" && event.StudentID != f.StudentID {
		return false
	}
	if f.OpenOnly && event.LeftAt != nil {
		return false
	}
	return true
}

// PresenceRepository stores the presence ledger.
type PresenceRepository interface {
	InsertEvent(ctx context.Context, event PresenceEvent) error
	UpdateEvent(ctx context.Context, event PresenceEvent) error
	ListEvents(ctx context.Context, filter PresenceFilter) ([]PresenceEvent, error)
	DeleteEventsForEntries(ctx context.Context, scheduleIDs []string) error
}
