package persistence

import "time"

// Entry status values as stored in the status column.
const (
	StatusScheduled = "scheduled"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Class is the administrative class record together with its roster.
type Class struct {
	ID           string
	Name         string
	TeacherID    string
	CurriculumID string
	StudentIDs   []string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Lesson is a curriculum item.
type Lesson struct {
	ID           string
	CurriculumID string
	Title        string
	CreatedAt    time.Time
}

// ScheduleEntry is a stored class session row.
type ScheduleEntry struct {
	ID                 string
	ClassID            string
	LessonID           *string
	Title              string
	Description        string
	Start              time.Time
	End                time.Time
	RoomName           string
	IsLive             bool
	Status             string
	IsRecurring        bool
	RecurrenceParentID *string
	RecurrenceRule     *string
	CreatedBy          string
	CreatedAt          time.Time
	UpdatedAt          time.Time

	// Joined from classes on reads; ignored on writes.
	ClassName string
	TeacherID string
}

// PresenceEvent is one row of the presence ledger.
type PresenceEvent struct {
	ID              string
	ScheduleID      string
	StudentID       string
	JoinedAt        time.Time
	LeftAt          *time.Time
	DurationSeconds *int64
	ManualStatus    *string
	MarkedBy        string
	MarkedAt        *time.Time
}
