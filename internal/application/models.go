package application

import (
	"slices"
	"time"

	"github.com/example/class-scheduler/internal/access"
	"github.com/example/class-scheduler/internal/attendance"
)

// Actor represents the authenticated user invoking a service method.
type Actor struct {
	UserID string
	Role   access.Role
}

// Class is the administrative record a schedule entry belongs to.
type Class struct {
	ID           string
	Name         string
	TeacherID    string
	CurriculumID string
	StudentIDs   []string
	Active       bool
}

// HasStudent reports whether studentID is on the class roster.
func (c Class) HasStudent(studentID string) bool {
	return studentID != "" && slices.Contains(c.StudentIDs, studentID)
}

// Lesson is a curriculum item a schedule entry may be linked to.
type Lesson struct {
	ID           string
	CurriculumID string
	Title        string
}

// ClassFilter narrows class directory listings.
type ClassFilter struct {
	TeacherID string
	StudentID string
}

// ScheduleStatus is the lifecycle state of a schedule entry.
type ScheduleStatus string

const (
	ScheduleStatusScheduled ScheduleStatus = "scheduled"
	ScheduleStatusActive    ScheduleStatus = "active"
	ScheduleStatusCompleted ScheduleStatus = "completed"
	ScheduleStatusCancelled ScheduleStatus = "cancelled"
)

// SeriesID identifies a recurring series by the ID of its head entry.
type SeriesID string

// ScheduleEntry is one concrete class session.
type ScheduleEntry struct {
	ID               string
	ClassID          string
	LessonID         *string
	Title            string
	Description      string
	Start            time.Time
	End              time.Time
	RoomName         string
	IsLive           bool
	Status           ScheduleStatus
	IsRecurring      bool
	RecurrenceParent *SeriesID
	RecurrenceRule   *string
	CreatedBy        string
	CreatedAt        time.Time
	UpdatedAt        time.Time

	// Filled by the store on reads.
	ClassName string
	TeacherID string
}

// Series returns the series the entry belongs to, or nil for a standalone entry.
func (e ScheduleEntry) Series() *SeriesID {
	if !e.IsRecurring {
		return nil
	}
	if e.RecurrenceParent != nil {
		id := *e.RecurrenceParent
		return &id
	}
	id := SeriesID(e.ID)
	return &id
}

// IsSeriesHead reports whether the entry carries the series rule.
func (e ScheduleEntry) IsSeriesHead() bool {
	return e.IsRecurring && e.RecurrenceParent == nil
}

// Duration returns End - Start.
func (e ScheduleEntry) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

func (e ScheduleEntry) session() access.Session {
	return access.Session{
		Start:     e.Start,
		End:       e.End,
		Active:    e.Status == ScheduleStatusActive,
		Completed: e.Status == ScheduleStatusCompleted,
		Cancelled: e.Status == ScheduleStatusCancelled,
	}
}

// PresenceEvent records one connection of a student to a session, optionally
// carrying a manual attendance override.
type PresenceEvent struct {
	ID              string
	ScheduleID      string
	StudentID       string
	JoinedAt        time.Time
	LeftAt          *time.Time
	DurationSeconds *int64
	ManualStatus    *attendance.Status
	MarkedBy        string
	MarkedAt        *time.Time
}

// IsOpen reports whether the student is still connected.
func (p PresenceEvent) IsOpen() bool {
	return p.LeftAt == nil
}

// ScheduleInput captures caller provided schedule fields.
type ScheduleInput struct {
	ClassID     string
	LessonID    *string
	Title       string
	Description string
	Start       time.Time
	End         time.Time
}

// RecurrenceInput captures caller provided recurrence fields.
type RecurrenceInput struct {
	Frequency string
	Weekdays  []time.Weekday
	Until     *time.Time
	Count     int
}

// CreateScheduleParams wraps the data required to create a single entry.
type CreateScheduleParams struct {
	Actor Actor
	Input ScheduleInput
}

// CreateRecurringScheduleParams wraps the data required to create a series.
type CreateRecurringScheduleParams struct {
	Actor      Actor
	Input      ScheduleInput
	Recurrence RecurrenceInput
}

// UpdateScheduleInput captures the editable fields of an entry.
type UpdateScheduleInput struct {
	LessonID    *string
	Title       string
	Description string
	Start       time.Time
	End         time.Time
}

// UpdateScheduleParams wraps the data required to edit an entry or its whole series.
type UpdateScheduleParams struct {
	Actor        Actor
	ScheduleID   string
	Input        UpdateScheduleInput
	UpdateSeries bool
}

// ListPeriod identifies the range preset requested for schedule listings.
type ListPeriod string

const (
	// ListPeriodNone indicates no preset; caller supplied explicit bounds.
	ListPeriodNone ListPeriod = ""
	// ListPeriodDay constrains results to a single day.
	ListPeriodDay ListPeriod = "day"
	// ListPeriodWeek constrains results to the Monday-start week containing the reference time.
	ListPeriodWeek ListPeriod = "week"
	// ListPeriodMonth constrains results to the month containing the reference time.
	ListPeriodMonth ListPeriod = "month"
)

// ListScheduleParams wraps the filters accepted by GetMySchedule.
type ListScheduleParams struct {
	Actor            Actor
	From             *time.Time
	To               *time.Time
	Period           ListPeriod
	PeriodReference  time.Time
	// PeriodDate is a YYYY-MM-DD calendar date in the school timezone. It
	// takes precedence over PeriodReference; both empty means today.
	PeriodDate       string
	ClassID          string
	Statuses         []ScheduleStatus
	IncludeCancelled bool
}

// ScheduleView is a schedule entry decorated for the requesting actor.
type ScheduleView struct {
	Entry      ScheduleEntry
	CanJoin    bool
	Attendance *attendance.Status
}

// SessionStatus describes the live state of a classroom.
type SessionStatus struct {
	Entry          ScheduleEntry
	ConnectedCount int
	CanJoin        bool
}

// PresenceAction is a join or leave signal from the video subsystem.
type PresenceAction string

const (
	PresenceJoin  PresenceAction = "join"
	PresenceLeave PresenceAction = "leave"
)

// LogPresenceParams wraps a presence signal.
type LogPresenceParams struct {
	Actor      Actor
	ScheduleID string
	Action     PresenceAction
}

// UpdateAttendanceParams wraps a manual attendance override.
type UpdateAttendanceParams struct {
	Actor      Actor
	ScheduleID string
	StudentID  string
	Status     string
}

// StudentAttendance is the classified attendance of one student for one session.
type StudentAttendance struct {
	StudentID          string
	Status             attendance.Status
	AccumulatedSeconds int64
	Ratio              float64
	Connected          bool
	Manual             *attendance.Mark
	Events             []PresenceEvent
}

// AttendanceReport is the manager view of a session's attendance.
type AttendanceReport struct {
	Entry    ScheduleEntry
	Students []StudentAttendance
	Summary  attendance.Summary
}

// SweepResult reports the effect of a sweep over elapsed sessions.
type SweepResult struct {
	CompletedIDs []string
}
