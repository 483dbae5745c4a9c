package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/class-scheduler/internal/access"
	"github.com/example/class-scheduler/internal/application"
	"github.com/example/class-scheduler/internal/persistence"
)

var (
	classCounter    uint64
	lessonCounter   uint64
	entryCounter    uint64
	presenceCounter uint64
)

// referenceTime is a Monday so week based presets line up with fixtures.
var referenceTime = time.Date(2025, time.January, 6, 10, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// Admin returns an administrator actor.
func Admin(id string) application.Actor {
	return application.Actor{UserID: id, Role: access.RoleAdmin}
}

// Teacher returns a teacher actor.
func Teacher(id string) application.Actor {
	return application.Actor{UserID: id, Role: access.RoleTeacher}
}

// Student returns a student actor.
func Student(id string) application.Actor {
	return application.Actor{UserID: id, Role: access.RoleStudent}
}

// ----------------------------- Class fixtures -----------------------------

// ClassFixture represents a deterministic class with its roster.
type ClassFixture struct {
	ID           string
	Name         string
	TeacherID    string
	CurriculumID string
	StudentIDs   []string
	Active       bool
	CreatedAt    time.Time
}

// ClassOption configures the generated class fixture.
type ClassOption func(*ClassFixture)

// NewClassFixture returns a deterministic class fixture with optional overrides.
func NewClassFixture(opts ...ClassOption) ClassFixture {
	idx := atomic.AddUint64(&classCounter, 1)
	fixture := ClassFixture{
		ID:           fmt.Sprintf("class-%03d", idx),
		Name:         fmt.Sprintf("Class %03d", idx),
		TeacherID:    "teacher-1",
		CurriculumID: "curriculum-1",
		Active:       true,
		CreatedAt:    referenceTime.Add(-time.Duration(idx) * time.Hour),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithClassID overrides the generated class ID.
func WithClassID(id string) ClassOption {
	return func(f *ClassFixture) {
		f.ID = id
	}
}

// WithClassTeacher overrides the class teacher.
func WithClassTeacher(teacherID string) ClassOption {
	return func(f *ClassFixture) {
		f.TeacherID = teacherID
	}
}

// WithClassCurriculum overrides the class curriculum.
func WithClassCurriculum(curriculumID string) ClassOption {
	return func(f *ClassFixture) {
		f.CurriculumID = curriculumID
	}
}

// WithClassStudents sets the class roster.
func WithClassStudents(studentIDs ...string) ClassOption {
	return func(f *ClassFixture) {
		f.StudentIDs = append([]string(nil), studentIDs...)
	}
}

// WithClassInactive marks the class as inactive.
func WithClassInactive() ClassOption {
	return func(f *ClassFixture) {
		f.Active = false
	}
}

// Application returns the fixture as an application.Class value.
func (f ClassFixture) Application() application.Class {
	return application.Class{
		ID:           f.ID,
		Name:         f.Name,
		TeacherID:    f.TeacherID,
		CurriculumID: f.CurriculumID,
		StudentIDs:   append([]string(nil), f.StudentIDs...),
		Active:       f.Active,
	}
}

// Persistence returns the fixture as a persistence.Class value.
func (f ClassFixture) Persistence() persistence.Class {
	return persistence.Class{
		ID:           f.ID,
		Name:         f.Name,
		TeacherID:    f.TeacherID,
		CurriculumID: f.CurriculumID,
		StudentIDs:   append([]string(nil), f.StudentIDs...),
		Active:       f.Active,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.CreatedAt,
	}
}

// ----------------------------- Lesson fixtures -----------------------------

// LessonFixture represents a deterministic curriculum lesson.
type LessonFixture struct {
	ID           string
	CurriculumID string
	Title        string
	CreatedAt    time.Time
}

// LessonOption configures the generated lesson fixture.
type LessonOption func(*LessonFixture)

// NewLessonFixture returns a deterministic lesson fixture with optional overrides.
func NewLessonFixture(opts ...LessonOption) LessonFixture {
	idx := atomic.AddUint64(&lessonCounter, 1)
	fixture := LessonFixture{
		ID:           fmt.Sprintf("lesson-%03d", idx),
		CurriculumID: "curriculum-1",
		Title:        fmt.Sprintf("Lesson %03d", idx),
		CreatedAt:    referenceTime.Add(-24 * time.Hour),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithLessonID overrides the generated lesson ID.
func WithLessonID(id string) LessonOption {
	return func(f *LessonFixture) {
		f.ID = id
	}
}

// WithLessonCurriculum overrides the lesson curriculum.
func WithLessonCurriculum(curriculumID string) LessonOption {
	return func(f *LessonFixture) {
		f.CurriculumID = curriculumID
	}
}

// Persistence returns the fixture as a persistence.Lesson value.
func (f LessonFixture) Persistence() persistence.Lesson {
	return persistence.Lesson{
		ID:           f.ID,
		CurriculumID: f.CurriculumID,
		Title:        f.Title,
		CreatedAt:    f.CreatedAt,
	}
}

// ----------------------------- Entry fixtures -----------------------------

// EntryFixture represents a deterministic schedule entry.
type EntryFixture struct {
	ID                 string
	ClassID            string
	LessonID           *string
	Title              string
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
}

// EntryOption configures the generated entry fixture.
type EntryOption func(*EntryFixture)

// NewEntryFixture returns a one hour entry starting at ReferenceTime.
func NewEntryFixture(opts ...EntryOption) EntryFixture {
	idx := atomic.AddUint64(&entryCounter, 1)
	id := fmt.Sprintf("entry-%03d", idx)
	fixture := EntryFixture{
		ID:        id,
		ClassID:   "class-001",
		Title:     fmt.Sprintf("Session %03d", idx),
		Start:     referenceTime,
		End:       referenceTime.Add(time.Hour),
		RoomName:  "room-" + id,
		Status:    persistence.StatusScheduled,
		CreatedBy: "teacher-1",
		CreatedAt: referenceTime.Add(-time.Hour),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithEntryID overrides the generated entry ID and its room name.
func WithEntryID(id string) EntryOption {
	return func(f *EntryFixture) {
		f.ID = id
		f.RoomName = "room-" + id
	}
}

// WithEntryClass overrides the entry class.
func WithEntryClass(classID string) EntryOption {
	return func(f *EntryFixture) {
		f.ClassID = classID
	}
}

// WithEntryLesson links the entry to a lesson.
func WithEntryLesson(lessonID string) EntryOption {
	return func(f *EntryFixture) {
		f.LessonID = &lessonID
	}
}

// WithEntryTimes overrides the entry interval.
func WithEntryTimes(start, end time.Time) EntryOption {
	return func(f *EntryFixture) {
		f.Start = start
		f.End = end
	}
}

// WithEntryRoom overrides the entry room name.
func WithEntryRoom(roomName string) EntryOption {
	return func(f *EntryFixture) {
		f.RoomName = roomName
	}
}

// WithEntryStatus overrides the entry status.
func WithEntryStatus(status string) EntryOption {
	return func(f *EntryFixture) {
		f.Status = status
	}
}

// WithEntryLive marks the entry as live.
func WithEntryLive() EntryOption {
	return func(f *EntryFixture) {
		f.IsLive = true
		f.Status = persistence.StatusActive
	}
}

// WithEntrySeriesHead marks the entry as the head of a series with rule.
func WithEntrySeriesHead(rule string) EntryOption {
	return func(f *EntryFixture) {
		f.IsRecurring = true
		f.RecurrenceRule = &rule
		f.RecurrenceParentID = nil
	}
}

// WithEntrySeriesChild marks the entry as a child of parentID.
func WithEntrySeriesChild(parentID string) EntryOption {
	return func(f *EntryFixture) {
		f.IsRecurring = true
		f.RecurrenceParentID = &parentID
		f.RecurrenceRule = nil
	}
}

// WithEntryCreatedBy overrides the entry creator.
func WithEntryCreatedBy(userID string) EntryOption {
	return func(f *EntryFixture) {
		f.CreatedBy = userID
	}
}

// Persistence returns the fixture as a persistence.ScheduleEntry value.
func (f EntryFixture) Persistence() persistence.ScheduleEntry {
	return persistence.ScheduleEntry{
		ID:                 f.ID,
		ClassID:            f.ClassID,
		LessonID:           copyStringPtr(f.LessonID),
		Title:              f.Title,
		Start:              f.Start,
		End:                f.End,
		RoomName:           f.RoomName,
		IsLive:             f.IsLive,
		Status:             f.Status,
		IsRecurring:        f.IsRecurring,
		RecurrenceParentID: copyStringPtr(f.RecurrenceParentID),
		RecurrenceRule:     copyStringPtr(f.RecurrenceRule),
		CreatedBy:          f.CreatedBy,
		CreatedAt:          f.CreatedAt,
		UpdatedAt:          f.CreatedAt,
	}
}

// Application returns the fixture as an application.ScheduleEntry value.
func (f EntryFixture) Application() application.ScheduleEntry {
	var parent *application.SeriesID
	if f.RecurrenceParentID != nil {
		id := application.SeriesID(*f.RecurrenceParentID)
		parent = &id
	}
	return application.ScheduleEntry{
		ID:               f.ID,
		ClassID:          f.ClassID,
		LessonID:         copyStringPtr(f.LessonID),
		Title:            f.Title,
		Start:            f.Start,
		End:              f.End,
		RoomName:         f.RoomName,
		IsLive:           f.IsLive,
		Status:           application.ScheduleStatus(f.Status),
		IsRecurring:      f.IsRecurring,
		RecurrenceParent: parent,
		RecurrenceRule:   copyStringPtr(f.RecurrenceRule),
		CreatedBy:        f.CreatedBy,
		CreatedAt:        f.CreatedAt,
		UpdatedAt:        f.CreatedAt,
	}
}

// ----------------------------- Presence fixtures -----------------------------

// PresenceFixture represents a deterministic presence ledger row.
type PresenceFixture struct {
	ID           string
	ScheduleID   string
	StudentID    string
	JoinedAt     time.Time
	LeftAt       *time.Time
	ManualStatus *string
	MarkedBy     string
}

// PresenceOption configures the generated presence fixture.
type PresenceOption func(*PresenceFixture)

// NewPresenceFixture returns an open event joined at ReferenceTime.
func NewPresenceFixture(opts ...PresenceOption) PresenceFixture {
	idx := atomic.AddUint64(&presenceCounter, 1)
	fixture := PresenceFixture{
		ID:         fmt.Sprintf("presence-%03d", idx),
		ScheduleID: "entry-001",
		StudentID:  "student-1",
		JoinedAt:   referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithPresenceSchedule overrides the schedule the event belongs to.
func WithPresenceSchedule(scheduleID string) PresenceOption {
	return func(f *PresenceFixture) {
		f.ScheduleID = scheduleID
	}
}

// WithPresenceStudent overrides the student.
func WithPresenceStudent(studentID string) PresenceOption {
	return func(f *PresenceFixture) {
		f.StudentID = studentID
	}
}

// WithPresenceInterval sets the join time and, when left is non-zero, closes the event.
func WithPresenceInterval(joined, left time.Time) PresenceOption {
	return func(f *PresenceFixture) {
		f.JoinedAt = joined
		f.LeftAt = nil
		if !left.IsZero() {
			f.LeftAt = &left
		}
	}
}

// WithPresenceMark turns the event into a manual attendance mark.
func WithPresenceMark(status, markedBy string) PresenceOption {
	return func(f *PresenceFixture) {
		f.ManualStatus = &status
		f.MarkedBy = markedBy
		left := f.JoinedAt
		f.LeftAt = &left
	}
}

// Persistence returns the fixture as a persistence.PresenceEvent value.
func (f PresenceFixture) Persistence() persistence.PresenceEvent {
	event := persistence.PresenceEvent{
		ID:           f.ID,
		ScheduleID:   f.ScheduleID,
		StudentID:    f.StudentID,
		JoinedAt:     f.JoinedAt,
		ManualStatus: copyStringPtr(f.ManualStatus),
		MarkedBy:     f.MarkedBy,
	}
	if f.LeftAt != nil {
		left := *f.LeftAt
		seconds := int64(left.Sub(f.JoinedAt) / time.Second)
		event.LeftAt = &left
		event.DurationSeconds = &seconds
	}
	if f.ManualStatus != nil {
		marked := f.JoinedAt
		event.MarkedAt = &marked
	}
	return event
}

func copyStringPtr(value *string) *string {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
