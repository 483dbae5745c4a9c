package application

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/example/class-scheduler/internal/access"
)

// storeStub is a map backed implementation of every repository the services
// use. Transactions snapshot the maps and restore them when fn fails.
type storeStub struct {
	mu       sync.Mutex
	classes  map[string]Class
	lessons  map[string]Lesson
	entries  map[string]ScheduleEntry
	presence map[string]PresenceEvent

	listCalls   int
	updateCalls int
	failUpdate  error
}

func newStoreStub() *storeStub {
	return &storeStub{
		classes:  make(map[string]Class),
		lessons:  make(map[string]Lesson),
		entries:  make(map[string]ScheduleEntry),
		presence: make(map[string]PresenceEvent),
	}
}

func (s *storeStub) addClass(class Class) {
	s.classes[class.ID] = class
}

func (s *storeStub) addLesson(lesson Lesson) {
	s.lessons[lesson.ID] = lesson
}

func (s *storeStub) addEntry(entry ScheduleEntry) {
	if class, ok := s.classes[entry.ClassID]; ok {
		entry.ClassName = class.Name
		entry.TeacherID = class.TeacherID
	}
	s.entries[entry.ID] = entry
}

func (s *storeStub) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	entries := make(map[string]ScheduleEntry, len(s.entries))
	for id, entry := range s.entries {
		entries[id] = entry
	}
	presence := make(map[string]PresenceEvent, len(s.presence))
	for id, event := range s.presence {
		presence[id] = event
	}
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.entries = entries
		s.presence = presence
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *storeStub) GetClass(ctx context.Context, id string) (Class, error) {
	class, ok := s.classes[id]
	if !ok {
		return Class{}, ErrNotFound
	}
	return class, nil
}

func (s *storeStub) GetLesson(ctx context.Context, id string) (Lesson, error) {
	lesson, ok := s.lessons[id]
	if !ok {
		return Lesson{}, ErrNotFound
	}
	return lesson, nil
}

func (s *storeStub) ListClasses(ctx context.Context, filter ClassFilter) ([]Class, error) {
	var out []Class
	for _, class := range s.classes {
		if filter.TeacherID != "" && class.TeacherID != filter.TeacherID {
			continue
		}
		if filter.StudentID != "" && !class.HasStudent(filter.StudentID) {
			continue
		}
		out = append(out, class)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *storeStub) CreateEntries(ctx context.Context, entries []ScheduleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range entries {
		if _, ok := s.entries[entry.ID]; ok {
			return ErrAlreadyExists
		}
		for _, existing := range s.entries {
			if existing.RoomName == entry.RoomName {
				return ErrAlreadyExists
			}
		}
		s.entries[entry.ID] = entry
	}
	return nil
}

func (s *storeStub) GetEntry(ctx context.Context, id string) (ScheduleEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return ScheduleEntry{}, ErrNotFound
	}
	return entry, nil
}

func (s *storeStub) GetEntryByRoomName(ctx context.Context, roomName string) (ScheduleEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.entries {
		if entry.RoomName == roomName {
			return entry, nil
		}
	}
	return ScheduleEntry{}, ErrNotFound
}

func (s *storeStub) ListSeries(ctx context.Context, series SeriesID) ([]ScheduleEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ScheduleEntry
	for _, entry := range s.entries {
		if id := entry.Series(); id != nil && *id == series {
			out = append(out, entry)
		}
	}
	sortEntries(out)
	return out, nil
}

func (s *storeStub) ListEntries(ctx context.Context, filter ScheduleRepositoryFilter) ([]ScheduleEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	var out []ScheduleEntry
	for _, entry := range s.entries {
		if !filterMatches(filter, entry) {
			continue
		}
		out = append(out, entry)
	}
	sortEntries(out)
	return out, nil
}

func filterMatches(filter ScheduleRepositoryFilter, entry ScheduleEntry) bool {
	if len(filter.ClassIDs) > 0 && !containsString(filter.ClassIDs, entry.ClassID) {
		return false
	}
	if filter.TeacherID != "" && entry.TeacherID != filter.TeacherID {
		return false
	}
	if filter.From != nil && !entry.End.After(*filter.From) {
		return false
	}
	if filter.To != nil && !entry.Start.Before(*filter.To) {
		return false
	}
	if filter.EndsBefore != nil && !entry.End.Before(*filter.EndsBefore) {
		return false
	}
	if len(filter.Statuses) > 0 {
		matched := false
		for _, status := range filter.Statuses {
			if status == entry.Status {
				matched = true
			}
		}
		if !matched {
			return false
		}
	}
	if entry.Status == ScheduleStatusCancelled && !filter.IncludeCancelled {
		return false
	}
	return true
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

func (s *storeStub) UpdateEntries(ctx context.Context, entries []ScheduleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdate != nil {
		return s.failUpdate
	}
	s.updateCalls++
	for _, entry := range entries {
		if _, ok := s.entries[entry.ID]; !ok {
			return ErrNotFound
		}
		s.entries[entry.ID] = entry
	}
	return nil
}

func (s *storeStub) DeleteEntries(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.entries, id)
	}
	return nil
}

func (s *storeStub) InsertEvent(ctx context.Context, event PresenceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.presence[event.ID]; ok {
		return ErrAlreadyExists
	}
	s.presence[event.ID] = event
	return nil
}

func (s *storeStub) UpdateEvent(ctx context.Context, event PresenceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.presence[event.ID]; !ok {
		return ErrNotFound
	}
	s.presence[event.ID] = event
	return nil
}

func (s *storeStub) ListEvents(ctx context.Context, filter PresenceFilter) ([]PresenceEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []PresenceEvent
	for _, event := range s.presence {
		if len(filter.ScheduleIDs) > 0 && !containsString(filter.ScheduleIDs, event.ScheduleID) {
			continue
		}
		if filter.StudentID != "" && event.StudentID != filter.StudentID {
			continue
		}
		if filter.OpenOnly && !event.IsOpen() {
			continue
		}
		out = append(out, event)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out, nil
}

func (s *storeStub) DeleteEvents(ctx context.Context, scheduleIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, event := range s.presence {
		if containsString(scheduleIDs, event.ScheduleID) {
			delete(s.presence, id)
		}
	}
	return nil
}

func (s *storeStub) openEvents(scheduleID, studentID string) int {
	events, _ := s.ListEvents(context.Background(), PresenceFilter{
		ScheduleIDs: []string{scheduleID},
		StudentID:   studentID,
		OpenOnly:    true,
	})
	return len(events)
}

var errStoreUnavailable = errors.New("store unavailable")

type sequenceIDs struct {
	mu   sync.Mutex
	next int
}

func (g *sequenceIDs) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return "id-" + strconv.Itoa(g.next)
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Set(now time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

var (
	adminActor   = Actor{UserID: "admin-1", Role: access.RoleAdmin}
	teacherActor = Actor{UserID: "teacher-1", Role: access.RoleTeacher}
	otherTeacher = Actor{UserID: "teacher-2", Role: access.RoleTeacher}
	studentActor = Actor{UserID: "student-1", Role: access.RoleStudent}
	systemActor  = Actor{UserID: "video", Role: access.RoleSystem}
)
