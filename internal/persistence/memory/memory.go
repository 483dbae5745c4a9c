// Package memory provides a map backed implementation of the persistence
// repositories with the same constraint behaviour as the SQLite store.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/example/class-scheduler/internal/persistence"
)

type txKey struct{}

// Storage keeps classes, schedule entries and presence events in memory.
// Transactions are serialized; a failed transaction restores the previous state.
type Storage struct {
	txMu sync.Mutex

	mu       sync.RWMutex
	classes  map[string]persistence.Class
	lessons  map[string]persistence.Lesson
	entries  map[string]persistence.ScheduleEntry
	presence map[string]persistence.PresenceEvent
}

var (
	_ persistence.Transactor              = (*Storage)(nil)
	_ persistence.ClassRepository         = (*Storage)(nil)
	_ persistence.ScheduleEntryRepository = (*Storage)(nil)
	_ persistence.PresenceRepository      = (*Storage)(nil)
)

// New returns an empty Storage.
func New() *Storage {
	return &Storage{
		classes:  make(map[string]persistence.Class),
		lessons:  make(map[string]persistence.Lesson),
		entries:  make(map[string]persistence.ScheduleEntry),
		presence: make(map[string]persistence.PresenceEvent),
	}
}

// WithinTx runs fn with exclusive write access. Nested calls join the outer transaction.
func (s *Storage) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	classes := maps.Clone(s.classes)
	lessons := maps.Clone(s.lessons)
	entries := maps.Clone(s.entries)
	presence := maps.Clone(s.presence)
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.classes = classes
		s.lessons = lessons
		s.entries = entries
		s.presence = presence
		s.mu.Unlock()
		return err
	}
	return nil
}

func inTx(ctx context.Context) bool {
	marked, _ := ctx.Value(txKey{}).(bool)
	return marked
}

// lockWrite takes the data lock, and the transaction lock when ctx is not
// already inside a transaction.
func (s *Storage) lockWrite(ctx context.Context) func() {
	joined := inTx(ctx)
	if !joined {
		s.txMu.Lock()
	}
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		if !joined {
			s.txMu.Unlock()
		}
	}
}

// --- ClassRepository implementation ---

// CreateClass stores a new class and its roster.
func (s *Storage) CreateClass(ctx context.Context, class persistence.Class) error {
	unlock := s.lockWrite(ctx)
	defer unlock()

	if _, ok := s.classes[class.ID]; ok {
		return persistence.ErrDuplicate
	}
	s.classes[class.ID] = cloneClass(class)
	return nil
}

// UpdateClass replaces an existing class and its roster.
func (s *Storage) UpdateClass(ctx context.Context, class persistence.Class) error {
	unlock := s.lockWrite(ctx)
	defer unlock()

	existing, ok := s.classes[class.ID]
	if !ok {
		return persistence.ErrNotFound
	}
	class.CreatedAt = existing.CreatedAt
	s.classes[class.ID] = cloneClass(class)
	return nil
}

// GetClass retrieves a class by ID.
func (s *Storage) GetClass(ctx context.Context, id string) (persistence.Class, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	class, ok := s.classes[id]
	if !ok {
		return persistence.Class{}, persistence.ErrNotFound
	}
	return cloneClass(class), nil
}

// ListClasses returns classes matching filter ordered by ID.
func (s *Storage) ListClasses(ctx context.Context, filter persistence.ClassFilter) ([]persistence.Class, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	classes := make([]persistence.Class, 0)
	for _, class := range s.classes {
		if filter.Matches(class) {
			classes = append(classes, cloneClass(class))
		}
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].ID < classes[j].ID })
	return classes, nil
}

// CreateLesson stores a new lesson.
func (s *Storage) CreateLesson(ctx context.Context, lesson persistence.Lesson) error {
	unlock := s.lockWrite(ctx)
	defer unlock()

	if _, ok := s.lessons[lesson.ID]; ok {
		return persistence.ErrDuplicate
	}
	s.lessons[lesson.ID] = lesson
	return nil
}

// GetLesson retrieves a lesson by ID.
func (s *Storage) GetLesson(ctx context.Context, id string) (persistence.Lesson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lesson, ok := s.lessons[id]
	if !ok {
		return persistence.Lesson{}, persistence.ErrNotFound
	}
	return lesson, nil
}

// --- ScheduleEntryRepository implementation ---

// CreateEntries inserts entries; either all are stored or none.
func (s *Storage) CreateEntries(ctx context.Context, entries []persistence.ScheduleEntry) error {
	unlock := s.lockWrite(ctx)
	defer unlock()

	rooms := make(map[string]struct{}, len(s.entries)+len(entries))
	for _, existing := range s.entries {
		rooms[existing.RoomName] = struct{}{}
	}
	for _, entry := range entries {
		if err := s.checkEntryLocked(entry); err != nil {
			return err
		}
		if _, ok := s.entries[entry.ID]; ok {
			return persistence.ErrDuplicate
		}
		if _, ok := rooms[entry.RoomName]; ok {
			return persistence.ErrDuplicate
		}
		rooms[entry.RoomName] = struct{}{}
	}

	for _, entry := range entries {
		s.entries[entry.ID] = cloneEntry(entry)
	}
	return nil
}

// GetEntry retrieves an entry by ID.
func (s *Storage) GetEntry(ctx context.Context, id string) (persistence.ScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[id]
	if !ok {
		return persistence.ScheduleEntry{}, persistence.ErrNotFound
	}
	return s.projectLocked(entry), nil
}

// GetEntryByRoomName retrieves the entry owning roomName.
func (s *Storage) GetEntryByRoomName(ctx context.Context, roomName string) (persistence.ScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, entry := range s.entries {
		if entry.RoomName == roomName {
			return s.projectLocked(entry), nil
		}
	}
	return persistence.ScheduleEntry{}, persistence.ErrNotFound
}

// ListSeries returns the head and children of a series ordered by start.
func (s *Storage) ListSeries(ctx context.Context, seriesID string) ([]persistence.ScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]persistence.ScheduleEntry, 0)
	for _, entry := range s.entries {
		if entry.ID == seriesID || (entry.RecurrenceParentID != nil && *entry.RecurrenceParentID == seriesID) {
			entries = append(entries, s.projectLocked(entry))
		}
	}
	sortEntries(entries)
	return entries, nil
}

// ListEntries returns entries matching filter ordered by start.
func (s *Storage) ListEntries(ctx context.Context, filter persistence.EntryFilter) ([]persistence.ScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]persistence.ScheduleEntry, 0)
	for _, entry := range s.entries {
		projected := s.projectLocked(entry)
		if filter.Matches(projected) {
			entries = append(entries, projected)
		}
	}
	sortEntries(entries)
	return entries, nil
}

// UpdateEntries replaces existing entries; either all are written or none.
func (s *Storage) UpdateEntries(ctx context.Context, entries []persistence.ScheduleEntry) error {
	unlock := s.lockWrite(ctx)
	defer unlock()

	for _, entry := range entries {
		if _, ok := s.entries[entry.ID]; !ok {
			return persistence.ErrNotFound
		}
		if err := s.checkEntryLocked(entry); err != nil {
			return err
		}
		for id, existing := range s.entries {
			if id != entry.ID && existing.RoomName == entry.RoomName {
				return persistence.ErrDuplicate
			}
		}
	}

	for _, entry := range entries {
		existing := s.entries[entry.ID]
		entry.CreatedAt = existing.CreatedAt
		entry.CreatedBy = existing.CreatedBy
		s.entries[entry.ID] = cloneEntry(entry)
	}
	return nil
}

// DeleteEntries removes entries and their presence events. Unknown IDs are ignored.
func (s *Storage) DeleteEntries(ctx context.Context, ids []string) error {
	unlock := s.lockWrite(ctx)
	defer unlock()

	for _, id := range ids {
		delete(s.entries, id)
	}
	for id, event := range s.presence {
		if slices.Contains(ids, event.ScheduleID) {
			delete(s.presence, id)
		}
	}
	return nil
}

func (s *Storage) checkEntryLocked(entry persistence.ScheduleEntry) error {
	if entry.ID == "" || entry.RoomName == "" || !entry.End.After(entry.Start) {
		return persistence.ErrConstraintViolation
	}
	if _, ok := s.classes[entry.ClassID]; !ok {
		return persistence.ErrForeignKeyViolation
	}
	if entry.LessonID != nil {
		if _, ok := s.lessons[*entry.LessonID]; !ok {
			return persistence.ErrForeignKeyViolation
		}
	}
	return nil
}

func (s *Storage) projectLocked(entry persistence.ScheduleEntry) persistence.ScheduleEntry {
	projected := cloneEntry(entry)
	if class, ok := s.classes[entry.ClassID]; ok {
		projected.ClassName = class.Name
		projected.TeacherID = class.TeacherID
	}
	return projected
}

// --- PresenceRepository implementation ---

// InsertEvent stores a new presence event.
func (s *Storage) InsertEvent(ctx context.Context, event persistence.PresenceEvent) error {
	unlock := s.lockWrite(ctx)
	defer unlock()

	if _, ok := s.presence[event.ID]; ok {
		return persistence.ErrDuplicate
	}
	if _, ok := s.entries[event.ScheduleID]; !ok {
		return persistence.ErrForeignKeyViolation
	}
	if event.LeftAt == nil {
		for _, existing := range s.presence {
			if existing.LeftAt == nil && existing.ScheduleID == event.ScheduleID && existing.StudentID == event.StudentID {
				return persistence.ErrDuplicate
			}
		}
	}
	s.presence[event.ID] = clonePresence(event)
	return nil
}

// UpdateEvent replaces an existing presence event.
func (s *Storage) UpdateEvent(ctx context.Context, event persistence.PresenceEvent) error {
	unlock := s.lockWrite(ctx)
	defer unlock()

	if _, ok := s.presence[event.ID]; !ok {
		return persistence.ErrNotFound
	}
	s.presence[event.ID] = clonePresence(event)
	return nil
}

// ListEvents returns events matching filter ordered by join time.
func (s *Storage) ListEvents(ctx context.Context, filter persistence.PresenceFilter) ([]persistence.PresenceEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]persistence.PresenceEvent, 0)
	for _, event := range s.presence {
		if filter.Matches(event) {
			events = append(events, clonePresence(event))
		}
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].JoinedAt.Equal(events[j].JoinedAt) {
			return events[i].ID < events[j].ID
		}
		return events[i].JoinedAt.Before(events[j].JoinedAt)
	})
	return events, nil
}

// DeleteEventsForEntries removes every event recorded for the given entries.
func (s *Storage) DeleteEventsForEntries(ctx context.Context, scheduleIDs []string) error {
	unlock := s.lockWrite(ctx)
	defer unlock()

	for id, event := range s.presence {
		if slices.Contains(scheduleIDs, event.ScheduleID) {
			delete(s.presence, id)
		}
	}
	return nil
}

// --- Helpers ---

func sortEntries(entries []persistence.ScheduleEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Start.Equal(entries[j].Start) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].Start.Before(entries[j].Start)
	})
}

func cloneClass(class persistence.Class) persistence.Class {
	class.StudentIDs = slices.Clone(class.StudentIDs)
	return class
}

func cloneEntry(entry persistence.ScheduleEntry) persistence.ScheduleEntry {
	entry.LessonID = cloneString(entry.LessonID)
	entry.RecurrenceParentID = cloneString(entry.RecurrenceParentID)
	entry.RecurrenceRule = cloneString(entry.RecurrenceRule)
	return entry
}

func clonePresence(event persistence.PresenceEvent) persistence.PresenceEvent {
	if event.LeftAt != nil {
		leftAt := *event.LeftAt
		event.LeftAt = &leftAt
	}
	if event.DurationSeconds != nil {
		seconds := *event.DurationSeconds
		event.DurationSeconds = &seconds
	}
	if event.MarkedAt != nil {
		markedAt := *event.MarkedAt
		event.MarkedAt = &markedAt
	}
	event.ManualStatus = cloneString(event.ManualStatus)
	return event
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	copy := *value
	return &copy
}
