// Package storeadapter bridges the persistence repositories to the ports the
// application services depend on.
package storeadapter

import (
	"context"

	"github.com/samber/lo"

	"github.com/example/class-scheduler/internal/application"
	"github.com/example/class-scheduler/internal/attendance"
	"github.com/example/class-scheduler/internal/persistence"
)

// Store groups the repositories a backend provides.
type Store struct {
	Classes  persistence.ClassRepository
	Entries  persistence.ScheduleEntryRepository
	Presence persistence.PresenceRepository
	Tx       persistence.Transactor
}

// Ports are the application-facing views over a Store.
type Ports struct {
	Classes   application.ClassDirectory
	Schedules application.ScheduleRepository
	Presence  application.PresenceRepository
	Tx        application.Transactor
}

// NewPorts adapts store for the application services.
func NewPorts(store Store) Ports {
	return Ports{
		Classes:   NewClassDirectory(store.Classes),
		Schedules: NewScheduleRepository(store.Entries),
		Presence:  NewPresenceRepository(store.Presence),
		Tx:        store.Tx,
	}
}

type classDirectoryAdapter struct {
	repo persistence.ClassRepository
}

// NewClassDirectory exposes repo as an application.ClassDirectory.
func NewClassDirectory(repo persistence.ClassRepository) application.ClassDirectory {
	return &classDirectoryAdapter{repo: repo}
}

func (a *classDirectoryAdapter) GetClass(ctx context.Context, id string) (application.Class, error) {
	stored, err := a.repo.GetClass(ctx, id)
	if err != nil {
		return application.Class{}, err
	}
	return toApplicationClass(stored), nil
}

func (a *classDirectoryAdapter) GetLesson(ctx context.Context, id string) (application.Lesson, error) {
	stored, err := a.repo.GetLesson(ctx, id)
	if err != nil {
		return application.Lesson{}, err
	}
	return application.Lesson{ID: stored.ID, CurriculumID: stored.CurriculumID, Title: stored.Title}, nil
}

func (a *classDirectoryAdapter) ListClasses(ctx context.Context, filter application.ClassFilter) ([]application.Class, error) {
	models, err := a.repo.ListClasses(ctx, persistence.ClassFilter{
		TeacherID: filter.TeacherID,
		StudentID: filter.StudentID,
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(models, func(model persistence.Class, _ int) application.Class {
		return toApplicationClass(model)
	}), nil
}

type scheduleRepositoryAdapter struct {
	repo persistence.ScheduleEntryRepository
}

// NewScheduleRepository exposes repo as an application.ScheduleRepository.
func NewScheduleRepository(repo persistence.ScheduleEntryRepository) application.ScheduleRepository {
	return &scheduleRepositoryAdapter{repo: repo}
}

func (a *scheduleRepositoryAdapter) CreateEntries(ctx context.Context, entries []application.ScheduleEntry) error {
	return a.repo.CreateEntries(ctx, lo.Map(entries, toPersistenceEntry))
}

func (a *scheduleRepositoryAdapter) GetEntry(ctx context.Context, id string) (application.ScheduleEntry, error) {
	stored, err := a.repo.GetEntry(ctx, id)
	if err != nil {
		return application.ScheduleEntry{}, err
	}
	return toApplicationEntry(stored, 0), nil
}

func (a *scheduleRepositoryAdapter) GetEntryByRoomName(ctx context.Context, roomName string) (application.ScheduleEntry, error) {
	stored, err := a.repo.GetEntryByRoomName(ctx, roomName)
	if err != nil {
		return application.ScheduleEntry{}, err
	}
	return toApplicationEntry(stored, 0), nil
}

func (a *scheduleRepositoryAdapter) ListSeries(ctx context.Context, series application.SeriesID) ([]application.ScheduleEntry, error) {
	models, err := a.repo.ListSeries(ctx, string(series))
	if err != nil {
		return nil, err
	}
	return lo.Map(models, toApplicationEntry), nil
}

func (a *scheduleRepositoryAdapter) ListEntries(ctx context.Context, filter application.ScheduleRepositoryFilter) ([]application.ScheduleEntry, error) {
	models, err := a.repo.ListEntries(ctx, persistence.EntryFilter{
		ClassIDs:   append([]string(nil), filter.ClassIDs...),
		TeacherID:  filter.TeacherID,
		From:       filter.From,
		To:         filter.To,
		EndsBefore: filter.EndsBefore,
		Statuses: lo.Map(filter.Statuses, func(status application.ScheduleStatus, _ int) string {
			return string(status)
		}),
		IncludeCancelled: filter.IncludeCancelled,
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(models, toApplicationEntry), nil
}

func (a *scheduleRepositoryAdapter) UpdateEntries(ctx context.Context, entries []application.ScheduleEntry) error {
	return a.repo.UpdateEntries(ctx, lo.Map(entries, toPersistenceEntry))
}

func (a *scheduleRepositoryAdapter) DeleteEntries(ctx context.Context, ids []string) error {
	return a.repo.DeleteEntries(ctx, ids)
}

type presenceRepositoryAdapter struct {
	repo persistence.PresenceRepository
}

// NewPresenceRepository exposes repo as an application.PresenceRepository.
func NewPresenceRepository(repo persistence.PresenceRepository) application.PresenceRepository {
	return &presenceRepositoryAdapter{repo: repo}
}

func (a *presenceRepositoryAdapter) InsertEvent(ctx context.Context, event application.PresenceEvent) error {
	return a.repo.InsertEvent(ctx, toPersistencePresence(event))
}

func (a *presenceRepositoryAdapter) UpdateEvent(ctx context.Context, event application.PresenceEvent) error {
	return a.repo.UpdateEvent(ctx, toPersistencePresence(event))
}

func (a *presenceRepositoryAdapter) ListEvents(ctx context.Context, filter application.PresenceFilter) ([]application.PresenceEvent, error) {
	models, err := a.repo.ListEvents(ctx, persistence.PresenceFilter{
		ScheduleIDs: append([]string(nil), filter.ScheduleIDs...),
		StudentID:   filter.StudentID,
		OpenOnly:    filter.OpenOnly,
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(models, func(model persistence.PresenceEvent, _ int) application.PresenceEvent {
		return toApplicationPresence(model)
	}), nil
}

func (a *presenceRepositoryAdapter) DeleteEvents(ctx context.Context, scheduleIDs []string) error {
	return a.repo.DeleteEventsForEntries(ctx, scheduleIDs)
}

func toApplicationClass(model persistence.Class) application.Class {
	return application.Class{
		ID:           model.ID,
		Name:         model.Name,
		TeacherID:    model.TeacherID,
		CurriculumID: model.CurriculumID,
		StudentIDs:   append([]string(nil), model.StudentIDs...),
		Active:       model.Active,
	}
}

func toPersistenceEntry(entry application.ScheduleEntry, _ int) persistence.ScheduleEntry {
	var parent *string
	if entry.RecurrenceParent != nil {
		parent = lo.ToPtr(string(*entry.RecurrenceParent))
	}
	return persistence.ScheduleEntry{
		ID:                 entry.ID,
		ClassID:            entry.ClassID,
		LessonID:           clonePtr(entry.LessonID),
		Title:              entry.Title,
		Description:        entry.Description,
		Start:              entry.Start,
		End:                entry.End,
		RoomName:           entry.RoomName,
		IsLive:             entry.IsLive,
		Status:             string(entry.Status),
		IsRecurring:        entry.IsRecurring,
		RecurrenceParentID: parent,
		RecurrenceRule:     clonePtr(entry.RecurrenceRule),
		CreatedBy:          entry.CreatedBy,
		CreatedAt:          entry.CreatedAt,
		UpdatedAt:          entry.UpdatedAt,
	}
}

func toApplicationEntry(model persistence.ScheduleEntry, _ int) application.ScheduleEntry {
	var parent *application.SeriesID
	if model.RecurrenceParentID != nil {
		parent = lo.ToPtr(application.SeriesID(*model.RecurrenceParentID))
	}
	return application.ScheduleEntry{
		ID:               model.ID,
		ClassID:          model.ClassID,
		LessonID:         clonePtr(model.LessonID),
		Title:            model.Title,
		Description:      model.Description,
		Start:            model.Start,
		End:              model.End,
		RoomName:         model.RoomName,
		IsLive:           model.IsLive,
		Status:           application.ScheduleStatus(model.Status),
		IsRecurring:      model.IsRecurring,
		RecurrenceParent: parent,
		RecurrenceRule:   clonePtr(model.RecurrenceRule),
		CreatedBy:        model.CreatedBy,
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
		ClassName:        model.ClassName,
		TeacherID:        model.TeacherID,
	}
}

func toPersistencePresence(event application.PresenceEvent) persistence.PresenceEvent {
	var manual *string
	if event.ManualStatus != nil {
		manual = lo.ToPtr(string(*event.ManualStatus))
	}
	return persistence.PresenceEvent{
		ID:              event.ID,
		ScheduleID:      event.ScheduleID,
		StudentID:       event.StudentID,
		JoinedAt:        event.JoinedAt,
		LeftAt:          clonePtr(event.LeftAt),
		DurationSeconds: clonePtr(event.DurationSeconds),
		ManualStatus:    manual,
		MarkedBy:        event.MarkedBy,
		MarkedAt:        clonePtr(event.MarkedAt),
	}
}

func toApplicationPresence(model persistence.PresenceEvent) application.PresenceEvent {
	var manual *attendance.Status
	if model.ManualStatus != nil {
		manual = lo.ToPtr(attendance.Status(*model.ManualStatus))
	}
	return application.PresenceEvent{
		ID:              model.ID,
		ScheduleID:      model.ScheduleID,
		StudentID:       model.StudentID,
		JoinedAt:        model.JoinedAt,
		LeftAt:          clonePtr(model.LeftAt),
		DurationSeconds: clonePtr(model.DurationSeconds),
		ManualStatus:    manual,
		MarkedBy:        model.MarkedBy,
		MarkedAt:        clonePtr(model.MarkedAt),
	}
}

func clonePtr[T any](value *T) *T {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
