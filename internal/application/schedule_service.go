package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/example/class-scheduler/internal/access"
	"github.com/example/class-scheduler/internal/attendance"
	"github.com/example/class-scheduler/internal/persistence"
	"github.com/example/class-scheduler/internal/recurrence"
	"github.com/example/class-scheduler/internal/scheduler"
)

// ScheduleRepository captures the persistence interactions needed by the service.
type ScheduleRepository interface {
	CreateEntries(ctx context.Context, entries []ScheduleEntry) error
	GetEntry(ctx context.Context, id string) (ScheduleEntry, error)
	GetEntryByRoomName(ctx context.Context, roomName string) (ScheduleEntry, error)
	ListSeries(ctx context.Context, series SeriesID) ([]ScheduleEntry, error)
	ListEntries(ctx context.Context, filter ScheduleRepositoryFilter) ([]ScheduleEntry, error)
	UpdateEntries(ctx context.Context, entries []ScheduleEntry) error
	DeleteEntries(ctx context.Context, ids []string) error
}

// ScheduleRepositoryFilter narrows queries issued to the schedule repository.
// From and To select entries overlapping [From, To).
type ScheduleRepositoryFilter struct {
	ClassIDs         []string
	TeacherID        string
	From             *time.Time
	To               *time.Time
	EndsBefore       *time.Time
	Statuses         []ScheduleStatus
	IncludeCancelled bool
}

// ClassDirectory exposes the administrative class and lesson records.
type ClassDirectory interface {
	GetClass(ctx context.Context, id string) (Class, error)
	GetLesson(ctx context.Context, id string) (Lesson, error)
	ListClasses(ctx context.Context, filter ClassFilter) ([]Class, error)
}

// Transactor runs fn atomically. Repositories called with the derived context
// participate in the same transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type noopTransactor struct{}

func (noopTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// ScheduleOptions tunes schedule behaviour that operators may configure.
type ScheduleOptions struct {
	JoinWindow             access.JoinWindow
	CompletionGrace        time.Duration
	ValidateAllOccurrences bool
	RoomIndexSize          int
	Policy                 attendance.Policy
}

// DefaultScheduleOptions returns the stock schedule behaviour.
func DefaultScheduleOptions() ScheduleOptions {
	return ScheduleOptions{
		JoinWindow:             access.DefaultJoinWindow(),
		CompletionGrace:        15 * time.Minute,
		ValidateAllOccurrences: true,
		RoomIndexSize:          defaultRoomIndexSize,
		Policy:                 attendance.DefaultPolicy(),
	}
}

// ScheduleService orchestrates validation and persistence for schedule operations.
type ScheduleService struct {
	schedules   ScheduleRepository
	classes     ClassDirectory
	presence    PresenceRepository
	tx          Transactor
	engine      *recurrence.Engine
	options     ScheduleOptions
	rooms       *roomIndex
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewScheduleService wires dependencies for schedule operations.
func NewScheduleService(schedules ScheduleRepository, classes ClassDirectory, presence PresenceRepository, tx Transactor, engine *recurrence.Engine, options ScheduleOptions, idGenerator func() string, now func() time.Time) *ScheduleService {
	return NewScheduleServiceWithLogger(schedules, classes, presence, tx, engine, options, idGenerator, now, nil)
}

// NewScheduleServiceWithLogger constructs a ScheduleService with a specified logger.
func NewScheduleServiceWithLogger(schedules ScheduleRepository, classes ClassDirectory, presence PresenceRepository, tx Transactor, engine *recurrence.Engine, options ScheduleOptions, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ScheduleService {
	if tx == nil {
		tx = noopTransactor{}
	}
	if engine == nil {
		engine = recurrence.NewEngine(nil)
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &ScheduleService{
		schedules:   schedules,
		classes:     classes,
		presence:    presence,
		tx:          tx,
		engine:      engine,
		options:     options,
		rooms:       newRoomIndex(options.RoomIndexSize),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *ScheduleService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ScheduleService", operation, attrs...)
}

// CreateSchedule validates and persists a single class session.
func (s *ScheduleService) CreateSchedule(ctx context.Context, params CreateScheduleParams) (entry ScheduleEntry, err error) {
	if s == nil {
		err = fmt.Errorf("ScheduleService is nil")
		return
	}
	if s.schedules == nil || s.classes == nil {
		err = fmt.Errorf("schedule repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "CreateSchedule",
		"actor_id", params.Actor.UserID,
		"class_id", params.Input.ClassID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create schedule", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("schedule_id", entry.ID, "room_name", entry.RoomName).InfoContext(ctx, "schedule created")
	}()

	input := params.Input
	if vErr := validateScheduleInput(input.ClassID, input.Start, input.End); vErr.HasErrors() {
		err = vErr
		return
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		class, err := s.authorizeClass(ctx, params.Actor, input.ClassID)
		if err != nil {
			return err
		}
		if err := s.ensureLessonInCurriculum(ctx, class, input.LessonID); err != nil {
			return err
		}

		createdAt := s.now()
		candidate := s.newEntry(params.Actor, class, input, createdAt)
		if err := s.ensureNoConflicts(ctx, class, []ScheduleEntry{candidate}, nil); err != nil {
			return err
		}
		if err := s.schedules.CreateEntries(ctx, []ScheduleEntry{candidate}); err != nil {
			return mapScheduleRepoError(err)
		}
		entry = candidate
		return nil
	})
	if err != nil {
		return ScheduleEntry{}, err
	}

	s.rooms.Remember(entry)
	return entry, nil
}

// CreateRecurringSchedule expands the recurrence and persists the series head
// and its children in one transaction.
func (s *ScheduleService) CreateRecurringSchedule(ctx context.Context, params CreateRecurringScheduleParams) (entries []ScheduleEntry, err error) {
	if s == nil {
		err = fmt.Errorf("ScheduleService is nil")
		return
	}
	if s.schedules == nil || s.classes == nil {
		err = fmt.Errorf("schedule repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "CreateRecurringSchedule",
		"actor_id", params.Actor.UserID,
		"class_id", params.Input.ClassID,
		"frequency", params.Recurrence.Frequency,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create recurring schedule", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("series_id", entries[0].ID, "occurrences", len(entries)).InfoContext(ctx, "recurring schedule created")
	}()

	input := params.Input
	vErr := validateScheduleInput(input.ClassID, input.Start, input.End)
	rule, ruleErr := buildRule(params.Recurrence)
	if ruleErr != nil {
		vErr.add(ruleErr.field, ruleErr.message)
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	duration := input.End.Sub(input.Start)
	anchor := s.engine.AlignAnchor(input.Start, rule.Weekdays)
	starts, err := s.engine.Expand(anchor, rule)
	if err != nil {
		err = newValidationError("recurrence", err.Error())
		return
	}
	if len(starts) == 0 {
		err = newValidationError("recurrence", "no valid occurrences")
		return
	}

	encoded, err := rule.Encode()
	if err != nil {
		return nil, err
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		class, err := s.authorizeClass(ctx, params.Actor, input.ClassID)
		if err != nil {
			return err
		}
		if err := s.ensureLessonInCurriculum(ctx, class, input.LessonID); err != nil {
			return err
		}

		createdAt := s.now()
		series := make([]ScheduleEntry, 0, len(starts))
		for i, start := range starts {
			occurrence := input
			occurrence.Start = start
			occurrence.End = start.Add(duration)
			entry := s.newEntry(params.Actor, class, occurrence, createdAt)
			entry.IsRecurring = true
			if i == 0 {
				entry.RecurrenceRule = &encoded
			} else {
				head := SeriesID(series[0].ID)
				entry.RecurrenceParent = &head
				entry.RoomName = fmt.Sprintf("%s-%d", series[0].RoomName, i)
			}
			series = append(series, entry)
		}

		toValidate := series
		if !s.options.ValidateAllOccurrences {
			toValidate = series[:1]
		}
		if err := s.ensureNoConflicts(ctx, class, toValidate, nil); err != nil {
			return err
		}
		if err := s.schedules.CreateEntries(ctx, series); err != nil {
			return mapScheduleRepoError(err)
		}
		entries = series
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.rooms.Remember(entries...)
	return entries, nil
}

// UpdateSchedule edits one entry or, with UpdateSeries, shifts every entry of
// its series by the start delta of the edited entry and applies the new duration.
func (s *ScheduleService) UpdateSchedule(ctx context.Context, params UpdateScheduleParams) (updated []ScheduleEntry, err error) {
	if s == nil {
		err = fmt.Errorf("ScheduleService is nil")
		return
	}
	if s.schedules == nil || s.classes == nil {
		err = fmt.Errorf("schedule repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "UpdateSchedule",
		"actor_id", params.Actor.UserID,
		"schedule_id", params.ScheduleID,
		"update_series", params.UpdateSeries,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update schedule", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("updated", len(updated)).InfoContext(ctx, "schedule updated")
	}()

	input := params.Input
	if vErr := validateTimes(&ValidationError{}, input.Start, input.End); vErr.HasErrors() {
		err = vErr
		return
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := s.schedules.GetEntry(ctx, params.ScheduleID)
		if err != nil {
			return mapScheduleRepoError(err)
		}
		class, err := s.authorizeClass(ctx, params.Actor, existing.ClassID)
		if err != nil {
			return err
		}
		if err := s.ensureLessonInCurriculum(ctx, class, input.LessonID); err != nil {
			return err
		}

		targets, err := s.targets(ctx, existing, params.UpdateSeries)
		if err != nil {
			return err
		}

		delta := input.Start.Sub(existing.Start)
		duration := input.End.Sub(input.Start)
		updatedAt := s.now()
		exclude := make(map[string]struct{}, len(targets))
		for i := range targets {
			exclude[targets[i].ID] = struct{}{}
			targets[i].Start = targets[i].Start.Add(delta)
			targets[i].End = targets[i].Start.Add(duration)
			targets[i].LessonID = cloneString(input.LessonID)
			targets[i].Title = strings.TrimSpace(input.Title)
			targets[i].Description = input.Description
			targets[i].UpdatedAt = updatedAt
		}

		if err := s.ensureNoConflicts(ctx, class, targets, exclude); err != nil {
			return err
		}
		if err := s.schedules.UpdateEntries(ctx, targets); err != nil {
			return mapScheduleRepoError(err)
		}
		updated = targets
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CancelSchedule marks an entry, or its whole series, cancelled. Rows are kept,
// completed entries stay completed and cancelling twice is harmless.
func (s *ScheduleService) CancelSchedule(ctx context.Context, actor Actor, scheduleID string, cancelSeries bool) (entries []ScheduleEntry, err error) {
	if s == nil {
		err = fmt.Errorf("ScheduleService is nil")
		return
	}
	if s.schedules == nil || s.classes == nil {
		err = fmt.Errorf("schedule repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "CancelSchedule",
		"actor_id", actor.UserID,
		"schedule_id", scheduleID,
		"cancel_series", cancelSeries,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to cancel schedule", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "schedule cancelled")
	}()

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := s.schedules.GetEntry(ctx, scheduleID)
		if err != nil {
			return mapScheduleRepoError(err)
		}
		if _, err := s.authorizeClass(ctx, actor, existing.ClassID); err != nil {
			return err
		}

		targets, err := s.targets(ctx, existing, cancelSeries)
		if err != nil {
			return err
		}

		updatedAt := s.now()
		changed := make([]ScheduleEntry, 0, len(targets))
		for i := range targets {
			switch targets[i].Status {
			case ScheduleStatusCompleted, ScheduleStatusCancelled:
				continue
			}
			targets[i].Status = ScheduleStatusCancelled
			targets[i].IsLive = false
			targets[i].UpdatedAt = updatedAt
			changed = append(changed, targets[i])
		}
		if len(changed) > 0 {
			if err := s.schedules.UpdateEntries(ctx, changed); err != nil {
				return mapScheduleRepoError(err)
			}
		}
		entries = targets
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// DeleteSchedule removes an entry, or its whole series, together with its presence rows.
func (s *ScheduleService) DeleteSchedule(ctx context.Context, actor Actor, scheduleID string, deleteSeries bool) (err error) {
	if s == nil {
		return fmt.Errorf("ScheduleService is nil")
	}
	if s.schedules == nil || s.classes == nil {
		return fmt.Errorf("schedule repository not configured")
	}

	logger := s.loggerWith(ctx, "DeleteSchedule",
		"actor_id", actor.UserID,
		"schedule_id", scheduleID,
		"delete_series", deleteSeries,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete schedule", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "schedule deleted")
	}()

	var removed []ScheduleEntry
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := s.schedules.GetEntry(ctx, scheduleID)
		if err != nil {
			return mapScheduleRepoError(err)
		}
		if _, err := s.authorizeClass(ctx, actor, existing.ClassID); err != nil {
			return err
		}

		targets, err := s.targets(ctx, existing, deleteSeries)
		if err != nil {
			return err
		}
		ids := lo.Map(targets, func(entry ScheduleEntry, _ int) string { return entry.ID })

		if s.presence != nil {
			if err := s.presence.DeleteEvents(ctx, ids); err != nil {
				return mapScheduleRepoError(err)
			}
		}
		if err := s.schedules.DeleteEntries(ctx, ids); err != nil {
			return mapScheduleRepoError(err)
		}
		removed = targets
		return nil
	})
	if err != nil {
		return err
	}

	s.rooms.Forget(removed...)
	return nil
}

// CompleteSchedule closes a session explicitly.
func (s *ScheduleService) CompleteSchedule(ctx context.Context, actor Actor, scheduleID string) (entry ScheduleEntry, err error) {
	if s == nil {
		err = fmt.Errorf("ScheduleService is nil")
		return
	}
	if s.schedules == nil || s.classes == nil {
		err = fmt.Errorf("schedule repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "CompleteSchedule",
		"actor_id", actor.UserID,
		"schedule_id", scheduleID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to complete schedule", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "schedule completed")
	}()

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := s.schedules.GetEntry(ctx, scheduleID)
		if err != nil {
			return mapScheduleRepoError(err)
		}
		if _, err := s.authorizeClass(ctx, actor, existing.ClassID); err != nil {
			return err
		}

		switch existing.Status {
		case ScheduleStatusCancelled:
			return newValidationError("status", "cancelled sessions cannot be completed")
		case ScheduleStatusCompleted:
			entry = existing
			return nil
		}

		existing.Status = ScheduleStatusCompleted
		existing.IsLive = false
		existing.UpdatedAt = s.now()
		if err := s.schedules.UpdateEntries(ctx, []ScheduleEntry{existing}); err != nil {
			return mapScheduleRepoError(err)
		}
		entry = existing
		return nil
	})
	if err != nil {
		return ScheduleEntry{}, err
	}
	return entry, nil
}

// MarkLive applies a host join (isLive) or leave signal to the room's entry.
// Repeating a signal is a no-op and cancelled entries never change.
func (s *ScheduleService) MarkLive(ctx context.Context, actor Actor, roomName string, isLive bool) (entry ScheduleEntry, err error) {
	if s == nil {
		err = fmt.Errorf("ScheduleService is nil")
		return
	}
	if s.schedules == nil || s.classes == nil {
		err = fmt.Errorf("schedule repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "MarkLive",
		"actor_id", actor.UserID,
		"room_name", roomName,
		"is_live", isLive,
	)

	changed := false
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "failed to apply live signal", "error", err, "error_kind", ErrorKind(err))
			return
		}
		if changed {
			logger.With("schedule_id", entry.ID, "status", entry.Status).InfoContext(ctx, "live state changed")
		}
	}()

	if !access.CanSignalRoom(actor.Role) {
		err = ErrUnauthorized
		return
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.entryByRoom(ctx, roomName)
		if err != nil {
			return err
		}
		if actor.Role != access.RoleSystem {
			if _, err := s.authorizeClass(ctx, actor, current.ClassID); err != nil {
				return err
			}
		}

		next, ok := liveTransition(current, isLive, s.now())
		if !ok {
			entry = current
			return nil
		}
		if err := s.schedules.UpdateEntries(ctx, []ScheduleEntry{next}); err != nil {
			return mapScheduleRepoError(err)
		}
		entry = next
		changed = true
		return nil
	})
	if err != nil {
		return ScheduleEntry{}, err
	}
	return entry, nil
}

// liveTransition returns the entry after a live signal and whether anything changed.
func liveTransition(entry ScheduleEntry, isLive bool, now time.Time) (ScheduleEntry, bool) {
	if entry.Status == ScheduleStatusCancelled {
		return entry, false
	}

	next := entry
	if isLive {
		next.IsLive = true
		if entry.Status == ScheduleStatusScheduled || entry.Status == ScheduleStatusCompleted {
			next.Status = ScheduleStatusActive
		}
	} else {
		next.IsLive = false
		if entry.Status == ScheduleStatusActive {
			if now.Before(entry.End) {
				next.Status = ScheduleStatusScheduled
			} else {
				next.Status = ScheduleStatusCompleted
			}
		}
	}

	if next.IsLive == entry.IsLive && next.Status == entry.Status {
		return entry, false
	}
	next.UpdatedAt = now
	return next, true
}

// SweepElapsed completes every session whose end plus the completion grace has
// passed and whose room is no longer live.
func (s *ScheduleService) SweepElapsed(ctx context.Context, actor Actor) (result SweepResult, err error) {
	if s == nil {
		err = fmt.Errorf("ScheduleService is nil")
		return
	}
	if s.schedules == nil {
		err = fmt.Errorf("schedule repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "SweepElapsed", "actor_id", actor.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to sweep elapsed sessions", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("completed", len(result.CompletedIDs)).InfoContext(ctx, "elapsed sessions swept")
	}()

	if actor.Role != access.RoleSystem && actor.Role != access.RoleAdmin {
		err = ErrUnauthorized
		return
	}

	now := s.now()
	cutoff := now.Add(-s.options.CompletionGrace)

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		elapsed, err := s.schedules.ListEntries(ctx, ScheduleRepositoryFilter{
			EndsBefore: &cutoff,
			Statuses:   []ScheduleStatus{ScheduleStatusScheduled, ScheduleStatusActive},
		})
		if err != nil {
			return mapScheduleRepoError(err)
		}

		completed := lo.Filter(elapsed, func(entry ScheduleEntry, _ int) bool { return !entry.IsLive })
		if len(completed) == 0 {
			return nil
		}
		for i := range completed {
			completed[i].Status = ScheduleStatusCompleted
			completed[i].UpdatedAt = now
		}
		if err := s.schedules.UpdateEntries(ctx, completed); err != nil {
			return mapScheduleRepoError(err)
		}
		result.CompletedIDs = lo.Map(completed, func(entry ScheduleEntry, _ int) string { return entry.ID })
		return nil
	})
	if err != nil {
		return SweepResult{}, err
	}
	return result, nil
}

// GetMySchedule lists the entries visible to the actor: students see the
// classes they are enrolled in, teachers and tutors the classes they teach and
// admins everything.
func (s *ScheduleService) GetMySchedule(ctx context.Context, params ListScheduleParams) ([]ScheduleView, error) {
	if s == nil {
		return nil, fmt.Errorf("ScheduleService is nil")
	}
	if s.schedules == nil || s.classes == nil {
		return nil, fmt.Errorf("schedule repository not configured")
	}

	actor := params.Actor
	filter, visible, err := s.buildListFilter(ctx, params)
	if err != nil {
		s.loggerWith(ctx, "GetMySchedule", "actor_id", actor.UserID).
			ErrorContext(ctx, "failed to list schedule", "error", err, "error_kind", ErrorKind(err))
		return nil, err
	}
	if !visible {
		return nil, nil
	}

	entries, err := s.schedules.ListEntries(ctx, filter)
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}
	sortEntries(entries)

	var statuses map[string]attendance.Status
	if access.IsStudent(actor.Role) && len(entries) > 0 {
		statuses, err = s.studentStatuses(ctx, actor.UserID, entries)
		if err != nil {
			return nil, err
		}
	}

	now := s.now()
	views := make([]ScheduleView, 0, len(entries))
	for _, entry := range entries {
		view := ScheduleView{
			Entry:   entry,
			CanJoin: access.CanJoinNow(actor.Role, entry.session(), now, s.options.JoinWindow),
		}
		if status, ok := statuses[entry.ID]; ok {
			view.Attendance = &status
		}
		views = append(views, view)
	}
	return views, nil
}

// GetSessionStatus resolves a classroom by entry ID or room name and reports its live state.
func (s *ScheduleService) GetSessionStatus(ctx context.Context, actor Actor, ref string) (SessionStatus, error) {
	if s == nil {
		return SessionStatus{}, fmt.Errorf("ScheduleService is nil")
	}
	if s.schedules == nil || s.classes == nil {
		return SessionStatus{}, fmt.Errorf("schedule repository not configured")
	}

	ref = strings.TrimSpace(ref)
	if ref == "" {
		return SessionStatus{}, ErrNotFound
	}

	entry, err := s.schedules.GetEntry(ctx, ref)
	if err != nil {
		if !isNotFoundError(err) {
			return SessionStatus{}, err
		}
		entry, err = s.entryByRoom(ctx, ref)
		if err != nil {
			return SessionStatus{}, err
		}
	}

	if err := s.authorizeView(ctx, actor, entry); err != nil {
		return SessionStatus{}, err
	}

	status := SessionStatus{
		Entry:   entry,
		CanJoin: access.CanJoinNow(actor.Role, entry.session(), s.now(), s.options.JoinWindow),
	}
	if s.presence != nil {
		open, err := s.presence.ListEvents(ctx, PresenceFilter{ScheduleIDs: []string{entry.ID}, OpenOnly: true})
		if err != nil {
			return SessionStatus{}, err
		}
		status.ConnectedCount = len(lo.UniqBy(open, func(event PresenceEvent) string { return event.StudentID }))
	}
	return status, nil
}

func (s *ScheduleService) newEntry(actor Actor, class Class, input ScheduleInput, createdAt time.Time) ScheduleEntry {
	return ScheduleEntry{
		ID:          s.idGenerator(),
		ClassID:     class.ID,
		LessonID:    cloneString(input.LessonID),
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		Start:       input.Start,
		End:         input.End,
		RoomName:    "room-" + s.idGenerator(),
		Status:      ScheduleStatusScheduled,
		CreatedBy:   actor.UserID,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
		ClassName:   class.Name,
		TeacherID:   class.TeacherID,
	}
}

// targets returns the entries an operation applies to: the entry alone, or every
// entry of its series when series is requested and the entry is recurring.
func (s *ScheduleService) targets(ctx context.Context, entry ScheduleEntry, series bool) ([]ScheduleEntry, error) {
	id := entry.Series()
	if !series || id == nil {
		return []ScheduleEntry{entry}, nil
	}
	members, err := s.schedules.ListSeries(ctx, *id)
	if err != nil {
		return nil, mapScheduleRepoError(err)
	}
	if len(members) == 0 {
		return []ScheduleEntry{entry}, nil
	}
	sortEntries(members)
	return members, nil
}

func (s *ScheduleService) authorizeClass(ctx context.Context, actor Actor, classID string) (Class, error) {
	class, err := s.classes.GetClass(ctx, classID)
	if err != nil {
		return Class{}, mapScheduleRepoError(err)
	}
	if !access.CanManageClass(actor.Role, actor.UserID, class.TeacherID) {
		return Class{}, ErrUnauthorized
	}
	return class, nil
}

func (s *ScheduleService) authorizeView(ctx context.Context, actor Actor, entry ScheduleEntry) error {
	switch actor.Role {
	case access.RoleAdmin, access.RoleSystem:
		return nil
	}
	class, err := s.classes.GetClass(ctx, entry.ClassID)
	if err != nil {
		return mapScheduleRepoError(err)
	}
	if access.CanManageClass(actor.Role, actor.UserID, class.TeacherID) {
		return nil
	}
	if access.IsStudent(actor.Role) && class.HasStudent(actor.UserID) {
		return nil
	}
	return ErrUnauthorized
}

func (s *ScheduleService) ensureLessonInCurriculum(ctx context.Context, class Class, lessonID *string) error {
	if lessonID == nil || strings.TrimSpace(*lessonID) == "" {
		return nil
	}
	lesson, err := s.classes.GetLesson(ctx, *lessonID)
	if err != nil {
		if isNotFoundError(err) {
			return newValidationError("lesson_id", "lesson does not exist")
		}
		return err
	}
	if lesson.CurriculumID != class.CurriculumID {
		return newValidationError("lesson_id", "lesson does not belong to the class curriculum")
	}
	return nil
}

// ensureNoConflicts checks proposed entries against stored entries of the same
// class or teacher and against each other.
func (s *ScheduleService) ensureNoConflicts(ctx context.Context, class Class, proposed []ScheduleEntry, exclude map[string]struct{}) error {
	if len(proposed) == 0 {
		return nil
	}

	from, to := proposed[0].Start, proposed[0].End
	for _, entry := range proposed[1:] {
		if entry.Start.Before(from) {
			from = entry.Start
		}
		if entry.End.After(to) {
			to = entry.End
		}
	}

	existing, err := s.overlapping(ctx, class, from, to)
	if err != nil {
		return err
	}

	accepted := make([]scheduler.Entry, 0, len(proposed))
	for _, entry := range proposed {
		if entry.Status == ScheduleStatusCancelled {
			continue
		}
		candidate := scheduler.Candidate{
			ClassID:   class.ID,
			TeacherID: class.TeacherID,
			Start:     entry.Start,
			End:       entry.End,
			Exclude:   exclude,
		}
		if conflicts := scheduler.DetectConflicts(existing, candidate); len(conflicts) > 0 {
			return conflictError(conflicts[0])
		}
		candidate.Exclude = nil
		if conflicts := scheduler.DetectConflicts(accepted, candidate); len(conflicts) > 0 {
			return conflictError(conflicts[0])
		}
		accepted = append(accepted, toSchedulerEntry(entry, class))
	}
	return nil
}

func (s *ScheduleService) overlapping(ctx context.Context, class Class, from, to time.Time) ([]scheduler.Entry, error) {
	entries, err := s.schedules.ListEntries(ctx, ScheduleRepositoryFilter{
		ClassIDs: []string{class.ID},
		From:     &from,
		To:       &to,
	})
	if err != nil && !isNotFoundError(err) {
		return nil, err
	}
	if class.TeacherID != "" {
		taught, err := s.schedules.ListEntries(ctx, ScheduleRepositoryFilter{
			TeacherID: class.TeacherID,
			From:      &from,
			To:        &to,
		})
		if err != nil && !isNotFoundError(err) {
			return nil, err
		}
		entries = append(entries, taught...)
	}

	entries = lo.UniqBy(entries, func(entry ScheduleEntry) string { return entry.ID })
	return lo.Map(entries, func(entry ScheduleEntry, _ int) scheduler.Entry {
		return toSchedulerEntry(entry, Class{ID: entry.ClassID, Name: entry.ClassName, TeacherID: entry.TeacherID})
	}), nil
}

func toSchedulerEntry(entry ScheduleEntry, class Class) scheduler.Entry {
	return scheduler.Entry{
		ID:        entry.ID,
		ClassID:   class.ID,
		ClassName: class.Name,
		TeacherID: class.TeacherID,
		Start:     entry.Start,
		End:       entry.End,
		Cancelled: entry.Status == ScheduleStatusCancelled,
	}
}

// entryByRoom resolves a room name, consulting the room index first.
func (s *ScheduleService) entryByRoom(ctx context.Context, roomName string) (ScheduleEntry, error) {
	if id, ok := s.rooms.Lookup(roomName); ok {
		entry, err := s.schedules.GetEntry(ctx, id)
		if err == nil && entry.RoomName == roomName {
			return entry, nil
		}
		if err != nil && !isNotFoundError(err) {
			return ScheduleEntry{}, err
		}
		s.rooms.Forget(ScheduleEntry{RoomName: roomName})
	}

	entry, err := s.schedules.GetEntryByRoomName(ctx, roomName)
	if err != nil {
		return ScheduleEntry{}, mapScheduleRepoError(err)
	}
	s.rooms.Remember(entry)
	return entry, nil
}

func (s *ScheduleService) buildListFilter(ctx context.Context, params ListScheduleParams) (ScheduleRepositoryFilter, bool, error) {
	filter := ScheduleRepositoryFilter{
		From:             params.From,
		To:               params.To,
		Statuses:         append([]ScheduleStatus(nil), params.Statuses...),
		IncludeCancelled: params.IncludeCancelled || lo.Contains(params.Statuses, ScheduleStatusCancelled),
	}

	if params.Period != ListPeriodNone {
		reference := params.PeriodReference
		if params.PeriodDate != "" {
			day, err := time.ParseInLocation(time.DateOnly, params.PeriodDate, s.engine.Location())
			if err != nil {
				return ScheduleRepositoryFilter{}, false, newValidationError("date", "must be a YYYY-MM-DD date")
			}
			reference = day
		}
		if reference.IsZero() {
			reference = s.now()
		}
		start, end := computePeriodRange(params.Period, reference, s.engine.Location())
		if filter.From == nil {
			filter.From = &start
		}
		if filter.To == nil {
			filter.To = &end
		}
	}

	actor := params.Actor
	var classFilter ClassFilter
	switch {
	case actor.Role == access.RoleAdmin || actor.Role == access.RoleSystem:
		if params.ClassID != "" {
			filter.ClassIDs = []string{params.ClassID}
		}
		return filter, true, nil
	case actor.Role.IsElevated():
		classFilter.TeacherID = actor.UserID
	case access.IsStudent(actor.Role):
		classFilter.StudentID = actor.UserID
	default:
		return filter, false, ErrUnauthorized
	}

	classes, err := s.classes.ListClasses(ctx, classFilter)
	if err != nil {
		return filter, false, err
	}
	ids := lo.Map(classes, func(class Class, _ int) string { return class.ID })
	if params.ClassID != "" {
		if !lo.Contains(ids, params.ClassID) {
			return filter, false, nil
		}
		ids = []string{params.ClassID}
	}
	if len(ids) == 0 {
		return filter, false, nil
	}
	filter.ClassIDs = ids
	return filter, true, nil
}

func (s *ScheduleService) studentStatuses(ctx context.Context, studentID string, entries []ScheduleEntry) (map[string]attendance.Status, error) {
	var events []PresenceEvent
	if s.presence != nil {
		var err error
		events, err = s.presence.ListEvents(ctx, PresenceFilter{
			ScheduleIDs: lo.Map(entries, func(entry ScheduleEntry, _ int) string { return entry.ID }),
			StudentID:   studentID,
		})
		if err != nil {
			return nil, err
		}
	}
	byEntry := lo.GroupBy(events, func(event PresenceEvent) string { return event.ScheduleID })

	now := s.now()
	statuses := make(map[string]attendance.Status, len(entries))
	for _, entry := range entries {
		if entry.Status == ScheduleStatusCancelled {
			continue
		}
		result := s.options.Policy.Classify(classificationInput(entry, byEntry[entry.ID], now))
		statuses[entry.ID] = result.Status
	}
	return statuses, nil
}

func validateScheduleInput(classID string, start, end time.Time) *ValidationError {
	vErr := &ValidationError{}
	if strings.TrimSpace(classID) == "" {
		vErr.add("class_id", "class is required")
	}
	return validateTimes(vErr, start, end)
}

func validateTimes(vErr *ValidationError, start, end time.Time) *ValidationError {
	if start.IsZero() {
		vErr.add("start", "start is required")
	}
	if end.IsZero() {
		vErr.add("end", "end is required")
	}
	if !start.IsZero() && !end.IsZero() && !end.After(start) {
		vErr.add("time", "end must be after start")
	}
	return vErr
}

type ruleError struct {
	field   string
	message string
}

func buildRule(input RecurrenceInput) (recurrence.Rule, *ruleError) {
	frequency, err := recurrence.ParseFrequency(input.Frequency)
	if err != nil {
		return recurrence.Rule{}, &ruleError{field: "recurrence.type", message: "recurrence type must be daily, weekly, biweekly or monthly"}
	}
	rule := recurrence.Rule{
		Frequency: frequency,
		Weekdays:  lo.Uniq(input.Weekdays),
		Until:     cloneTime(input.Until),
		Count:     input.Count,
	}
	if err := rule.Validate(); err != nil {
		switch {
		case errors.Is(err, recurrence.ErrInvalidWeekday):
			return recurrence.Rule{}, &ruleError{field: "recurrence.weekdays", message: "weekdays must be between 0 (Sunday) and 6 (Saturday)"}
		case errors.Is(err, recurrence.ErrInvalidCount):
			return recurrence.Rule{}, &ruleError{field: "recurrence.count", message: "count must not be negative"}
		default:
			return recurrence.Rule{}, &ruleError{field: "recurrence", message: err.Error()}
		}
	}
	return rule, nil
}

func sortEntries(entries []ScheduleEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Start.Equal(entries[j].Start) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].Start.Before(entries[j].Start)
	})
}

func computePeriodRange(period ListPeriod, reference time.Time, loc *time.Location) (time.Time, time.Time) {
	switch period {
	case ListPeriodDay:
		start := startOfDay(reference, loc)
		return start, start.AddDate(0, 0, 1)
	case ListPeriodWeek:
		start := startOfWeek(reference, loc)
		return start, start.AddDate(0, 0, 7)
	case ListPeriodMonth:
		start := startOfMonth(reference, loc)
		return start, start.AddDate(0, 1, 0)
	default:
		return time.Time{}, time.Time{}
	}
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

func startOfWeek(t time.Time, loc *time.Location) time.Time {
	start := startOfDay(t, loc)
	// Monday starts the week; Go numbers Sunday as 0.
	offset := (int(start.Weekday()) + 6) % 7
	return start.AddDate(0, 0, -offset)
}

func startOfMonth(t time.Time, loc *time.Location) time.Time {
	start := startOfDay(t, loc)
	return time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, loc)
}

func mapScheduleRepoError(err error) error {
	if err == nil {
		return nil
	}
	var vErr *ValidationError
	var conflict *ScheduleConflictError
	switch {
	case errors.As(err, &vErr), errors.As(err, &conflict):
		return err
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnauthorized):
		return err
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrConstraintViolation):
		return newValidationError("time", "end must be after start")
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return newValidationError("class_id", "related records are missing")
	}
	return err
}

func isNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound)
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
