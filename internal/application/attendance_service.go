package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/example/class-scheduler/internal/access"
	"github.com/example/class-scheduler/internal/attendance"
)

// PresenceRepository stores the presence ledger.
type PresenceRepository interface {
	InsertEvent(ctx context.Context, event PresenceEvent) error
	UpdateEvent(ctx context.Context, event PresenceEvent) error
	ListEvents(ctx context.Context, filter PresenceFilter) ([]PresenceEvent, error)
	DeleteEvents(ctx context.Context, scheduleIDs []string) error
}

// PresenceFilter narrows presence ledger queries.
type PresenceFilter struct {
	ScheduleIDs []string
	StudentID   string
	OpenOnly    bool
}

// AttendanceService records presence signals and derives attendance from them.
type AttendanceService struct {
	schedules   ScheduleRepository
	classes     ClassDirectory
	presence    PresenceRepository
	tx          Transactor
	policy      attendance.Policy
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewAttendanceService wires dependencies for attendance operations.
func NewAttendanceService(schedules ScheduleRepository, classes ClassDirectory, presence PresenceRepository, tx Transactor, policy attendance.Policy, idGenerator func() string, now func() time.Time) *AttendanceService {
	return NewAttendanceServiceWithLogger(schedules, classes, presence, tx, policy, idGenerator, now, nil)
}

// NewAttendanceServiceWithLogger constructs an AttendanceService with a specified logger.
func NewAttendanceServiceWithLogger(schedules ScheduleRepository, classes ClassDirectory, presence PresenceRepository, tx Transactor, policy attendance.Policy, idGenerator func() string, now func() time.Time, logger *slog.Logger) *AttendanceService {
	if tx == nil {
		tx = noopTransactor{}
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &AttendanceService{
		schedules:   schedules,
		classes:     classes,
		presence:    presence,
		tx:          tx,
		policy:      policy,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *AttendanceService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AttendanceService", operation, attrs...)
}

func (s *AttendanceService) configured() error {
	if s == nil {
		return fmt.Errorf("AttendanceService is nil")
	}
	if s.schedules == nil || s.classes == nil || s.presence == nil {
		return fmt.Errorf("attendance repositories not configured")
	}
	return nil
}

// LogPresence applies a join or leave signal for the acting student. Signals
// from actors that are not rostered students are ignored and reported as not
// recorded.
func (s *AttendanceService) LogPresence(ctx context.Context, params LogPresenceParams) (recorded bool, err error) {
	if err = s.configured(); err != nil {
		return false, err
	}

	logger := s.loggerWith(ctx, "LogPresence",
		"actor_id", params.Actor.UserID,
		"schedule_id", params.ScheduleID,
		"action", params.Action,
	)
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "failed to log presence", "error", err, "error_kind", ErrorKind(err))
			return
		}
		if recorded {
			logger.InfoContext(ctx, "presence logged")
		}
	}()

	if params.Action != PresenceJoin && params.Action != PresenceLeave {
		err = newValidationError("action", "action must be join or leave")
		return
	}
	if !access.IsStudent(params.Actor.Role) {
		return false, nil
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		entry, err := s.schedules.GetEntry(ctx, params.ScheduleID)
		if err != nil {
			return mapScheduleRepoError(err)
		}
		class, err := s.classes.GetClass(ctx, entry.ClassID)
		if err != nil {
			return mapScheduleRepoError(err)
		}
		if !class.HasStudent(params.Actor.UserID) {
			return nil
		}

		now := s.now()
		open, err := s.presence.ListEvents(ctx, PresenceFilter{
			ScheduleIDs: []string{entry.ID},
			StudentID:   params.Actor.UserID,
			OpenOnly:    true,
		})
		if err != nil {
			return err
		}

		switch params.Action {
		case PresenceJoin:
			if err := s.closeEvents(ctx, open, now); err != nil {
				return err
			}
			event := PresenceEvent{
				ID:         s.idGenerator(),
				ScheduleID: entry.ID,
				StudentID:  params.Actor.UserID,
				JoinedAt:   now,
			}
			if err := s.presence.InsertEvent(ctx, event); err != nil {
				return mapScheduleRepoError(err)
			}
			recorded = true
		case PresenceLeave:
			if len(open) == 0 {
				return nil
			}
			if err := s.closeEvents(ctx, open, now); err != nil {
				return err
			}
			recorded = true
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return recorded, nil
}

func (s *AttendanceService) closeEvents(ctx context.Context, events []PresenceEvent, now time.Time) error {
	for _, event := range events {
		leftAt := now
		if leftAt.Before(event.JoinedAt) {
			leftAt = event.JoinedAt
		}
		seconds := int64(leftAt.Sub(event.JoinedAt) / time.Second)
		event.LeftAt = &leftAt
		event.DurationSeconds = &seconds
		if err := s.presence.UpdateEvent(ctx, event); err != nil {
			return mapScheduleRepoError(err)
		}
	}
	return nil
}

// UpdateAttendance records a manual status for a rostered student. The mark is
// stored on the student's latest event, or on a closed zero-length event when
// the student never connected.
func (s *AttendanceService) UpdateAttendance(ctx context.Context, params UpdateAttendanceParams) (row StudentAttendance, err error) {
	if err = s.configured(); err != nil {
		return StudentAttendance{}, err
	}

	logger := s.loggerWith(ctx, "UpdateAttendance",
		"actor_id", params.Actor.UserID,
		"schedule_id", params.ScheduleID,
		"student_id", params.StudentID,
		"status", params.Status,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update attendance", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "attendance updated")
	}()

	status, parseErr := attendance.ParseManualStatus(params.Status)
	if parseErr != nil {
		err = newValidationError("status", "status must be present, partial, late, absent or excused")
		return
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		entry, err := s.schedules.GetEntry(ctx, params.ScheduleID)
		if err != nil {
			return mapScheduleRepoError(err)
		}
		class, err := s.classes.GetClass(ctx, entry.ClassID)
		if err != nil {
			return mapScheduleRepoError(err)
		}
		if !access.CanManageClass(params.Actor.Role, params.Actor.UserID, class.TeacherID) {
			return ErrUnauthorized
		}
		if !class.HasStudent(params.StudentID) {
			return newValidationError("student_id", "student is not enrolled in the class")
		}

		events, err := s.presence.ListEvents(ctx, PresenceFilter{
			ScheduleIDs: []string{entry.ID},
			StudentID:   params.StudentID,
		})
		if err != nil {
			return err
		}

		now := s.now()
		if latest, ok := latestEvent(events); ok {
			latest.ManualStatus = &status
			latest.MarkedBy = params.Actor.UserID
			latest.MarkedAt = &now
			if err := s.presence.UpdateEvent(ctx, latest); err != nil {
				return mapScheduleRepoError(err)
			}
			events = replaceEvent(events, latest)
		} else {
			var zero int64
			marker := PresenceEvent{
				ID:              s.idGenerator(),
				ScheduleID:      entry.ID,
				StudentID:       params.StudentID,
				JoinedAt:        now,
				LeftAt:          &now,
				DurationSeconds: &zero,
				ManualStatus:    &status,
				MarkedBy:        params.Actor.UserID,
				MarkedAt:        &now,
			}
			if err := s.presence.InsertEvent(ctx, marker); err != nil {
				return mapScheduleRepoError(err)
			}
			events = append(events, marker)
		}

		row = s.studentRow(entry, params.StudentID, events, now)
		return nil
	})
	if err != nil {
		return StudentAttendance{}, err
	}
	return row, nil
}

// GetAttendanceDetails returns every rostered student's attendance for a
// session, for actors managing the class.
func (s *AttendanceService) GetAttendanceDetails(ctx context.Context, actor Actor, scheduleID string) (AttendanceReport, error) {
	if err := s.configured(); err != nil {
		return AttendanceReport{}, err
	}

	entry, err := s.schedules.GetEntry(ctx, scheduleID)
	if err != nil {
		return AttendanceReport{}, mapScheduleRepoError(err)
	}
	class, err := s.classes.GetClass(ctx, entry.ClassID)
	if err != nil {
		return AttendanceReport{}, mapScheduleRepoError(err)
	}
	if !access.CanManageClass(actor.Role, actor.UserID, class.TeacherID) {
		return AttendanceReport{}, ErrUnauthorized
	}

	events, err := s.presence.ListEvents(ctx, PresenceFilter{ScheduleIDs: []string{entry.ID}})
	if err != nil {
		return AttendanceReport{}, err
	}
	byStudent := lo.GroupBy(events, func(event PresenceEvent) string { return event.StudentID })

	students := append([]string(nil), class.StudentIDs...)
	sort.Strings(students)

	now := s.now()
	report := AttendanceReport{Entry: entry, Students: make([]StudentAttendance, 0, len(students))}
	for _, studentID := range students {
		report.Students = append(report.Students, s.studentRow(entry, studentID, byStudent[studentID], now))
	}
	report.Summary = attendance.Summarize(lo.Map(report.Students, func(row StudentAttendance, _ int) attendance.Status {
		return row.Status
	}))
	return report, nil
}

// GetMyAttendance returns the acting student's own attendance for a session.
func (s *AttendanceService) GetMyAttendance(ctx context.Context, actor Actor, scheduleID string) (StudentAttendance, error) {
	if err := s.configured(); err != nil {
		return StudentAttendance{}, err
	}
	if !access.IsStudent(actor.Role) {
		return StudentAttendance{}, ErrUnauthorized
	}

	entry, err := s.schedules.GetEntry(ctx, scheduleID)
	if err != nil {
		return StudentAttendance{}, mapScheduleRepoError(err)
	}
	class, err := s.classes.GetClass(ctx, entry.ClassID)
	if err != nil {
		return StudentAttendance{}, mapScheduleRepoError(err)
	}
	if !class.HasStudent(actor.UserID) {
		return StudentAttendance{}, ErrUnauthorized
	}

	events, err := s.presence.ListEvents(ctx, PresenceFilter{
		ScheduleIDs: []string{entry.ID},
		StudentID:   actor.UserID,
	})
	if err != nil {
		return StudentAttendance{}, err
	}
	return s.studentRow(entry, actor.UserID, events, s.now()), nil
}

func (s *AttendanceService) studentRow(entry ScheduleEntry, studentID string, events []PresenceEvent, now time.Time) StudentAttendance {
	sorted := append([]PresenceEvent(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].JoinedAt.Before(sorted[j].JoinedAt) })

	result := s.policy.Classify(classificationInput(entry, sorted, now))
	return StudentAttendance{
		StudentID:          studentID,
		Status:             result.Status,
		AccumulatedSeconds: int64(result.Accumulated / time.Second),
		Ratio:              result.Ratio,
		Connected:          result.Connected,
		Manual:             result.Manual,
		Events:             sorted,
	}
}

// classificationInput converts a pair's presence events into classifier input.
// Zero-length marker events carry a mark but contribute no interval.
func classificationInput(entry ScheduleEntry, events []PresenceEvent, now time.Time) attendance.Input {
	input := attendance.Input{Start: entry.Start, End: entry.End, Now: now}
	for _, event := range events {
		if event.ManualStatus != nil && event.MarkedAt != nil {
			input.Marks = append(input.Marks, attendance.Mark{
				Status:   *event.ManualStatus,
				MarkedBy: event.MarkedBy,
				MarkedAt: *event.MarkedAt,
			})
		}
		if event.LeftAt != nil && !event.LeftAt.After(event.JoinedAt) {
			continue
		}
		input.Intervals = append(input.Intervals, attendance.Interval{
			JoinedAt: event.JoinedAt,
			LeftAt:   cloneTime(event.LeftAt),
		})
	}
	return input
}

func latestEvent(events []PresenceEvent) (PresenceEvent, bool) {
	if len(events) == 0 {
		return PresenceEvent{}, false
	}
	return lo.MaxBy(events, func(a, b PresenceEvent) bool {
		return a.JoinedAt.After(b.JoinedAt)
	}), true
}

func replaceEvent(events []PresenceEvent, updated PresenceEvent) []PresenceEvent {
	out := make([]PresenceEvent, 0, len(events))
	for _, event := range events {
		if event.ID == updated.ID {
			out = append(out, updated)
			continue
		}
		out = append(out, event)
	}
	return out
}

