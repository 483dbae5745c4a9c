package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/class-scheduler/internal/access"
	"github.com/example/class-scheduler/internal/attendance"
)

func newAttendanceTestService(t *testing.T) (*AttendanceService, *storeStub, *fixedClock, ScheduleEntry) {
	t.Helper()

	store := newStoreStub()
	seedClasses(store)
	entry := ScheduleEntry{
		ID:       "entry-1",
		ClassID:  "class-1",
		RoomName: "room-entry-1",
		Start:    at(6, 10, 0),
		End:      at(6, 11, 0),
		Status:   ScheduleStatusScheduled,
	}
	store.addEntry(entry)

	clock := &fixedClock{now: at(6, 9, 0)}
	ids := &sequenceIDs{}
	svc := NewAttendanceService(store, store, store, store, attendance.DefaultPolicy(), ids.Next, clock.Now)
	return svc, store, clock, store.entries[entry.ID]
}

func logPresence(t *testing.T, svc *AttendanceService, actor Actor, scheduleID string, action PresenceAction) bool {
	t.Helper()
	recorded, err := svc.LogPresence(context.Background(), LogPresenceParams{Actor: actor, ScheduleID: scheduleID, Action: action})
	if err != nil {
		t.Fatalf("LogPresence(%s) returned error: %v", action, err)
	}
	return recorded
}

func TestAttendanceService_LogPresence_ClassifiesPresent(t *testing.T) {
	t.Parallel()

	svc, store, clock, entry := newAttendanceTestService(t)

	clock.Set(at(6, 9, 55))
	if !logPresence(t, svc, studentActor, entry.ID, PresenceJoin) {
		t.Fatalf("expected join to be recorded")
	}
	clock.Set(at(6, 10, 40))
	if !logPresence(t, svc, studentActor, entry.ID, PresenceLeave) {
		t.Fatalf("expected leave to be recorded")
	}

	if open := store.openEvents(entry.ID, studentActor.UserID); open != 0 {
		t.Fatalf("expected no open events, got %d", open)
	}

	clock.Set(at(6, 12, 0))
	row, err := svc.GetMyAttendance(context.Background(), studentActor, entry.ID)
	if err != nil {
		t.Fatalf("GetMyAttendance returned error: %v", err)
	}
	if row.Status != attendance.StatusPresent {
		t.Fatalf("expected present, got %q", row.Status)
	}
	if row.AccumulatedSeconds != int64((40 * time.Minute).Seconds()) {
		t.Fatalf("expected 40 minutes clamped to the session, got %ds", row.AccumulatedSeconds)
	}
	if len(row.Events) != 1 || row.Events[0].DurationSeconds == nil || *row.Events[0].DurationSeconds != int64((45*time.Minute).Seconds()) {
		t.Fatalf("expected one closed 45 minute event, got %#v", row.Events)
	}
}

func TestAttendanceService_LogPresence_JoinClosesOpenEvent(t *testing.T) {
	t.Parallel()

	svc, store, clock, entry := newAttendanceTestService(t)

	clock.Set(at(6, 10, 0))
	logPresence(t, svc, studentActor, entry.ID, PresenceJoin)
	clock.Set(at(6, 10, 10))
	logPresence(t, svc, studentActor, entry.ID, PresenceJoin)

	if open := store.openEvents(entry.ID, studentActor.UserID); open != 1 {
		t.Fatalf("expected exactly one open event, got %d", open)
	}
	if len(store.presence) != 2 {
		t.Fatalf("expected two events, got %d", len(store.presence))
	}

	clock.Set(at(6, 10, 20))
	logPresence(t, svc, studentActor, entry.ID, PresenceLeave)
	if open := store.openEvents(entry.ID, studentActor.UserID); open != 0 {
		t.Fatalf("expected the reconnection to be closed, got %d open", open)
	}
}

func TestAttendanceService_LogPresence_IgnoredSignals(t *testing.T) {
	t.Parallel()

	svc, store, _, entry := newAttendanceTestService(t)

	if logPresence(t, svc, studentActor, entry.ID, PresenceLeave) {
		t.Fatalf("leave without an open event must not be recorded")
	}
	if logPresence(t, svc, teacherActor, entry.ID, PresenceJoin) {
		t.Fatalf("teacher presence must not be recorded")
	}
	outsider := Actor{UserID: "student-9", Role: access.RoleStudent}
	if logPresence(t, svc, outsider, entry.ID, PresenceJoin) {
		t.Fatalf("unenrolled student presence must not be recorded")
	}
	if len(store.presence) != 0 {
		t.Fatalf("expected empty ledger, got %d events", len(store.presence))
	}

	_, err := svc.LogPresence(context.Background(), LogPresenceParams{Actor: studentActor, ScheduleID: entry.ID, Action: "wave"})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error for unknown action, got %v", err)
	}

	_, err = svc.LogPresence(context.Background(), LogPresenceParams{Actor: studentActor, ScheduleID: "missing", Action: PresenceJoin})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAttendanceService_UpdateAttendance(t *testing.T) {
	t.Parallel()

	t.Run("manual mark without events", func(t *testing.T) {
		t.Parallel()

		svc, store, clock, entry := newAttendanceTestService(t)
		clock.Set(at(6, 12, 0))

		row, err := svc.UpdateAttendance(context.Background(), UpdateAttendanceParams{
			Actor:      teacherActor,
			ScheduleID: entry.ID,
			StudentID:  "student-2",
			Status:     "excused",
		})
		if err != nil {
			t.Fatalf("UpdateAttendance returned error: %v", err)
		}
		if row.Status != attendance.StatusExcused || row.Manual == nil || row.Manual.MarkedBy != teacherActor.UserID {
			t.Fatalf("expected excused manual mark, got %#v", row)
		}
		if len(store.presence) != 1 {
			t.Fatalf("expected a marker event, got %d", len(store.presence))
		}
		for _, event := range store.presence {
			if event.IsOpen() || event.DurationSeconds == nil || *event.DurationSeconds != 0 {
				t.Fatalf("expected closed zero-length marker, got %#v", event)
			}
		}
	})

	t.Run("latest mark wins over presence", func(t *testing.T) {
		t.Parallel()

		svc, store, clock, entry := newAttendanceTestService(t)
		clock.Set(at(6, 10, 0))
		logPresence(t, svc, studentActor, entry.ID, PresenceJoin)
		clock.Set(at(6, 10, 50))
		logPresence(t, svc, studentActor, entry.ID, PresenceLeave)

		clock.Set(at(6, 11, 30))
		if _, err := svc.UpdateAttendance(context.Background(), UpdateAttendanceParams{
			Actor: teacherActor, ScheduleID: entry.ID, StudentID: studentActor.UserID, Status: "late",
		}); err != nil {
			t.Fatalf("UpdateAttendance returned error: %v", err)
		}
		clock.Set(at(6, 11, 45))
		row, err := svc.UpdateAttendance(context.Background(), UpdateAttendanceParams{
			Actor: adminActor, ScheduleID: entry.ID, StudentID: studentActor.UserID, Status: "ABSENT",
		})
		if err != nil {
			t.Fatalf("UpdateAttendance returned error: %v", err)
		}
		if row.Status != attendance.StatusAbsent {
			t.Fatalf("expected the latest mark to win, got %q", row.Status)
		}
		if row.AccumulatedSeconds != int64((50 * time.Minute).Seconds()) {
			t.Fatalf("manual marks must not erase measured time, got %ds", row.AccumulatedSeconds)
		}
		if len(store.presence) != 1 {
			t.Fatalf("expected the mark on the existing event, got %d events", len(store.presence))
		}
	})

	t.Run("rejections", func(t *testing.T) {
		t.Parallel()

		svc, store, _, entry := newAttendanceTestService(t)
		ctx := context.Background()

		var vErr *ValidationError
		if _, err := svc.UpdateAttendance(ctx, UpdateAttendanceParams{
			Actor: teacherActor, ScheduleID: entry.ID, StudentID: "student-1", Status: "in-progress",
		}); !errors.As(err, &vErr) || vErr.FieldErrors["status"] == "" {
			t.Fatalf("expected status validation error, got %v", err)
		}
		if _, err := svc.UpdateAttendance(ctx, UpdateAttendanceParams{
			Actor: teacherActor, ScheduleID: entry.ID, StudentID: "student-3", Status: "present",
		}); !errors.As(err, &vErr) || vErr.FieldErrors["student_id"] == "" {
			t.Fatalf("expected roster validation error, got %v", err)
		}
		if _, err := svc.UpdateAttendance(ctx, UpdateAttendanceParams{
			Actor: otherTeacher, ScheduleID: entry.ID, StudentID: "student-1", Status: "present",
		}); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
		if _, err := svc.UpdateAttendance(ctx, UpdateAttendanceParams{
			Actor: studentActor, ScheduleID: entry.ID, StudentID: "student-1", Status: "present",
		}); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected students to be rejected, got %v", err)
		}
		if len(store.presence) != 0 {
			t.Fatalf("rejected updates must not write, got %d events", len(store.presence))
		}
	})
}

func TestAttendanceService_GetAttendanceDetails(t *testing.T) {
	t.Parallel()

	svc, _, clock, entry := newAttendanceTestService(t)
	ctx := context.Background()

	clock.Set(at(6, 10, 0))
	logPresence(t, svc, studentActor, entry.ID, PresenceJoin)
	if _, err := svc.UpdateAttendance(ctx, UpdateAttendanceParams{
		Actor: teacherActor, ScheduleID: entry.ID, StudentID: "student-2", Status: "excused",
	}); err != nil {
		t.Fatalf("UpdateAttendance returned error: %v", err)
	}

	clock.Set(at(6, 10, 1))
	report, err := svc.GetAttendanceDetails(ctx, teacherActor, entry.ID)
	if err != nil {
		t.Fatalf("GetAttendanceDetails returned error: %v", err)
	}
	if report.Entry.ID != entry.ID || len(report.Students) != 2 {
		t.Fatalf("unexpected report: %#v", report)
	}

	first := report.Students[0]
	if first.StudentID != "student-1" || first.Status != attendance.StatusInProgress || !first.Connected {
		t.Fatalf("unexpected first row: %#v", first)
	}
	if first.AccumulatedSeconds != 60 {
		t.Fatalf("expected one minute so far, got %ds", first.AccumulatedSeconds)
	}
	second := report.Students[1]
	if second.StudentID != "student-2" || second.Status != attendance.StatusExcused {
		t.Fatalf("unexpected second row: %#v", second)
	}

	want := attendance.Summary{Total: 2, Present: 1, Partial: 0, Missed: 1}
	if report.Summary != want {
		t.Fatalf("expected summary %#v, got %#v", want, report.Summary)
	}

	if _, err := svc.GetAttendanceDetails(ctx, studentActor, entry.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected students to be rejected, got %v", err)
	}
	if _, err := svc.GetAttendanceDetails(ctx, adminActor, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAttendanceService_GetMyAttendance(t *testing.T) {
	t.Parallel()

	svc, _, clock, entry := newAttendanceTestService(t)
	ctx := context.Background()

	row, err := svc.GetMyAttendance(ctx, studentActor, entry.ID)
	if err != nil {
		t.Fatalf("GetMyAttendance returned error: %v", err)
	}
	if row.Status != attendance.StatusUpcoming {
		t.Fatalf("expected upcoming before start, got %q", row.Status)
	}

	clock.Set(at(6, 10, 30))
	row, err = svc.GetMyAttendance(ctx, studentActor, entry.ID)
	if err != nil {
		t.Fatalf("GetMyAttendance returned error: %v", err)
	}
	if row.Status != attendance.StatusLate {
		t.Fatalf("expected late while absent during the session, got %q", row.Status)
	}

	clock.Set(at(6, 11, 30))
	row, err = svc.GetMyAttendance(ctx, studentActor, entry.ID)
	if err != nil {
		t.Fatalf("GetMyAttendance returned error: %v", err)
	}
	if row.Status != attendance.StatusAbsent {
		t.Fatalf("expected absent after the session, got %q", row.Status)
	}

	if _, err := svc.GetMyAttendance(ctx, teacherActor, entry.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected teachers to be rejected, got %v", err)
	}
	outsider := Actor{UserID: "student-9", Role: access.RoleStudent}
	if _, err := svc.GetMyAttendance(ctx, outsider, entry.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unenrolled students to be rejected, got %v", err)
	}
}

func TestClassificationInput_SkipsMarkerIntervals(t *testing.T) {
	t.Parallel()

	entry := ScheduleEntry{Start: at(6, 10, 0), End: at(6, 11, 0)}
	marked := at(6, 12, 0)
	excused := attendance.StatusExcused
	var zero int64
	events := []PresenceEvent{
		{ID: "p-1", JoinedAt: at(6, 10, 0), LeftAt: ptrTime(at(6, 10, 30))},
		{ID: "p-2", JoinedAt: marked, LeftAt: &marked, DurationSeconds: &zero, ManualStatus: &excused, MarkedBy: "teacher-1", MarkedAt: &marked},
		{ID: "p-3", JoinedAt: at(6, 10, 45)},
	}

	input := classificationInput(entry, events, at(6, 12, 30))
	if len(input.Intervals) != 2 {
		t.Fatalf("expected marker interval to be skipped, got %d intervals", len(input.Intervals))
	}
	if len(input.Marks) != 1 || input.Marks[0].Status != attendance.StatusExcused {
		t.Fatalf("expected one excused mark, got %#v", input.Marks)
	}
}

func ptrTime(value time.Time) *time.Time {
	return &value
}
