package testfixtures

import (
	"context"
	"testing"
	"time"

	"github.com/example/class-scheduler/internal/application"
	"github.com/example/class-scheduler/internal/attendance"
)

func TestServiceFactory_ScheduleAndAttendanceRoundTrip(t *testing.T) {
	for _, harness := range Harnesses(t) {
		t.Run(harness.Name, func(t *testing.T) {
			ctx := context.Background()
			class := NewClassFixture(WithClassTeacher("teacher-9"), WithClassStudents("student-1"))
			if err := harness.Classes.CreateClass(ctx, class.Persistence()); err != nil {
				t.Fatalf("CreateClass failed: %v", err)
			}

			factory := NewServiceFactory(WithClock(NewClock(referenceTime.Add(-time.Hour))))
			ports := harness.Ports()
			schedules := factory.NewScheduleService(ScheduleServiceDeps{Ports: ports})
			attendanceService := factory.NewAttendanceService(AttendanceServiceDeps{Ports: ports})

			entry, err := schedules.CreateSchedule(ctx, application.CreateScheduleParams{
				Actor: Teacher("teacher-9"),
				Input: application.ScheduleInput{
					ClassID: class.ID,
					Title:   "Algebra",
					Start:   referenceTime,
					End:     referenceTime.Add(time.Hour),
				},
			})
			if err != nil {
				t.Fatalf("CreateSchedule failed: %v", err)
			}
			if entry.ID != "id-1" || entry.RoomName != "room-id-2" {
				t.Fatalf("expected deterministic identifiers, got %q / %q", entry.ID, entry.RoomName)
			}
			if !entry.CreatedAt.Equal(factory.Clock.Current()) {
				t.Fatalf("expected timestamp %v, got %v", factory.Clock.Current(), entry.CreatedAt)
			}

			factory.Clock.Set(referenceTime)
			recorded, err := attendanceService.LogPresence(ctx, application.LogPresenceParams{
				Actor:      Student("student-1"),
				ScheduleID: entry.ID,
				Action:     application.PresenceJoin,
			})
			if err != nil || !recorded {
				t.Fatalf("LogPresence = %v, %v", recorded, err)
			}

			factory.Clock.Set(referenceTime.Add(50 * time.Minute))
			if _, err := attendanceService.LogPresence(ctx, application.LogPresenceParams{
				Actor:      Student("student-1"),
				ScheduleID: entry.ID,
				Action:     application.PresenceLeave,
			}); err != nil {
				t.Fatalf("LogPresence(leave) failed: %v", err)
			}

			factory.Clock.Set(referenceTime.Add(2 * time.Hour))
			row, err := attendanceService.GetMyAttendance(ctx, Student("student-1"), entry.ID)
			if err != nil {
				t.Fatalf("GetMyAttendance failed: %v", err)
			}
			if row.Status != attendance.StatusPresent || row.AccumulatedSeconds != 3000 {
				t.Fatalf("unexpected attendance: %#v", row)
			}
		})
	}
}
