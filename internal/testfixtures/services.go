package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/class-scheduler/internal/application"
	"github.com/example/class-scheduler/internal/attendance"
	"github.com/example/class-scheduler/internal/recurrence"
	"github.com/example/class-scheduler/internal/storeadapter"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults. The clock
// starts at ReferenceTime.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(referenceTime),
		IDGenerator: NewIDGenerator("id"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(referenceTime)
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// ScheduleServiceDeps captures dependencies for constructing a schedule service.
type ScheduleServiceDeps struct {
	Ports    storeadapter.Ports
	Location *time.Location
	Options  *application.ScheduleOptions
	Logger   *slog.Logger
}

// NewScheduleService builds a schedule service over deps.Ports using the
// factory clock and identifiers.
func (f *ServiceFactory) NewScheduleService(deps ScheduleServiceDeps) *application.ScheduleService {
	location := deps.Location
	if location == nil {
		location = time.UTC
	}
	options := application.DefaultScheduleOptions()
	if deps.Options != nil {
		options = *deps.Options
	}
	return application.NewScheduleServiceWithLogger(
		deps.Ports.Schedules,
		deps.Ports.Classes,
		deps.Ports.Presence,
		deps.Ports.Tx,
		recurrence.NewEngine(location),
		options,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		deps.Logger,
	)
}

// AttendanceServiceDeps captures dependencies for constructing an attendance service.
type AttendanceServiceDeps struct {
	Ports  storeadapter.Ports
	Policy *attendance.Policy
	Logger *slog.Logger
}

// NewAttendanceService builds an attendance service over deps.Ports.
func (f *ServiceFactory) NewAttendanceService(deps AttendanceServiceDeps) *application.AttendanceService {
	policy := attendance.DefaultPolicy()
	if deps.Policy != nil {
		policy = *deps.Policy
	}
	return application.NewAttendanceServiceWithLogger(
		deps.Ports.Schedules,
		deps.Ports.Classes,
		deps.Ports.Presence,
		deps.Ports.Tx,
		policy,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		deps.Logger,
	)
}
