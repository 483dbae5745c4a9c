package http

import (
	"net/http"
)

// RouterConfig collects the handlers and middleware mounted by NewRouter.
type RouterConfig struct {
	Schedules  *ScheduleHandler
	Attendance *AttendanceHandler
	Middleware []func(http.Handler) http.Handler
}

// NewRouter registers every endpoint on a ServeMux and wraps it with cfg.Middleware,
// the first middleware being the outermost.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if cfg.Schedules != nil {
		mux.HandleFunc("GET /schedules", cfg.Schedules.List)
		mux.HandleFunc("POST /schedules", cfg.Schedules.Create)
		mux.HandleFunc("POST /schedules/recurring", cfg.Schedules.CreateRecurring)
		mux.HandleFunc("PUT /schedules/{id}", cfg.Schedules.Update)
		mux.HandleFunc("DELETE /schedules/{id}", cfg.Schedules.Delete)
		mux.HandleFunc("POST /schedules/{id}/cancel", cfg.Schedules.Cancel)
		mux.HandleFunc("POST /schedules/{id}/complete", cfg.Schedules.Complete)
		mux.HandleFunc("GET /sessions/{ref}", cfg.Schedules.SessionStatus)
		mux.HandleFunc("POST /rooms/{roomName}/live", cfg.Schedules.MarkLive)
		mux.HandleFunc("POST /internal/sweep", cfg.Schedules.Sweep)
	}

	if cfg.Attendance != nil {
		mux.HandleFunc("POST /schedules/{id}/presence", cfg.Attendance.LogPresence)
		mux.HandleFunc("GET /schedules/{id}/attendance", cfg.Attendance.Details)
		mux.HandleFunc("GET /schedules/{id}/attendance/me", cfg.Attendance.Mine)
		mux.HandleFunc("PUT /schedules/{id}/attendance/{studentID}", cfg.Attendance.UpdateAttendance)
	}

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}

	return handler
}
