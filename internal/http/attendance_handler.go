package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/samber/lo"

	"github.com/example/class-scheduler/internal/application"
	"github.com/example/class-scheduler/internal/attendance"
)

type attendanceService interface {
	LogPresence(ctx context.Context, params application.LogPresenceParams) (bool, error)
	UpdateAttendance(ctx context.Context, params application.UpdateAttendanceParams) (application.StudentAttendance, error)
	GetAttendanceDetails(ctx context.Context, actor application.Actor, scheduleID string) (application.AttendanceReport, error)
	GetMyAttendance(ctx context.Context, actor application.Actor, scheduleID string) (application.StudentAttendance, error)
}

// AttendanceHandler serves presence signals and attendance reports.
type AttendanceHandler struct {
	service   attendanceService
	responder responder
	logger    *slog.Logger
}

// NewAttendanceHandler constructs an AttendanceHandler.
func NewAttendanceHandler(service attendanceService, logger *slog.Logger) *AttendanceHandler {
	return &AttendanceHandler{service: service, responder: newResponder(logger), logger: defaultLogger(logger)}
}

// LogPresence handles POST /schedules/{id}/presence.
func (h *AttendanceHandler) LogPresence(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	scheduleID := strings.TrimSpace(r.PathValue("id"))
	var req presenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	if err := validateRequest(&req); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	actor, _ := ActorFromContext(r.Context())
	recorded, err := h.service.LogPresence(r.Context(), application.LogPresenceParams{
		Actor:      actor,
		ScheduleID: scheduleID,
		Action:     application.PresenceAction(req.Action),
	})
	if err != nil {
		handlerLogger(r.Context(), h.logger, "AttendanceHandler", "LogPresence", "schedule_id", scheduleID).
			WarnContext(r.Context(), "presence signal failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, presenceResponse{Recorded: recorded})
}

// UpdateAttendance handles PUT /schedules/{id}/attendance/{studentID}.
func (h *AttendanceHandler) UpdateAttendance(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req attendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	if err := validateRequest(&req); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	actor, _ := ActorFromContext(r.Context())
	row, err := h.service.UpdateAttendance(r.Context(), application.UpdateAttendanceParams{
		Actor:      actor,
		ScheduleID: strings.TrimSpace(r.PathValue("id")),
		StudentID:  strings.TrimSpace(r.PathValue("studentID")),
		Status:     req.Status,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toStudentAttendanceDTO(row))
}

// Details handles GET /schedules/{id}/attendance.
func (h *AttendanceHandler) Details(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	actor, _ := ActorFromContext(r.Context())
	report, err := h.service.GetAttendanceDetails(r.Context(), actor, strings.TrimSpace(r.PathValue("id")))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, attendanceReportDTO{
		Schedule: toScheduleDTO(report.Entry),
		Students: lo.Map(report.Students, func(row application.StudentAttendance, _ int) studentAttendanceDTO {
			return toStudentAttendanceDTO(row)
		}),
		Summary: report.Summary,
	})
}

// Mine handles GET /schedules/{id}/attendance/me.
func (h *AttendanceHandler) Mine(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	actor, _ := ActorFromContext(r.Context())
	row, err := h.service.GetMyAttendance(r.Context(), actor, strings.TrimSpace(r.PathValue("id")))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toStudentAttendanceDTO(row))
}

type presenceRequest struct {
	Action string `json:"action" validate:"required,oneof=join leave"`
}

type presenceResponse struct {
	Recorded bool `json:"recorded"`
}

type attendanceRequest struct {
	Status string `json:"status" validate:"notblank"`
}

type attendanceReportDTO struct {
	Schedule scheduleDTO            `json:"schedule"`
	Students []studentAttendanceDTO `json:"students"`
	Summary  attendance.Summary     `json:"summary"`
}

type studentAttendanceDTO struct {
	StudentID          string             `json:"student_id"`
	Status             string             `json:"status"`
	AccumulatedSeconds int64              `json:"accumulated_seconds"`
	Ratio              float64            `json:"ratio"`
	Connected          bool               `json:"connected"`
	Manual             *manualMarkDTO     `json:"manual,omitempty"`
	Events             []presenceEventDTO `json:"events"`
}

type manualMarkDTO struct {
	Status   string `json:"status"`
	MarkedBy string `json:"marked_by"`
	MarkedAt string `json:"marked_at"`
}

type presenceEventDTO struct {
	ID              string  `json:"id"`
	JoinedAt        string  `json:"joined_at"`
	LeftAt          *string `json:"left_at,omitempty"`
	DurationSeconds *int64  `json:"duration_seconds,omitempty"`
	ManualStatus    *string `json:"manual_status,omitempty"`
}

func toStudentAttendanceDTO(row application.StudentAttendance) studentAttendanceDTO {
	dto := studentAttendanceDTO{
		StudentID:          row.StudentID,
		Status:             string(row.Status),
		AccumulatedSeconds: row.AccumulatedSeconds,
		Ratio:              row.Ratio,
		Connected:          row.Connected,
		Events: lo.Map(row.Events, func(event application.PresenceEvent, _ int) presenceEventDTO {
			out := presenceEventDTO{
				ID:              event.ID,
				JoinedAt:        formatTime(event.JoinedAt),
				LeftAt:          formatTimePtr(event.LeftAt),
				DurationSeconds: event.DurationSeconds,
			}
			if event.ManualStatus != nil {
				out.ManualStatus = lo.ToPtr(string(*event.ManualStatus))
			}
			return out
		}),
	}
	if row.Manual != nil {
		dto.Manual = &manualMarkDTO{
			Status:   string(row.Manual.Status),
			MarkedBy: row.Manual.MarkedBy,
			MarkedAt: formatTime(row.Manual.MarkedAt),
		}
	}
	return dto
}
