package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cast"

	"github.com/example/class-scheduler/internal/application"
)

type scheduleService interface {
	CreateSchedule(ctx context.Context, params application.CreateScheduleParams) (application.ScheduleEntry, error)
	CreateRecurringSchedule(ctx context.Context, params application.CreateRecurringScheduleParams) ([]application.ScheduleEntry, error)
	UpdateSchedule(ctx context.Context, params application.UpdateScheduleParams) ([]application.ScheduleEntry, error)
	CancelSchedule(ctx context.Context, actor application.Actor, scheduleID string, cancelSeries bool) ([]application.ScheduleEntry, error)
	DeleteSchedule(ctx context.Context, actor application.Actor, scheduleID string, deleteSeries bool) error
	CompleteSchedule(ctx context.Context, actor application.Actor, scheduleID string) (application.ScheduleEntry, error)
	MarkLive(ctx context.Context, actor application.Actor, roomName string, isLive bool) (application.ScheduleEntry, error)
	SweepElapsed(ctx context.Context, actor application.Actor) (application.SweepResult, error)
	GetMySchedule(ctx context.Context, params application.ListScheduleParams) ([]application.ScheduleView, error)
	GetSessionStatus(ctx context.Context, actor application.Actor, ref string) (application.SessionStatus, error)
}

// ScheduleHandler serves schedule, classroom and sweep endpoints.
type ScheduleHandler struct {
	service   scheduleService
	responder responder
	logger    *slog.Logger
}

// NewScheduleHandler constructs a ScheduleHandler.
func NewScheduleHandler(service scheduleService, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{service: service, responder: newResponder(logger), logger: defaultLogger(logger)}
}

func (h *ScheduleHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

// Create handles POST /schedules.
func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var req scheduleRequest
	if !h.decode(w, r, &req) {
		return
	}

	actor, _ := ActorFromContext(r.Context())
	entry, err := h.service.CreateSchedule(r.Context(), application.CreateScheduleParams{
		Actor: actor,
		Input: req.toInput(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, scheduleResponse{Schedule: toScheduleDTO(entry)})
}

// CreateRecurring handles POST /schedules/recurring.
func (h *ScheduleHandler) CreateRecurring(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var req recurringScheduleRequest
	if !h.decode(w, r, &req) {
		return
	}

	actor, _ := ActorFromContext(r.Context())
	entries, err := h.service.CreateRecurringSchedule(r.Context(), application.CreateRecurringScheduleParams{
		Actor:      actor,
		Input:      req.toInput(),
		Recurrence: req.Recurrence.toInput(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, listSchedulesResponse{Schedules: toScheduleDTOs(entries)})
}

// Update handles PUT /schedules/{id}. ?series=true applies the edit to the whole series.
func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	scheduleID, ok := h.scheduleID(w, r)
	if !ok {
		return
	}
	series, ok := h.seriesFlag(w, r)
	if !ok {
		return
	}

	var req updateScheduleRequest
	if !h.decode(w, r, &req) {
		return
	}

	actor, _ := ActorFromContext(r.Context())
	entries, err := h.service.UpdateSchedule(r.Context(), application.UpdateScheduleParams{
		Actor:        actor,
		ScheduleID:   scheduleID,
		Input:        req.toInput(),
		UpdateSeries: series,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listSchedulesResponse{Schedules: toScheduleDTOs(entries)})
}

// Cancel handles POST /schedules/{id}/cancel.
func (h *ScheduleHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	scheduleID, ok := h.scheduleID(w, r)
	if !ok {
		return
	}
	series, ok := h.seriesFlag(w, r)
	if !ok {
		return
	}

	actor, _ := ActorFromContext(r.Context())
	entries, err := h.service.CancelSchedule(r.Context(), actor, scheduleID, series)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listSchedulesResponse{Schedules: toScheduleDTOs(entries)})
}

// Delete handles DELETE /schedules/{id}.
func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	scheduleID, ok := h.scheduleID(w, r)
	if !ok {
		return
	}
	series, ok := h.seriesFlag(w, r)
	if !ok {
		return
	}

	actor, _ := ActorFromContext(r.Context())
	if err := h.service.DeleteSchedule(r.Context(), actor, scheduleID, series); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// Complete handles POST /schedules/{id}/complete.
func (h *ScheduleHandler) Complete(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	scheduleID, ok := h.scheduleID(w, r)
	if !ok {
		return
	}

	actor, _ := ActorFromContext(r.Context())
	entry, err := h.service.CompleteSchedule(r.Context(), actor, scheduleID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, scheduleResponse{Schedule: toScheduleDTO(entry)})
}

// List handles GET /schedules.
func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	actor, _ := ActorFromContext(r.Context())
	params, err := buildListParams(r.URL.Query(), actor)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	views, err := h.service.GetMySchedule(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, scheduleViewsResponse{
		Schedules: lo.Map(views, func(view application.ScheduleView, _ int) scheduleViewDTO {
			return toScheduleViewDTO(view)
		}),
	})
}

// SessionStatus handles GET /sessions/{ref}; ref is an entry ID or a room name.
func (h *ScheduleHandler) SessionStatus(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	ref := strings.TrimSpace(r.PathValue("ref"))
	if ref == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidScheduleID)
		return
	}

	actor, _ := ActorFromContext(r.Context())
	status, err := h.service.GetSessionStatus(r.Context(), actor, ref)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, sessionStatusDTO{
		Schedule:       toScheduleDTO(status.Entry),
		Status:         string(status.Entry.Status),
		IsLive:         status.Entry.IsLive,
		ConnectedCount: status.ConnectedCount,
		CanJoin:        status.CanJoin,
	})
}

// MarkLive handles POST /rooms/{roomName}/live, the video subsystem's room signal.
func (h *ScheduleHandler) MarkLive(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	roomName := strings.TrimSpace(r.PathValue("roomName"))
	var req markLiveRequest
	if !h.decode(w, r, &req) {
		return
	}

	actor, _ := ActorFromContext(r.Context())
	entry, err := h.service.MarkLive(r.Context(), actor, roomName, *req.IsLive)
	if err != nil {
		handlerLogger(r.Context(), h.logger, "ScheduleHandler", "MarkLive", "room_name", roomName).
			WarnContext(r.Context(), "mark live failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, scheduleResponse{Schedule: toScheduleDTO(entry)})
}

// Sweep handles POST /internal/sweep.
func (h *ScheduleHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	actor, _ := ActorFromContext(r.Context())
	result, err := h.service.SweepElapsed(r.Context(), actor)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	completed := result.CompletedIDs
	if completed == nil {
		completed = []string{}
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, sweepResponse{CompletedIDs: completed})
}

func (h *ScheduleHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return false
	}
	if err := validateRequest(dst); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return false
	}
	return true
}

func (h *ScheduleHandler) scheduleID(w http.ResponseWriter, r *http.Request) (string, bool) {
	scheduleID := strings.TrimSpace(r.PathValue("id"))
	if scheduleID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidScheduleID)
		return "", false
	}
	return scheduleID, true
}

func (h *ScheduleHandler) seriesFlag(w http.ResponseWriter, r *http.Request) (bool, bool) {
	series, err := parseBoolQuery(r.URL.Query(), "series")
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return false, false
	}
	return series, true
}

type scheduleRequest struct {
	ClassID     string    `json:"class_id" validate:"notblank"`
	LessonID    *string   `json:"lesson_id"`
	Title       string    `json:"title" validate:"max=200"`
	Description string    `json:"description"`
	Start       time.Time `json:"start" validate:"required"`
	End         time.Time `json:"end" validate:"required"`
}

func (r scheduleRequest) toInput() application.ScheduleInput {
	return application.ScheduleInput{
		ClassID:     strings.TrimSpace(r.ClassID),
		LessonID:    trimOptional(r.LessonID),
		Title:       strings.TrimSpace(r.Title),
		Description: r.Description,
		Start:       r.Start,
		End:         r.End,
	}
}

type recurrenceRequest struct {
	Type     string     `json:"type" validate:"required,oneof=daily weekly biweekly monthly"`
	Weekdays []int      `json:"weekdays" validate:"dive,min=0,max=6"`
	Until    *time.Time `json:"until"`
	Count    int        `json:"count" validate:"min=0"`
}

func (r recurrenceRequest) toInput() application.RecurrenceInput {
	return application.RecurrenceInput{
		Frequency: strings.ToLower(strings.TrimSpace(r.Type)),
		Weekdays: lo.Map(r.Weekdays, func(day int, _ int) time.Weekday {
			return time.Weekday(day)
		}),
		Until: r.Until,
		Count: r.Count,
	}
}

type recurringScheduleRequest struct {
	ClassID     string            `json:"class_id" validate:"notblank"`
	LessonID    *string           `json:"lesson_id"`
	Title       string            `json:"title" validate:"max=200"`
	Description string            `json:"description"`
	Start       time.Time         `json:"start" validate:"required"`
	End         time.Time         `json:"end" validate:"required"`
	Recurrence  recurrenceRequest `json:"recurrence" validate:"required"`
}

func (r recurringScheduleRequest) toInput() application.ScheduleInput {
	return scheduleRequest{
		ClassID:     r.ClassID,
		LessonID:    r.LessonID,
		Title:       r.Title,
		Description: r.Description,
		Start:       r.Start,
		End:         r.End,
	}.toInput()
}

type updateScheduleRequest struct {
	LessonID    *string   `json:"lesson_id"`
	Title       string    `json:"title" validate:"max=200"`
	Description string    `json:"description"`
	Start       time.Time `json:"start" validate:"required"`
	End         time.Time `json:"end" validate:"required"`
}

func (r updateScheduleRequest) toInput() application.UpdateScheduleInput {
	return application.UpdateScheduleInput{
		LessonID:    trimOptional(r.LessonID),
		Title:       strings.TrimSpace(r.Title),
		Description: r.Description,
		Start:       r.Start,
		End:         r.End,
	}
}

type markLiveRequest struct {
	IsLive *bool `json:"is_live" validate:"required"`
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

type scheduleResponse struct {
	Schedule scheduleDTO `json:"schedule"`
}

type listSchedulesResponse struct {
	Schedules []scheduleDTO `json:"schedules"`
}

type scheduleViewsResponse struct {
	Schedules []scheduleViewDTO `json:"schedules"`
}

type sweepResponse struct {
	CompletedIDs []string `json:"completed_ids"`
}

type scheduleDTO struct {
	ID                 string  `json:"id"`
	ClassID            string  `json:"class_id"`
	ClassName          string  `json:"class_name,omitempty"`
	TeacherID          string  `json:"teacher_id,omitempty"`
	LessonID           *string `json:"lesson_id,omitempty"`
	Title              string  `json:"title"`
	Description        string  `json:"description"`
	Start              string  `json:"start"`
	End                string  `json:"end"`
	RoomName           string  `json:"room_name"`
	IsLive             bool    `json:"is_live"`
	Status             string  `json:"status"`
	IsRecurring        bool    `json:"is_recurring"`
	RecurrenceParentID *string `json:"recurrence_parent_id,omitempty"`
	RecurrenceRule     *string `json:"recurrence_rule,omitempty"`
	CreatedBy          string  `json:"created_by"`
	CreatedAt          string  `json:"created_at"`
	UpdatedAt          string  `json:"updated_at"`
}

func toScheduleDTO(entry application.ScheduleEntry) scheduleDTO {
	dto := scheduleDTO{
		ID:             entry.ID,
		ClassID:        entry.ClassID,
		ClassName:      entry.ClassName,
		TeacherID:      entry.TeacherID,
		LessonID:       entry.LessonID,
		Title:          entry.Title,
		Description:    entry.Description,
		Start:          formatTime(entry.Start),
		End:            formatTime(entry.End),
		RoomName:       entry.RoomName,
		IsLive:         entry.IsLive,
		Status:         string(entry.Status),
		IsRecurring:    entry.IsRecurring,
		RecurrenceRule: entry.RecurrenceRule,
		CreatedBy:      entry.CreatedBy,
		CreatedAt:      formatTime(entry.CreatedAt),
		UpdatedAt:      formatTime(entry.UpdatedAt),
	}
	if entry.RecurrenceParent != nil {
		dto.RecurrenceParentID = lo.ToPtr(string(*entry.RecurrenceParent))
	}
	return dto
}

func toScheduleDTOs(entries []application.ScheduleEntry) []scheduleDTO {
	out := make([]scheduleDTO, 0, len(entries))
	for _, entry := range entries {
		out = append(out, toScheduleDTO(entry))
	}
	return out
}

type scheduleViewDTO struct {
	scheduleDTO
	CanJoin    bool    `json:"can_join"`
	Attendance *string `json:"attendance,omitempty"`
}

func toScheduleViewDTO(view application.ScheduleView) scheduleViewDTO {
	dto := scheduleViewDTO{scheduleDTO: toScheduleDTO(view.Entry), CanJoin: view.CanJoin}
	if view.Attendance != nil {
		dto.Attendance = lo.ToPtr(string(*view.Attendance))
	}
	return dto
}

type sessionStatusDTO struct {
	Schedule       scheduleDTO `json:"schedule"`
	Status         string      `json:"status"`
	IsLive         bool        `json:"is_live"`
	ConnectedCount int         `json:"connected_count"`
	CanJoin        bool        `json:"can_join"`
}

func buildListParams(values url.Values, actor application.Actor) (application.ListScheduleParams, error) {
	params := application.ListScheduleParams{Actor: actor}
	vErr := &application.ValidationError{FieldErrors: map[string]string{}}

	parseInstant := func(key string) *time.Time {
		raw := strings.TrimSpace(values.Get(key))
		if raw == "" {
			return nil
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			vErr.FieldErrors[key] = "must be an RFC 3339 timestamp"
			return nil
		}
		return &ts
	}
	params.From = parseInstant("from")
	params.To = parseInstant("to")

	if period := strings.ToLower(strings.TrimSpace(values.Get("period"))); period != "" {
		switch application.ListPeriod(period) {
		case application.ListPeriodDay, application.ListPeriodWeek, application.ListPeriodMonth:
			params.Period = application.ListPeriod(period)
		default:
			vErr.FieldErrors["period"] = "must be one of: day week month"
		}
		if date := strings.TrimSpace(values.Get("date")); date != "" {
			if _, err := time.Parse(time.DateOnly, date); err != nil {
				vErr.FieldErrors["date"] = "must be a YYYY-MM-DD date"
			}
			params.PeriodDate = date
		}
	}

	params.ClassID = strings.TrimSpace(values.Get("class_id"))

	if statuses := parseCSV(values.Get("status")); len(statuses) > 0 {
		for _, status := range statuses {
			switch s := application.ScheduleStatus(strings.ToLower(status)); s {
			case application.ScheduleStatusScheduled, application.ScheduleStatusActive,
				application.ScheduleStatusCompleted, application.ScheduleStatusCancelled:
				params.Statuses = append(params.Statuses, s)
			default:
				vErr.FieldErrors["status"] = "must be one of: scheduled active completed cancelled"
			}
		}
	}

	includeCancelled, err := parseBoolQuery(values, "include_cancelled")
	if err != nil {
		return params, err
	}
	params.IncludeCancelled = includeCancelled

	if vErr.HasErrors() {
		return params, vErr
	}
	return params, nil
}

func parseBoolQuery(values url.Values, key string) (bool, error) {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return false, nil
	}
	value, err := cast.ToBoolE(raw)
	if err != nil {
		return false, &application.ValidationError{FieldErrors: map[string]string{key: "must be a boolean"}}
	}
	return value, nil
}

func parseCSV(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
