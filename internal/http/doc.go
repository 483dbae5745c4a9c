// Package http exposes the scheduling and attendance services over JSON/HTTP.
//
// Every route requires a bearer JWT (HS256, claims "sub" and "role") that is
// verified by RequireActor; the resulting application.Actor is passed to the
// services explicitly.
//
//   - GET /schedules, POST /schedules, POST /schedules/recurring: the caller's
//     schedule (filters: from, to, period+date, class_id, status,
//     include_cancelled) and entry creation.
//   - PUT /schedules/{id}, DELETE /schedules/{id}, POST /schedules/{id}/cancel:
//     edits that accept ?series=true to apply to the whole recurring series.
//   - POST /schedules/{id}/complete: explicit completion.
//   - GET /sessions/{ref}: live classroom status by entry ID or room name.
//   - POST /rooms/{roomName}/live: the video subsystem's live signal, body {"is_live"}.
//   - POST /schedules/{id}/presence: join/leave signal, body {"action"}.
//   - GET /schedules/{id}/attendance, GET /schedules/{id}/attendance/me,
//     PUT /schedules/{id}/attendance/{studentID}: attendance reports and
//     manual overrides, body {"status"}.
//   - POST /internal/sweep: completes elapsed sessions.
//
// Errors are JSON {"error_code","message","errors"}: 422 for validation
// failures, 409 with CLASS_CONFLICT or TEACHER_CONFLICT for overlaps, 404,
// 403 for forbidden operations and 401 for missing or invalid tokens.
package http
