package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/example/class-scheduler/internal/persistence"
)

// PresenceRepository implements persistence.PresenceRepository using SQLite
type PresenceRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

var _ persistence.PresenceRepository = (*PresenceRepository)(nil)

// NewPresenceRepository creates a new SQLite presence repository
func NewPresenceRepository(pool *ConnectionPool) *PresenceRepository {
	return &PresenceRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// InsertEvent appends an event to the ledger. A second open event for the
// same schedule and student is rejected as a duplicate.
func (r *PresenceRepository) InsertEvent(ctx context.Context, event persistence.PresenceEvent) error {
	if event.ID == "" {
		return persistence.ErrConstraintViolation
	}

	query := `
		INSERT INTO presence_events (
			id, schedule_id, student_id, joined_at, left_at, duration_seconds,
			manual_status, marked_by, marked_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.helper.Exec(ctx, query,
		event.ID,
		event.ScheduleID,
		event.StudentID,
		formatTime(event.JoinedAt),
		nullTime(event.LeftAt),
		nullInt64(event.DurationSeconds),
		nullString(event.ManualStatus),
		nullEmptyString(event.MarkedBy),
		nullTime(event.MarkedAt),
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

// UpdateEvent rewrites the closing and marking columns of an event.
func (r *PresenceRepository) UpdateEvent(ctx context.Context, event persistence.PresenceEvent) error {
	query := `
		UPDATE presence_events
		SET joined_at = ?, left_at = ?, duration_seconds = ?, manual_status = ?, marked_by = ?, marked_at = ?
		WHERE id = ?
	`
	result, err := r.helper.Exec(ctx, query,
		formatTime(event.JoinedAt),
		nullTime(event.LeftAt),
		nullInt64(event.DurationSeconds),
		nullString(event.ManualStatus),
		nullEmptyString(event.MarkedBy),
		nullTime(event.MarkedAt),
		event.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// ListEvents returns events matching filter ordered by join time.
func (r *PresenceRepository) ListEvents(ctx context.Context, filter persistence.PresenceFilter) ([]persistence.PresenceEvent, error) {
	var conditions []string
	var args []any

	if len(filter.ScheduleIDs) > 0 {
		placeholders, scheduleArgs := inClause(filter.ScheduleIDs)
		conditions = append(conditions, "schedule_id IN "+placeholders)
		args = append(args, scheduleArgs...)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, "student_id = ?")
		args = append(args, filter.StudentID)
	}
	if filter.OpenOnly {
		conditions = append(conditions, "left_at IS NULL")
	}

	query := `
		SELECT id, schedule_id, student_id, joined_at, left_at, duration_seconds,
			manual_status, marked_by, marked_at
		FROM presence_events
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY joined_at ASC, id ASC"

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	events := make([]persistence.PresenceEvent, 0)
	for rows.Next() {
		event, err := scanPresence(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return events, nil
}

// DeleteEventsForEntries removes every event recorded for the given entries.
func (r *PresenceRepository) DeleteEventsForEntries(ctx context.Context, scheduleIDs []string) error {
	if len(scheduleIDs) == 0 {
		return nil
	}
	placeholders, args := inClause(scheduleIDs)
	if _, err := r.helper.Exec(ctx, "DELETE FROM presence_events WHERE schedule_id IN "+placeholders, args...); err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

func scanPresence(row rowScanner) (persistence.PresenceEvent, error) {
	var event persistence.PresenceEvent
	var joinedAt string
	var leftAt, manualStatus, markedBy, markedAt sql.NullString
	var duration sql.NullInt64

	if err := row.Scan(
		&event.ID,
		&event.ScheduleID,
		&event.StudentID,
		&joinedAt,
		&leftAt,
		&duration,
		&manualStatus,
		&markedBy,
		&markedAt,
	); err != nil {
		return persistence.PresenceEvent{}, err
	}

	var err error
	if event.JoinedAt, err = parseTime("joined_at", joinedAt); err != nil {
		return persistence.PresenceEvent{}, err
	}
	if event.LeftAt, err = parseNullTime("left_at", leftAt); err != nil {
		return persistence.PresenceEvent{}, err
	}
	if event.MarkedAt, err = parseNullTime("marked_at", markedAt); err != nil {
		return persistence.PresenceEvent{}, err
	}
	event.DurationSeconds = int64Ptr(duration)
	event.ManualStatus = stringPtr(manualStatus)
	event.MarkedBy = markedBy.String
	return event, nil
}
