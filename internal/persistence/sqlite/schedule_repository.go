package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/example/class-scheduler/internal/persistence"
)

// ScheduleRepository implements persistence.ScheduleEntryRepository using SQLite
type ScheduleRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

var _ persistence.ScheduleEntryRepository = (*ScheduleRepository)(nil)

// NewScheduleRepository creates a new SQLite schedule repository
func NewScheduleRepository(pool *ConnectionPool) *ScheduleRepository {
	return &ScheduleRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const entryColumns = `
	e.id, e.class_id, e.lesson_id, e.title, e.description, e.start_time, e.end_time,
	e.room_name, e.is_live, e.status, e.is_recurring, e.recurrence_parent_id, e.recurrence_rule,
	e.created_by, e.created_at, e.updated_at, c.name, c.teacher_id
`

const entrySelect = `SELECT ` + entryColumns + `
	FROM schedule_entries e
	JOIN classes c ON c.id = e.class_id
`

// CreateEntries inserts entries in one transaction; either all are stored or none.
func (r *ScheduleRepository) CreateEntries(ctx context.Context, entries []persistence.ScheduleEntry) error {
	if len(entries) == 0 {
		return nil
	}

	return r.pool.WithinTx(ctx, func(ctx context.Context) error {
		query := `
			INSERT INTO schedule_entries (
				id, class_id, lesson_id, title, description, start_time, end_time,
				room_name, is_live, status, is_recurring, recurrence_parent_id, recurrence_rule,
				created_by, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		for _, entry := range entries {
			if err := validateEntry(entry); err != nil {
				return err
			}
			_, err := r.helper.Exec(ctx, query,
				entry.ID,
				entry.ClassID,
				nullString(entry.LessonID),
				entry.Title,
				entry.Description,
				formatTime(entry.Start),
				formatTime(entry.End),
				entry.RoomName,
				entry.IsLive,
				entryStatus(entry.Status),
				entry.IsRecurring,
				nullString(entry.RecurrenceParentID),
				nullString(entry.RecurrenceRule),
				entry.CreatedBy,
				formatTime(entry.CreatedAt),
				formatTime(entry.UpdatedAt),
			)
			if err != nil {
				return r.mapper.MapError(err)
			}
		}
		return nil
	})
}

// GetEntry retrieves an entry by ID.
func (r *ScheduleRepository) GetEntry(ctx context.Context, id string) (persistence.ScheduleEntry, error) {
	if id == "" {
		return persistence.ScheduleEntry{}, persistence.ErrNotFound
	}
	return r.getOne(ctx, entrySelect+` WHERE e.id = ?`, id)
}

// GetEntryByRoomName retrieves the entry owning roomName.
func (r *ScheduleRepository) GetEntryByRoomName(ctx context.Context, roomName string) (persistence.ScheduleEntry, error) {
	if roomName == "" {
		return persistence.ScheduleEntry{}, persistence.ErrNotFound
	}
	return r.getOne(ctx, entrySelect+` WHERE e.room_name = ?`, roomName)
}

func (r *ScheduleRepository) getOne(ctx context.Context, query string, args ...any) (persistence.ScheduleEntry, error) {
	entry, err := scanEntry(r.helper.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.ScheduleEntry{}, persistence.ErrNotFound
		}
		return persistence.ScheduleEntry{}, r.mapper.MapError(err)
	}
	return entry, nil
}

// ListSeries returns the head and every child of a series, cancelled ones included.
func (r *ScheduleRepository) ListSeries(ctx context.Context, seriesID string) ([]persistence.ScheduleEntry, error) {
	if seriesID == "" {
		return []persistence.ScheduleEntry{}, nil
	}
	query := entrySelect + `
		WHERE e.id = ? OR e.recurrence_parent_id = ?
		ORDER BY e.start_time ASC, e.id ASC
	`
	return r.list(ctx, query, seriesID, seriesID)
}

// ListEntries returns entries matching filter ordered by start.
func (r *ScheduleRepository) ListEntries(ctx context.Context, filter persistence.EntryFilter) ([]persistence.ScheduleEntry, error) {
	query, args := r.buildListQuery(filter)
	return r.list(ctx, query, args...)
}

// UpdateEntries rewrites the mutable columns of existing entries in one
// transaction. created_by and created_at are never changed.
func (r *ScheduleRepository) UpdateEntries(ctx context.Context, entries []persistence.ScheduleEntry) error {
	if len(entries) == 0 {
		return nil
	}

	return r.pool.WithinTx(ctx, func(ctx context.Context) error {
		query := `
			UPDATE schedule_entries
			SET class_id = ?, lesson_id = ?, title = ?, description = ?, start_time = ?, end_time = ?,
				room_name = ?, is_live = ?, status = ?, is_recurring = ?, recurrence_parent_id = ?,
				recurrence_rule = ?, updated_at = ?
			WHERE id = ?
		`
		for _, entry := range entries {
			if err := validateEntry(entry); err != nil {
				return err
			}
			result, err := r.helper.Exec(ctx, query,
				entry.ClassID,
				nullString(entry.LessonID),
				entry.Title,
				entry.Description,
				formatTime(entry.Start),
				formatTime(entry.End),
				entry.RoomName,
				entry.IsLive,
				entryStatus(entry.Status),
				entry.IsRecurring,
				nullString(entry.RecurrenceParentID),
				nullString(entry.RecurrenceRule),
				formatTime(entry.UpdatedAt),
				entry.ID,
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
		}
		return nil
	})
}

// DeleteEntries removes entries and their presence events. Unknown IDs are ignored.
func (r *ScheduleRepository) DeleteEntries(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	return r.pool.WithinTx(ctx, func(ctx context.Context) error {
		placeholders, args := inClause(ids)
		if _, err := r.helper.Exec(ctx, "DELETE FROM presence_events WHERE schedule_id IN "+placeholders, args...); err != nil {
			return r.mapper.MapError(err)
		}
		if _, err := r.helper.Exec(ctx, "DELETE FROM schedule_entries WHERE id IN "+placeholders, args...); err != nil {
			return r.mapper.MapError(err)
		}
		return nil
	})
}

// buildListQuery builds the SQL query and arguments for listing entries
func (r *ScheduleRepository) buildListQuery(filter persistence.EntryFilter) (string, []any) {
	var conditions []string
	var args []any

	if len(filter.ClassIDs) > 0 {
		placeholders, classArgs := inClause(filter.ClassIDs)
		conditions = append(conditions, "e.class_id IN "+placeholders)
		args = append(args, classArgs...)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, "c.teacher_id = ?")
		args = append(args, filter.TeacherID)
	}
	if filter.From != nil {
		conditions = append(conditions, "e.end_time > ?")
		args = append(args, formatTime(*filter.From))
	}
	if filter.To != nil {
		conditions = append(conditions, "e.start_time < ?")
		args = append(args, formatTime(*filter.To))
	}
	if filter.EndsBefore != nil {
		conditions = append(conditions, "e.end_time < ?")
		args = append(args, formatTime(*filter.EndsBefore))
	}
	if len(filter.Statuses) > 0 {
		placeholders, statusArgs := inClause(filter.Statuses)
		conditions = append(conditions, "e.status IN "+placeholders)
		args = append(args, statusArgs...)
	}
	if !filter.IncludeCancelled {
		conditions = append(conditions, "e.status != ?")
		args = append(args, persistence.StatusCancelled)
	}

	query := entrySelect
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY e.start_time ASC, e.id ASC"

	return query, args
}

func (r *ScheduleRepository) list(ctx context.Context, query string, args ...any) ([]persistence.ScheduleEntry, error) {
	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	entries := make([]persistence.ScheduleEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return entries, nil
}

// validateEntry rejects rows the schema would refuse, before touching the database.
func validateEntry(entry persistence.ScheduleEntry) error {
	if entry.ID == "" || entry.RoomName == "" || !entry.End.After(entry.Start) {
		return persistence.ErrConstraintViolation
	}
	return nil
}

func entryStatus(status string) string {
	if status == "" {
		return persistence.StatusScheduled
	}
	return status
}

func scanEntry(row rowScanner) (persistence.ScheduleEntry, error) {
	var entry persistence.ScheduleEntry
	var lessonID, parentID, rule sql.NullString
	var start, end, createdAt, updatedAt string

	if err := row.Scan(
		&entry.ID,
		&entry.ClassID,
		&lessonID,
		&entry.Title,
		&entry.Description,
		&start,
		&end,
		&entry.RoomName,
		&entry.IsLive,
		&entry.Status,
		&entry.IsRecurring,
		&parentID,
		&rule,
		&entry.CreatedBy,
		&createdAt,
		&updatedAt,
		&entry.ClassName,
		&entry.TeacherID,
	); err != nil {
		return persistence.ScheduleEntry{}, err
	}

	entry.LessonID = stringPtr(lessonID)
	entry.RecurrenceParentID = stringPtr(parentID)
	entry.RecurrenceRule = stringPtr(rule)

	var err error
	if entry.Start, err = parseTime("start_time", start); err != nil {
		return persistence.ScheduleEntry{}, err
	}
	if entry.End, err = parseTime("end_time", end); err != nil {
		return persistence.ScheduleEntry{}, err
	}
	if entry.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.ScheduleEntry{}, err
	}
	if entry.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.ScheduleEntry{}, err
	}
	return entry, nil
}
