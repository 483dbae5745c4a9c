package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/example/class-scheduler/internal/persistence"
)

// ClassRepository implements persistence.ClassRepository using SQLite
type ClassRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

var _ persistence.ClassRepository = (*ClassRepository)(nil)

// NewClassRepository creates a new SQLite class repository
func NewClassRepository(pool *ConnectionPool) *ClassRepository {
	return &ClassRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateClass inserts a class together with its roster.
func (r *ClassRepository) CreateClass(ctx context.Context, class persistence.Class) error {
	if class.ID == "" {
		return persistence.ErrConstraintViolation
	}

	return r.pool.WithinTx(ctx, func(ctx context.Context) error {
		query := `
			INSERT INTO classes (id, name, teacher_id, curriculum_id, active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`
		_, err := r.helper.Exec(ctx, query,
			class.ID,
			class.Name,
			class.TeacherID,
			class.CurriculumID,
			class.Active,
			formatTime(class.CreatedAt),
			formatTime(class.UpdatedAt),
		)
		if err != nil {
			return r.mapper.MapError(err)
		}
		return r.insertStudents(ctx, class.ID, class.StudentIDs)
	})
}

// UpdateClass replaces the class row and its roster. created_at is kept.
func (r *ClassRepository) UpdateClass(ctx context.Context, class persistence.Class) error {
	if class.ID == "" {
		return persistence.ErrNotFound
	}

	return r.pool.WithinTx(ctx, func(ctx context.Context) error {
		query := `
			UPDATE classes
			SET name = ?, teacher_id = ?, curriculum_id = ?, active = ?, updated_at = ?
			WHERE id = ?
		`
		result, err := r.helper.Exec(ctx, query,
			class.Name,
			class.TeacherID,
			class.CurriculumID,
			class.Active,
			formatTime(class.UpdatedAt),
			class.ID,
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

		if _, err := r.helper.Exec(ctx, "DELETE FROM class_students WHERE class_id = ?", class.ID); err != nil {
			return r.mapper.MapError(err)
		}
		return r.insertStudents(ctx, class.ID, class.StudentIDs)
	})
}

// GetClass retrieves a class and its roster.
func (r *ClassRepository) GetClass(ctx context.Context, id string) (persistence.Class, error) {
	if id == "" {
		return persistence.Class{}, persistence.ErrNotFound
	}

	query := `
		SELECT id, name, teacher_id, curriculum_id, active, created_at, updated_at
		FROM classes
		WHERE id = ?
	`
	class, err := scanClass(r.helper.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Class{}, persistence.ErrNotFound
		}
		return persistence.Class{}, r.mapper.MapError(err)
	}

	students, err := r.loadStudents(ctx, []string{class.ID})
	if err != nil {
		return persistence.Class{}, err
	}
	class.StudentIDs = students[class.ID]
	return class, nil
}

// ListClasses returns classes matching filter ordered by ID.
func (r *ClassRepository) ListClasses(ctx context.Context, filter persistence.ClassFilter) ([]persistence.Class, error) {
	var conditions []string
	var args []any

	if filter.TeacherID != "" {
		conditions = append(conditions, "c.teacher_id = ?")
		args = append(args, filter.TeacherID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, "EXISTS (SELECT 1 FROM class_students cs WHERE cs.class_id = c.id AND cs.student_id = ?)")
		args = append(args, filter.StudentID)
	}
	if filter.ActiveOnly {
		conditions = append(conditions, "c.active = 1")
	}

	query := `
		SELECT c.id, c.name, c.teacher_id, c.curriculum_id, c.active, c.created_at, c.updated_at
		FROM classes c
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY c.id ASC"

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	classes := make([]persistence.Class, 0)
	for rows.Next() {
		class, err := scanClass(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		classes = append(classes, class)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	if len(classes) == 0 {
		return classes, nil
	}

	students, err := r.loadStudents(ctx, lo.Map(classes, func(c persistence.Class, _ int) string { return c.ID }))
	if err != nil {
		return nil, err
	}
	for i := range classes {
		classes[i].StudentIDs = students[classes[i].ID]
	}
	return classes, nil
}

// CreateLesson inserts a curriculum lesson.
func (r *ClassRepository) CreateLesson(ctx context.Context, lesson persistence.Lesson) error {
	if lesson.ID == "" {
		return persistence.ErrConstraintViolation
	}

	query := `INSERT INTO lessons (id, curriculum_id, title, created_at) VALUES (?, ?, ?, ?)`
	if _, err := r.helper.Exec(ctx, query, lesson.ID, lesson.CurriculumID, lesson.Title, formatTime(lesson.CreatedAt)); err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

// GetLesson retrieves a lesson by ID.
func (r *ClassRepository) GetLesson(ctx context.Context, id string) (persistence.Lesson, error) {
	if id == "" {
		return persistence.Lesson{}, persistence.ErrNotFound
	}

	var lesson persistence.Lesson
	var createdAt string
	err := r.helper.QueryRow(ctx, `SELECT id, curriculum_id, title, created_at FROM lessons WHERE id = ?`, id).
		Scan(&lesson.ID, &lesson.CurriculumID, &lesson.Title, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Lesson{}, persistence.ErrNotFound
		}
		return persistence.Lesson{}, r.mapper.MapError(err)
	}
	if lesson.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Lesson{}, err
	}
	return lesson, nil
}

// insertStudents writes the roster; blank and repeated IDs are dropped.
func (r *ClassRepository) insertStudents(ctx context.Context, classID string, studentIDs []string) error {
	trimmed := lo.Map(studentIDs, func(id string, _ int) string { return strings.TrimSpace(id) })
	for _, studentID := range lo.Uniq(lo.Compact(trimmed)) {
		_, err := r.helper.Exec(ctx,
			"INSERT INTO class_students (class_id, student_id) VALUES (?, ?)",
			classID, studentID)
		if err != nil {
			return r.mapper.MapError(err)
		}
	}
	return nil
}

// loadStudents returns the rosters of classIDs keyed by class.
func (r *ClassRepository) loadStudents(ctx context.Context, classIDs []string) (map[string][]string, error) {
	placeholders, args := inClause(classIDs)
	query := `
		SELECT class_id, student_id
		FROM class_students
		WHERE class_id IN ` + placeholders + `
		ORDER BY class_id, student_id
	`
	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	students := make(map[string][]string, len(classIDs))
	for rows.Next() {
		var classID, studentID string
		if err := rows.Scan(&classID, &studentID); err != nil {
			return nil, r.mapper.MapError(err)
		}
		students[classID] = append(students[classID], studentID)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return students, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClass(row rowScanner) (persistence.Class, error) {
	var class persistence.Class
	var createdAt, updatedAt string
	if err := row.Scan(
		&class.ID,
		&class.Name,
		&class.TeacherID,
		&class.CurriculumID,
		&class.Active,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.Class{}, err
	}

	var err error
	if class.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Class{}, err
	}
	if class.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.Class{}, err
	}
	return class, nil
}
