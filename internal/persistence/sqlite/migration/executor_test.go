package migration

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	config := TempFileTestSQLiteConfig(filepath.Join(t.TempDir(), "migrations.db"))
	db, err := NewConnectionManager(config).GetConnection()
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&count); err != nil {
		t.Fatalf("failed to query sqlite_master: %v", err)
	}
	return count == 1
}

func TestSQLiteExecutor_InitializeVersionTable(t *testing.T) {
	db := setupTestDB(t)
	executor := NewSQLiteExecutor(db)
	ctx := context.Background()

	if err := executor.InitializeVersionTable(ctx); err != nil {
		t.Fatalf("InitializeVersionTable failed: %v", err)
	}
	if err := executor.InitializeVersionTable(ctx); err != nil {
		t.Fatalf("InitializeVersionTable should be idempotent: %v", err)
	}
	if !tableExists(t, db, "schema_migrations") {
		t.Fatal("expected schema_migrations table")
	}
}

func TestSQLiteExecutor_ExecuteMigration(t *testing.T) {
	db := setupTestDB(t)
	executor := NewSQLiteExecutor(db)
	ctx := context.Background()

	migration := Migration{
		Version:  "001",
		FilePath: "001_classes.sql",
		SQL: `
			-- Description: classes
			CREATE TABLE classes (id TEXT PRIMARY KEY, name TEXT NOT NULL);
			INSERT INTO classes (id, name) VALUES ('class-1', 'Math 101');
		`,
	}
	if err := executor.ExecuteMigration(ctx, migration); err != nil {
		t.Fatalf("ExecuteMigration failed: %v", err)
	}

	var name string
	if err := db.QueryRow(`SELECT name FROM classes WHERE id = 'class-1'`).Scan(&name); err != nil {
		t.Fatalf("expected seeded row: %v", err)
	}
	if name != "Math 101" {
		t.Fatalf("unexpected name %q", name)
	}
}

func TestSQLiteExecutor_ExecuteMigration_RollsBack(t *testing.T) {
	db := setupTestDB(t)
	executor := NewSQLiteExecutor(db)
	ctx := context.Background()

	migration := Migration{
		Version:  "001",
		FilePath: "001_broken.sql",
		SQL: `
			CREATE TABLE lessons (id TEXT PRIMARY KEY);
			INSERT INTO missing_table (id) VALUES ('x');
		`,
	}
	err := executor.ExecuteMigration(ctx, migration)
	var dbErr *DatabaseError
	if !errors.As(err, &dbErr) {
		t.Fatalf("expected DatabaseError, got %v", err)
	}
	if dbErr.Operation != "execute statement 2" {
		t.Fatalf("unexpected failing operation %q", dbErr.Operation)
	}
	if tableExists(t, db, "lessons") {
		t.Fatal("expected the first statement to be rolled back")
	}
}

func TestSQLiteExecutor_ExecuteMigration_EmptySQL(t *testing.T) {
	executor := NewSQLiteExecutor(setupTestDB(t))

	err := executor.ExecuteMigration(context.Background(), Migration{Version: "002", SQL: "-- nothing\n"})
	var migrationErr *MigrationError
	if !errors.As(err, &migrationErr) {
		t.Fatalf("expected MigrationError, got %v", err)
	}
}

func TestSQLiteExecutor_RecordAndListApplied(t *testing.T) {
	db := setupTestDB(t)
	executor := NewSQLiteExecutor(db)
	executor.now = func() time.Time { return time.Date(2025, time.January, 6, 8, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	if err := executor.InitializeVersionTable(ctx); err != nil {
		t.Fatalf("InitializeVersionTable failed: %v", err)
	}
	for _, migration := range []Migration{
		{Version: "002", Checksum: "bbb"},
		{Version: "001", Checksum: "aaa"},
	} {
		if err := executor.RecordMigration(ctx, migration, 1500*time.Millisecond); err != nil {
			t.Fatalf("RecordMigration(%s) failed: %v", migration.Version, err)
		}
	}

	applied, err := executor.GetAppliedVersions(ctx)
	if err != nil {
		t.Fatalf("GetAppliedVersions failed: %v", err)
	}
	if len(applied) != 2 || applied[0].Version != "001" || applied[1].Version != "002" {
		t.Fatalf("unexpected applied versions: %#v", applied)
	}
	if applied[0].Checksum != "aaa" || applied[0].ExecutionTime != 1500*time.Millisecond {
		t.Fatalf("unexpected record: %#v", applied[0])
	}
	if !applied[0].AppliedAt.Equal(executor.now()) {
		t.Fatalf("unexpected applied_at %v", applied[0].AppliedAt)
	}

	if err := executor.RecordMigration(ctx, Migration{Version: "001"}, 0); err == nil {
		t.Fatal("expected duplicate version to be rejected")
	}
}

func TestParseSQL(t *testing.T) {
	statements := parseSQL(`
		-- Migration: 001
		CREATE TABLE a (id TEXT);

		-- trailing comment
		CREATE INDEX idx_a ON a (id);
		;
	`)
	if len(statements) != 2 {
		t.Fatalf("expected 2 statements, got %d: %#v", len(statements), statements)
	}
	if statements[0] != "CREATE TABLE a (id TEXT)" {
		t.Fatalf("unexpected first statement %q", statements[0])
	}
}
