// Package migration applies versioned SQL migrations to a SQLite database.
//
// Migration files are read from an fs.FS (normally an embed.FS) and follow the
// naming convention {version}_{description}.sql (e.g. "001_initial_schema.sql").
// Each file runs in its own transaction and is recorded, with its checksum, in
// the schema_migrations table so it is never applied twice.
//
// Example usage:
//
//	scanner := NewFileScanner(migrationFS)
//	executor := NewSQLiteExecutor(db)
//	manager := NewMigrationManager(scanner, executor, logger)
//	if err := manager.RunMigrations(ctx); err != nil {
//		return err
//	}
package migration
