package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/example/class-scheduler/internal/application"
	"github.com/example/class-scheduler/internal/config"
	httptransport "github.com/example/class-scheduler/internal/http"
	"github.com/example/class-scheduler/internal/persistence/sqlite"
	"github.com/example/class-scheduler/internal/persistence/sqlite/migration"
	"github.com/example/class-scheduler/internal/recurrence"
	"github.com/example/class-scheduler/internal/storeadapter"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout); err != nil {
		slog.Error("scheduler exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logOutput io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := newLogger(logOutput, cfg.LogLevel)

	pool, err := sqlite.NewConnectionPool(migration.DefaultSQLiteConfig(cfg.SQLiteDSN))
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if cerr := pool.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	if err := runDatabaseMigrations(ctx, pool, logger); err != nil {
		return err
	}

	handler := buildHandler(cfg, newSQLiteStore(pool), logger, uuid.NewString, time.Now)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("scheduler API listening", "addr", server.Addr, "timezone", cfg.Location.String())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server encountered error: %w", err)
	}
	logger.Info("scheduler API stopped")
	return nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func newSQLiteStore(pool *sqlite.ConnectionPool) storeadapter.Store {
	return storeadapter.Store{
		Classes:  sqlite.NewClassRepository(pool),
		Entries:  sqlite.NewScheduleRepository(pool),
		Presence: sqlite.NewPresenceRepository(pool),
		Tx:       pool,
	}
}

// buildHandler wires the services over store and returns the authenticated API handler.
func buildHandler(cfg config.Config, store storeadapter.Store, logger *slog.Logger, idGenerator func() string, now func() time.Time) http.Handler {
	ports := storeadapter.NewPorts(store)

	scheduleService := application.NewScheduleServiceWithLogger(
		ports.Schedules,
		ports.Classes,
		ports.Presence,
		ports.Tx,
		recurrence.NewEngine(cfg.Location),
		cfg.ScheduleOptions(),
		idGenerator,
		now,
		logger,
	)
	attendanceService := application.NewAttendanceServiceWithLogger(
		ports.Schedules,
		ports.Classes,
		ports.Presence,
		ports.Tx,
		cfg.Attendance,
		idGenerator,
		now,
		logger,
	)

	return httptransport.NewRouter(httptransport.RouterConfig{
		Schedules:  httptransport.NewScheduleHandler(scheduleService, logger),
		Attendance: httptransport.NewAttendanceHandler(attendanceService, logger),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			httptransport.RequireActor(httptransport.NewJWTVerifier([]byte(cfg.JWTSecret)), logger),
		},
	})
}

// runDatabaseMigrations applies the embedded migrations and logs the schema
// version before and after.
func runDatabaseMigrations(ctx context.Context, pool *sqlite.ConnectionPool, logger *slog.Logger) error {
	manager := migration.NewMigrationManager(
		migration.NewFileScanner(sqlite.Migrations()),
		migration.NewSQLiteExecutor(pool.DB()),
		logger,
	)

	logger.Info("checking current database schema version")
	status, err := manager.GetMigrationStatus(ctx)
	if err != nil {
		logger.Error("failed to scan for pending migrations", "error", err)
		return fmt.Errorf("failed to get pending migrations: %w", err)
	}

	if status.PendingCount == 0 {
		logger.Info("database schema is up to date - no migrations pending", "version", status.CurrentVersion)
		return nil
	}

	logger.Info("migration execution starting", "pending_count", status.PendingCount, "current_version", status.CurrentVersion)
	for i, pending := range status.PendingMigrations {
		logger.Info("migration queued for execution",
			"sequence", i+1,
			"total", status.PendingCount,
			"version", pending.Version,
			"description", pending.Description)
	}

	started := time.Now()
	if err := pool.Migrate(ctx, logger); err != nil {
		logger.Error("migration execution failed", "error", err)
		return fmt.Errorf("migration execution failed: %w", err)
	}

	final, err := manager.GetMigrationStatus(ctx)
	if err != nil {
		logger.Warn("could not verify final schema version", "error", err)
		return nil
	}
	logger.Info("database migrations completed successfully",
		"execution_time", time.Since(started),
		"migrations_applied", status.PendingCount,
		"version", final.CurrentVersion)
	return nil
}
