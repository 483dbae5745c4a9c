package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/class-scheduler/internal/persistence"
	"github.com/example/class-scheduler/internal/persistence/memory"
	"github.com/example/class-scheduler/internal/persistence/sqlite"
	"github.com/example/class-scheduler/internal/persistence/sqlite/migration"
	"github.com/example/class-scheduler/internal/storeadapter"
)

// StoreHarness provides repository access to one storage backend for
// integration-style persistence tests.
type StoreHarness struct {
	Name     string
	Classes  persistence.ClassRepository
	Entries  persistence.ScheduleEntryRepository
	Presence persistence.PresenceRepository
	Tx       persistence.Transactor

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *StoreHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// Store returns the harness repositories as a storeadapter.Store.
func (h *StoreHarness) Store() storeadapter.Store {
	return storeadapter.Store{
		Classes:  h.Classes,
		Entries:  h.Entries,
		Presence: h.Presence,
		Tx:       h.Tx,
	}
}

// Ports returns the harness repositories adapted for the application services.
func (h *StoreHarness) Ports() storeadapter.Ports {
	return storeadapter.NewPorts(h.Store())
}

// NewSQLiteHarness constructs a StoreHarness using a temporary file that is
// migrated automatically. Callers may optionally invoke Close, but the helper
// will also register a cleanup callback with the provided testing.TB.
func NewSQLiteHarness(tb testing.TB) *StoreHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "scheduler.db")
	pool, err := sqlite.Open(context.Background(), migration.TempFileTestSQLiteConfig(path), nil)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	harness := &StoreHarness{
		Name:     "sqlite",
		Classes:  sqlite.NewClassRepository(pool),
		Entries:  sqlite.NewScheduleRepository(pool),
		Presence: sqlite.NewPresenceRepository(pool),
		Tx:       pool,
		cleanup: func() {
			_ = pool.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}

// NewMemoryHarness constructs a StoreHarness backed by the in-memory store.
func NewMemoryHarness(tb testing.TB) *StoreHarness {
	tb.Helper()

	storage := memory.New()
	return &StoreHarness{
		Name:     "memory",
		Classes:  storage,
		Entries:  storage,
		Presence: storage,
		Tx:       storage,
	}
}

// Harnesses returns one harness per storage backend so tests can assert the
// same behaviour against each.
func Harnesses(tb testing.TB) []*StoreHarness {
	tb.Helper()
	return []*StoreHarness{NewMemoryHarness(tb), NewSQLiteHarness(tb)}
}
