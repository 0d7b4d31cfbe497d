package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/digital-lending/internal/persistence"
	"github.com/example/digital-lending/internal/persistence/sqlite"
)

// SQLiteHarness provides repository access backed by a temporary SQLite
// database for integration-style persistence tests.
type SQLiteHarness struct {
	Pool     *sqlite.ConnectionPool
	Books    persistence.BookRepository
	Patrons  persistence.PatronDirectory
	Loans    persistence.LoanRepository
	Waitlist persistence.WaitlistRepository

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness over a temporary file that is
// migrated automatically. Cleanup is registered with the provided testing.TB.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	dir := tb.TempDir()
	pool, err := sqlite.NewConnectionPool(sqlite.DefaultDSN(filepath.Join(dir, "lending.db")))
	if err != nil {
		tb.Fatalf("failed to open database: %v", err)
	}

	if err := sqlite.Migrate(context.Background(), pool); err != nil {
		_ = pool.Close()
		tb.Fatalf("failed to migrate database: %v", err)
	}

	harness := &SQLiteHarness{
		Pool:     pool,
		Books:    sqlite.NewBookRepository(pool),
		Patrons:  sqlite.NewPatronRepository(pool),
		Loans:    sqlite.NewLoanRepository(pool),
		Waitlist: sqlite.NewWaitlistRepository(pool),
		cleanup: func() {
			_ = pool.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}
