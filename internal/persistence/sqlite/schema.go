package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations holds the ordered schema steps. The slice index plus one is the
// schema version recorded in PRAGMA user_version; never reorder or edit a
// shipped entry, append instead.
var migrations = []string{
	`
	CREATE TABLE books (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		author TEXT NOT NULL,
		master_file TEXT,
		owned_copies INTEGER NOT NULL DEFAULT 1 CHECK (owned_copies >= 0),
		available_copies INTEGER NOT NULL DEFAULT 1
			CHECK (available_copies >= 0 AND available_copies <= owned_copies),
		loan_days INTEGER NOT NULL DEFAULT 0,
		watermark_mode TEXT NOT NULL DEFAULT 'standard',
		restricted INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE patrons (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		can_borrow INTEGER NOT NULL DEFAULT 1,
		is_admin INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE loans (
		id TEXT PRIMARY KEY,
		access_token TEXT NOT NULL UNIQUE,
		patron_id TEXT NOT NULL REFERENCES patrons(id),
		book_id TEXT NOT NULL REFERENCES books(id),
		checked_out_at TEXT NOT NULL,
		due_at TEXT NOT NULL,
		returned_at TEXT,
		renewal_count INTEGER NOT NULL DEFAULT 0,
		max_renewals INTEGER NOT NULL DEFAULT 2,
		circulation_file TEXT,
		status TEXT NOT NULL DEFAULT 'active'
			CHECK (status IN ('active', 'returned', 'expired')),
		reminder_sent INTEGER NOT NULL DEFAULT 0,
		expiration_notice_sent INTEGER NOT NULL DEFAULT 0,
		download_count INTEGER NOT NULL DEFAULT 0,
		title_snapshot TEXT NOT NULL DEFAULT '',
		author_snapshot TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX idx_loans_patron ON loans(patron_id, status);
	CREATE INDEX idx_loans_book ON loans(book_id, status);
	CREATE INDEX idx_loans_due ON loans(status, due_at);

	CREATE TABLE waitlist_entries (
		id TEXT PRIMARY KEY,
		patron_id TEXT NOT NULL REFERENCES patrons(id),
		book_id TEXT NOT NULL REFERENCES books(id),
		joined_at TEXT NOT NULL,
		notified_at TEXT,
		is_fulfilled INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX idx_waitlist_book ON waitlist_entries(book_id, is_fulfilled, joined_at);
	CREATE UNIQUE INDEX uq_waitlist_pending
		ON waitlist_entries(patron_id, book_id) WHERE is_fulfilled = 0;
	`,
}

// Migrate applies pending schema migrations, using PRAGMA user_version as
// the version marker. Each step runs in its own transaction.
func Migrate(ctx context.Context, pool *ConnectionPool) error {
	var version int
	if err := pool.DB().QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for next := version; next < len(migrations); next++ {
		step := migrations[next]
		err := pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, step); err != nil {
				return fmt.Errorf("migration %d failed: %w", next+1, err)
			}
			// PRAGMA does not accept bind parameters.
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", next+1)); err != nil {
				return fmt.Errorf("failed to record schema version %d: %w", next+1, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}
