package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/digital-lending/internal/persistence"
)

// WaitlistRepository implements persistence.WaitlistRepository using SQLite.
type WaitlistRepository struct {
	pool *ConnectionPool
}

// NewWaitlistRepository creates a new SQLite waitlist repository.
func NewWaitlistRepository(pool *ConnectionPool) *WaitlistRepository {
	return &WaitlistRepository{pool: pool}
}

const waitlistColumns = `id, patron_id, book_id, joined_at, notified_at, is_fulfilled`

// CreateEntry inserts a waitlist entry. A partial unique index rejects a
// second unfulfilled entry for the same (patron, book) pair.
func (r *WaitlistRepository) CreateEntry(ctx context.Context, entry persistence.WaitlistEntry) error {
	if entry.ID == "" {
		return persistence.ErrConstraintViolation
	}

	query := `
		INSERT INTO waitlist_entries (` + waitlistColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.pool.DB().ExecContext(ctx, query,
		entry.ID,
		entry.PatronID,
		entry.BookID,
		entry.JoinedAt.UTC().Format(time.RFC3339),
		nullTimeString(entry.NotifiedAt),
		boolToInt(entry.IsFulfilled),
	)
	return mapError(err)
}

// UpdateEntry rewrites the notification state of an entry.
func (r *WaitlistRepository) UpdateEntry(ctx context.Context, entry persistence.WaitlistEntry) error {
	if entry.ID == "" {
		return persistence.ErrNotFound
	}

	result, err := r.pool.DB().ExecContext(ctx, `
		UPDATE waitlist_entries SET notified_at = ?, is_fulfilled = ? WHERE id = ?
	`, nullTimeString(entry.NotifiedAt), boolToInt(entry.IsFulfilled), entry.ID)
	if err != nil {
		return mapError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}

	return nil
}

// DeleteFulfilledEntry removes a fulfilled row for the pair so the patron
// can join the queue again. Deleting nothing is not an error.
func (r *WaitlistRepository) DeleteFulfilledEntry(ctx context.Context, patronID, bookID string) error {
	_, err := r.pool.DB().ExecContext(ctx, `
		DELETE FROM waitlist_entries
		WHERE patron_id = ? AND book_id = ? AND is_fulfilled = 1
	`, patronID, bookID)
	return mapError(err)
}

// NextUnfulfilled returns the oldest pending entry for the book.
func (r *WaitlistRepository) NextUnfulfilled(ctx context.Context, bookID string) (persistence.WaitlistEntry, error) {
	row := r.pool.DB().QueryRowContext(ctx, `
		SELECT `+waitlistColumns+`
		FROM waitlist_entries
		WHERE book_id = ? AND is_fulfilled = 0 AND notified_at IS NULL
		ORDER BY joined_at, id
		LIMIT 1
	`, bookID)
	return scanWaitlistEntry(row)
}

// UnfulfilledEntry returns the patron's pending entry for the book.
func (r *WaitlistRepository) UnfulfilledEntry(ctx context.Context, patronID, bookID string) (persistence.WaitlistEntry, error) {
	row := r.pool.DB().QueryRowContext(ctx, `
		SELECT `+waitlistColumns+`
		FROM waitlist_entries
		WHERE patron_id = ? AND book_id = ? AND is_fulfilled = 0
	`, patronID, bookID)
	return scanWaitlistEntry(row)
}

// CountUnfulfilled counts pending entries for a book; the joining patron's
// FIFO position equals the count after insert.
func (r *WaitlistRepository) CountUnfulfilled(ctx context.Context, bookID string) (int, error) {
	var count int
	err := r.pool.DB().QueryRowContext(ctx, `
		SELECT COUNT(1) FROM waitlist_entries WHERE book_id = ? AND is_fulfilled = 0
	`, bookID).Scan(&count)
	if err != nil {
		return 0, mapError(err)
	}
	return count, nil
}

func scanWaitlistEntry(row rowScanner) (persistence.WaitlistEntry, error) {
	var (
		entry      persistence.WaitlistEntry
		joinedAt   string
		notifiedAt sql.NullString
		fulfilled  int
	)

	err := row.Scan(
		&entry.ID,
		&entry.PatronID,
		&entry.BookID,
		&joinedAt,
		&notifiedAt,
		&fulfilled,
	)
	if err != nil {
		return persistence.WaitlistEntry{}, mapError(err)
	}

	entry.JoinedAt = parseTime(joinedAt)
	if notifiedAt.Valid {
		parsed := parseTime(notifiedAt.String)
		entry.NotifiedAt = &parsed
	}
	entry.IsFulfilled = fulfilled != 0
	return entry, nil
}
