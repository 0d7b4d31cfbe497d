package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/digital-lending/internal/persistence"
)

// BookRepository implements persistence.BookRepository using SQLite.
type BookRepository struct {
	pool *ConnectionPool
}

// NewBookRepository creates a new SQLite book repository.
func NewBookRepository(pool *ConnectionPool) *BookRepository {
	return &BookRepository{pool: pool}
}

const bookColumns = `id, title, author, master_file, owned_copies, available_copies,
	loan_days, watermark_mode, restricted, created_at, updated_at`

// CreateBook inserts a new catalog entry.
func (r *BookRepository) CreateBook(ctx context.Context, book persistence.Book) error {
	if book.ID == "" {
		return persistence.ErrConstraintViolation
	}

	now := time.Now().UTC()
	book.CreatedAt = now
	book.UpdatedAt = now

	query := `
		INSERT INTO books (` + bookColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.pool.DB().ExecContext(ctx, query,
		book.ID,
		book.Title,
		book.Author,
		nullString(book.MasterFile),
		book.OwnedCopies,
		book.AvailableCopies,
		book.LoanDays,
		book.WatermarkMode,
		boolToInt(book.Restricted),
		book.CreatedAt.Format(time.RFC3339),
		book.UpdatedAt.Format(time.RFC3339),
	)
	return mapError(err)
}

// UpdateBook updates catalog metadata. The availability counter is excluded;
// it changes only through the ledger operations below.
func (r *BookRepository) UpdateBook(ctx context.Context, book persistence.Book) error {
	if book.ID == "" {
		return persistence.ErrNotFound
	}

	query := `
		UPDATE books
		SET title = ?, author = ?, master_file = ?, loan_days = ?,
			watermark_mode = ?, restricted = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.pool.DB().ExecContext(ctx, query,
		book.Title,
		book.Author,
		nullString(book.MasterFile),
		book.LoanDays,
		book.WatermarkMode,
		boolToInt(book.Restricted),
		time.Now().UTC().Format(time.RFC3339),
		book.ID,
	)
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

// GetBook retrieves a book by ID.
func (r *BookRepository) GetBook(ctx context.Context, id string) (persistence.Book, error) {
	if id == "" {
		return persistence.Book{}, persistence.ErrNotFound
	}

	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id = ?`, id)
	return scanBook(row)
}

// ListBooks returns all books ordered by title, then ID.
func (r *BookRepository) ListBooks(ctx context.Context) ([]persistence.Book, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `SELECT `+bookColumns+` FROM books ORDER BY title, id`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	books := make([]persistence.Book, 0)
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

// DecrementAvailable atomically claims one copy. The guarded UPDATE runs in
// its own immediate transaction: the counter is re-read and checked inside
// the same statement that decrements it, so two concurrent checkouts can
// never both claim the last copy.
func (r *BookRepository) DecrementAvailable(ctx context.Context, id string) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE books
			SET available_copies = available_copies - 1, updated_at = ?
			WHERE id = ? AND available_copies > 0
		`, time.Now().UTC().Format(time.RFC3339), id)
		if err != nil {
			return mapError(err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			// Distinguish a missing book from an exhausted one.
			var exists int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM books WHERE id = ?`, id).Scan(&exists); err != nil {
				return mapError(err)
			}
			if exists == 0 {
				return persistence.ErrNotFound
			}
			return persistence.ErrNoCopies
		}
		return nil
	})
}

// IncrementAvailable releases one copy back into circulation. The counter is
// capped at owned_copies so a stray double release cannot inflate inventory.
func (r *BookRepository) IncrementAvailable(ctx context.Context, id string) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE books
			SET available_copies = available_copies + 1, updated_at = ?
			WHERE id = ? AND available_copies < owned_copies
		`, time.Now().UTC().Format(time.RFC3339), id)
		if err != nil {
			return mapError(err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			var exists int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM books WHERE id = ?`, id).Scan(&exists); err != nil {
				return mapError(err)
			}
			if exists == 0 {
				return persistence.ErrNotFound
			}
			return persistence.ErrConstraintViolation
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (persistence.Book, error) {
	var (
		book       persistence.Book
		masterFile sql.NullString
		restricted int
		createdAt  string
		updatedAt  string
	)

	err := row.Scan(
		&book.ID,
		&book.Title,
		&book.Author,
		&masterFile,
		&book.OwnedCopies,
		&book.AvailableCopies,
		&book.LoanDays,
		&book.WatermarkMode,
		&restricted,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.Book{}, mapError(err)
	}

	if masterFile.Valid {
		book.MasterFile = &masterFile.String
	}
	book.Restricted = restricted != 0
	book.CreatedAt = parseTime(createdAt)
	book.UpdatedAt = parseTime(updatedAt)
	return book, nil
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTime(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

func nullTimeString(value *time.Time) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: value.UTC().Format(time.RFC3339), Valid: true}
}
