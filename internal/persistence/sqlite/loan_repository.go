package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/digital-lending/internal/persistence"
)

// LoanRepository implements persistence.LoanRepository using SQLite.
type LoanRepository struct {
	pool *ConnectionPool
}

// NewLoanRepository creates a new SQLite loan repository.
func NewLoanRepository(pool *ConnectionPool) *LoanRepository {
	return &LoanRepository{pool: pool}
}

const loanColumns = `id, access_token, patron_id, book_id, checked_out_at, due_at,
	returned_at, renewal_count, max_renewals, circulation_file, status,
	reminder_sent, expiration_notice_sent, download_count,
	title_snapshot, author_snapshot, created_at, updated_at`

// CreateLoan inserts a new loan row.
func (r *LoanRepository) CreateLoan(ctx context.Context, loan persistence.Loan) error {
	if loan.ID == "" || loan.AccessToken == "" {
		return persistence.ErrConstraintViolation
	}

	now := time.Now().UTC()
	loan.CreatedAt = now
	loan.UpdatedAt = now

	query := `
		INSERT INTO loans (` + loanColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.pool.DB().ExecContext(ctx, query,
		loan.ID,
		loan.AccessToken,
		loan.PatronID,
		loan.BookID,
		loan.CheckedOutAt.UTC().Format(time.RFC3339),
		loan.DueAt.UTC().Format(time.RFC3339),
		nullTimeString(loan.ReturnedAt),
		loan.RenewalCount,
		loan.MaxRenewals,
		nullString(loan.CirculationFile),
		string(loan.Status),
		boolToInt(loan.ReminderSent),
		boolToInt(loan.ExpirationNoticeSent),
		loan.DownloadCount,
		loan.TitleSnapshot,
		loan.AuthorSnapshot,
		loan.CreatedAt.Format(time.RFC3339),
		loan.UpdatedAt.Format(time.RFC3339),
	)
	return mapError(err)
}

// UpdateLoan rewrites the mutable portion of a loan row.
func (r *LoanRepository) UpdateLoan(ctx context.Context, loan persistence.Loan) error {
	if loan.ID == "" {
		return persistence.ErrNotFound
	}

	query := `
		UPDATE loans
		SET due_at = ?, returned_at = ?, renewal_count = ?, circulation_file = ?,
			status = ?, reminder_sent = ?, expiration_notice_sent = ?,
			download_count = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.pool.DB().ExecContext(ctx, query,
		loan.DueAt.UTC().Format(time.RFC3339),
		nullTimeString(loan.ReturnedAt),
		loan.RenewalCount,
		nullString(loan.CirculationFile),
		string(loan.Status),
		boolToInt(loan.ReminderSent),
		boolToInt(loan.ExpirationNoticeSent),
		loan.DownloadCount,
		time.Now().UTC().Format(time.RFC3339),
		loan.ID,
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

// GetLoan retrieves a loan by ID.
func (r *LoanRepository) GetLoan(ctx context.Context, id string) (persistence.Loan, error) {
	if id == "" {
		return persistence.Loan{}, persistence.ErrNotFound
	}

	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = ?`, id)
	return scanLoan(row)
}

// GetLoanByAccessToken retrieves a loan by its redemption token.
func (r *LoanRepository) GetLoanByAccessToken(ctx context.Context, token string) (persistence.Loan, error) {
	if token == "" {
		return persistence.Loan{}, persistence.ErrNotFound
	}

	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE access_token = ?`, token)
	return scanLoan(row)
}

// ListLoans returns matching loans ordered by due date ascending, then ID.
// The stable ordering keeps expiration batches deterministic.
func (r *LoanRepository) ListLoans(ctx context.Context, filter persistence.LoanFilter) ([]persistence.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE 1=1`
	args := make([]any, 0, 4)

	if filter.PatronID != "" {
		query += ` AND patron_id = ?`
		args = append(args, filter.PatronID)
	}
	if filter.BookID != "" {
		query += ` AND book_id = ?`
		args = append(args, filter.BookID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.DueBefore != nil {
		query += ` AND due_at <= ?`
		args = append(args, filter.DueBefore.UTC().Format(time.RFC3339))
	}
	if filter.DueAfter != nil {
		query += ` AND due_at > ?`
		args = append(args, filter.DueAfter.UTC().Format(time.RFC3339))
	}

	query += ` ORDER BY due_at, id`

	rows, err := r.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	loans := make([]persistence.Loan, 0)
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}
	return loans, rows.Err()
}

// CountActiveLoans counts a patron's outstanding loans for the loan cap.
func (r *LoanRepository) CountActiveLoans(ctx context.Context, patronID string) (int, error) {
	var count int
	err := r.pool.DB().QueryRowContext(ctx,
		`SELECT COUNT(1) FROM loans WHERE patron_id = ? AND status = ?`,
		patronID, string(persistence.LoanStatusActive),
	).Scan(&count)
	if err != nil {
		return 0, mapError(err)
	}
	return count, nil
}

func scanLoan(row rowScanner) (persistence.Loan, error) {
	var (
		loan            persistence.Loan
		checkedOutAt    string
		dueAt           string
		returnedAt      sql.NullString
		circulationFile sql.NullString
		status          string
		reminderSent    int
		expirationSent  int
		createdAt       string
		updatedAt       string
	)

	err := row.Scan(
		&loan.ID,
		&loan.AccessToken,
		&loan.PatronID,
		&loan.BookID,
		&checkedOutAt,
		&dueAt,
		&returnedAt,
		&loan.RenewalCount,
		&loan.MaxRenewals,
		&circulationFile,
		&status,
		&reminderSent,
		&expirationSent,
		&loan.DownloadCount,
		&loan.TitleSnapshot,
		&loan.AuthorSnapshot,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.Loan{}, mapError(err)
	}

	loan.CheckedOutAt = parseTime(checkedOutAt)
	loan.DueAt = parseTime(dueAt)
	if returnedAt.Valid {
		parsed := parseTime(returnedAt.String)
		loan.ReturnedAt = &parsed
	}
	if circulationFile.Valid {
		loan.CirculationFile = &circulationFile.String
	}
	loan.Status = persistence.LoanStatus(status)
	loan.ReminderSent = reminderSent != 0
	loan.ExpirationNoticeSent = expirationSent != 0
	loan.CreatedAt = parseTime(createdAt)
	loan.UpdatedAt = parseTime(updatedAt)
	return loan, nil
}
