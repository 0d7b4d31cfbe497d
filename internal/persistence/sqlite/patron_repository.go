package sqlite

import (
	"context"
	"time"

	"github.com/example/digital-lending/internal/persistence"
)

// PatronRepository implements persistence.PatronDirectory using SQLite.
// Account lifecycle management lives in the identity layer; the lending core
// only needs creation (for provisioning) and lookup.
type PatronRepository struct {
	pool *ConnectionPool
}

// NewPatronRepository creates a new SQLite patron repository.
func NewPatronRepository(pool *ConnectionPool) *PatronRepository {
	return &PatronRepository{pool: pool}
}

// CreatePatron inserts a borrower account record.
func (r *PatronRepository) CreatePatron(ctx context.Context, patron persistence.Patron) error {
	if patron.ID == "" {
		return persistence.ErrConstraintViolation
	}

	now := time.Now().UTC()

	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO patrons (id, email, display_name, can_borrow, is_admin, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		patron.ID,
		patron.Email,
		patron.DisplayName,
		boolToInt(patron.CanBorrow),
		boolToInt(patron.IsAdmin),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	return mapError(err)
}

// GetPatron retrieves a patron by ID.
func (r *PatronRepository) GetPatron(ctx context.Context, id string) (persistence.Patron, error) {
	if id == "" {
		return persistence.Patron{}, persistence.ErrNotFound
	}

	var (
		patron    persistence.Patron
		canBorrow int
		isAdmin   int
		createdAt string
		updatedAt string
	)

	err := r.pool.DB().QueryRowContext(ctx, `
		SELECT id, email, display_name, can_borrow, is_admin, created_at, updated_at
		FROM patrons WHERE id = ?
	`, id).Scan(&patron.ID, &patron.Email, &patron.DisplayName, &canBorrow, &isAdmin, &createdAt, &updatedAt)
	if err != nil {
		return persistence.Patron{}, mapError(err)
	}

	patron.CanBorrow = canBorrow != 0
	patron.IsAdmin = isAdmin != 0
	patron.CreatedAt = parseTime(createdAt)
	patron.UpdatedAt = parseTime(updatedAt)
	return patron, nil
}
