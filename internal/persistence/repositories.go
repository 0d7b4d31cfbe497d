package persistence

import (
	"context"
	"time"
)

// BookRepository exposes catalog lookups and availability mutation.
type BookRepository interface {
	CreateBook(ctx context.Context, book Book) error
	UpdateBook(ctx context.Context, book Book) error
	GetBook(ctx context.Context, id string) (Book, error)
	ListBooks(ctx context.Context) ([]Book, error)

	// DecrementAvailable atomically reduces the availability counter by one
	// inside a single write transaction, failing with ErrNoCopies when the
	// counter is already zero. This is the storage half of the availability
	// ledger.
	DecrementAvailable(ctx context.Context, id string) error
	// IncrementAvailable atomically releases one copy back into circulation.
	// The counter never exceeds OwnedCopies.
	IncrementAvailable(ctx context.Context, id string) error
}

// PatronDirectory exposes borrower lookups. Account management itself lives
// outside the lending core.
type PatronDirectory interface {
	CreatePatron(ctx context.Context, patron Patron) error
	GetPatron(ctx context.Context, id string) (Patron, error)
}

// LoanFilter narrows loan queries issued by the state machine and the
// scheduled jobs.
type LoanFilter struct {
	PatronID  string
	BookID    string
	Status    LoanStatus
	DueBefore *time.Time
	DueAfter  *time.Time
}

// LoanRepository stores loan lifecycle state.
type LoanRepository interface {
	CreateLoan(ctx context.Context, loan Loan) error
	UpdateLoan(ctx context.Context, loan Loan) error
	GetLoan(ctx context.Context, id string) (Loan, error)
	GetLoanByAccessToken(ctx context.Context, token string) (Loan, error)
	// ListLoans returns matching loans ordered by DueAt ascending, then ID.
	ListLoans(ctx context.Context, filter LoanFilter) ([]Loan, error)
	CountActiveLoans(ctx context.Context, patronID string) (int, error)
}

// WaitlistRepository stores waitlist entries for books with no free copies.
type WaitlistRepository interface {
	CreateEntry(ctx context.Context, entry WaitlistEntry) error
	UpdateEntry(ctx context.Context, entry WaitlistEntry) error
	// DeleteFulfilledEntry removes a previously fulfilled row for the pair so
	// the patron can re-join the queue.
	DeleteFulfilledEntry(ctx context.Context, patronID, bookID string) error
	// NextUnfulfilled returns the oldest unfulfilled, unnotified entry for
	// the book, or ErrNotFound.
	NextUnfulfilled(ctx context.Context, bookID string) (WaitlistEntry, error)
	// UnfulfilledEntry returns the patron's pending entry for the book, or
	// ErrNotFound.
	UnfulfilledEntry(ctx context.Context, patronID, bookID string) (WaitlistEntry, error)
	CountUnfulfilled(ctx context.Context, bookID string) (int, error)
}
