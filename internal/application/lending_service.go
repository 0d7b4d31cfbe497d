package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/example/digital-lending/internal/ledger"
	"github.com/example/digital-lending/internal/notify"
	"github.com/example/digital-lending/internal/watermark"
)

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func isSourceCorrupt(err error) bool {
	return errors.Is(err, watermark.ErrSourceCorrupt)
}

// LoanFilter narrows ListLoans. Nil/zero fields are ignored.
type LoanFilter struct {
	PatronID  string
	BookID    string
	Status    LoanStatus
	DueBefore *time.Time
	DueAfter  *time.Time
}

// LoanStore persists loans. Implementations map their own not-found errors
// to ErrNotFound before returning.
type LoanStore interface {
	CreateLoan(ctx context.Context, loan Loan) (Loan, error)
	UpdateLoan(ctx context.Context, loan Loan) (Loan, error)
	GetLoan(ctx context.Context, id string) (Loan, error)
	GetLoanByAccessToken(ctx context.Context, token string) (Loan, error)
	// ListLoans returns matches ordered by due date ascending.
	ListLoans(ctx context.Context, filter LoanFilter) ([]Loan, error)
	CountActiveLoans(ctx context.Context, patronID string) (int, error)
}

// BookCatalog reads catalog entries.
type BookCatalog interface {
	GetBook(ctx context.Context, id string) (Book, error)
}

// PatronDirectory reads borrower accounts.
type PatronDirectory interface {
	GetPatron(ctx context.Context, id string) (Patron, error)
}

// WaitlistStore persists waitlist entries.
type WaitlistStore interface {
	CreateEntry(ctx context.Context, entry WaitlistEntry) (WaitlistEntry, error)
	UpdateEntry(ctx context.Context, entry WaitlistEntry) (WaitlistEntry, error)
	// DeleteFulfilledEntry removes a fulfilled entry for the pair so the
	// patron can join again. Missing entries are not an error.
	DeleteFulfilledEntry(ctx context.Context, patronID, bookID string) error
	// NextUnfulfilled returns the oldest unfulfilled, unnotified entry for
	// the book, or ErrNotFound.
	NextUnfulfilled(ctx context.Context, bookID string) (WaitlistEntry, error)
	// UnfulfilledEntry returns the patron's pending entry for the book, or
	// ErrNotFound.
	UnfulfilledEntry(ctx context.Context, patronID, bookID string) (WaitlistEntry, error)
	CountUnfulfilled(ctx context.Context, bookID string) (int, error)
}

// AvailabilityLease is one claimed copy; Rollback compensates a checkout
// that failed after the claim and must be idempotent.
type AvailabilityLease interface {
	Rollback(ctx context.Context) error
	BookID() string
}

// AvailabilityLedger gates the copy counter. Acquire fails with an error the
// service maps to ErrUnavailable when no copy is free.
type AvailabilityLedger interface {
	Acquire(ctx context.Context, bookID string) (AvailabilityLease, error)
	Release(ctx context.Context, bookID string) error
}

// CopyGenerator produces a personalized circulation copy from the master.
type CopyGenerator interface {
	Generate(ctx context.Context, masterPath string, job watermark.Job) ([]byte, error)
}

// MasterResolver maps a stored master file identifier to a readable path.
type MasterResolver interface {
	Resolve(id string) (string, error)
}

// CirculationStore holds per-loan circulation copies.
type CirculationStore interface {
	Write(id string, data []byte) error
	Read(id string) ([]byte, error)
	Delete(id string) error
}

// LendingService implements the lending operations. Construct with
// NewLendingService; the zero value is not usable.
type LendingService struct {
	loans       LoanStore
	books       BookCatalog
	patrons     PatronDirectory
	waitlist    WaitlistStore
	ledger      AvailabilityLedger
	generator   CopyGenerator
	masters     MasterResolver
	circulation CirculationStore
	notifier    notify.Notifier
	libraryName string

	idGenerator    func() string
	tokenGenerator func() string
	now            func() time.Time
	policy         Policy
	logger         *slog.Logger
}

// LendingServiceConfig carries the dependencies for NewLendingService. All
// ports are required; IDGenerator, TokenGenerator and Now default to real
// implementations when nil.
type LendingServiceConfig struct {
	Loans       LoanStore
	Books       BookCatalog
	Patrons     PatronDirectory
	Waitlist    WaitlistStore
	Ledger      AvailabilityLedger
	Generator   CopyGenerator
	Masters     MasterResolver
	Circulation CirculationStore
	Notifier    notify.Notifier
	LibraryName string

	IDGenerator    func() string
	TokenGenerator func() string
	Now            func() time.Time
	Policy         Policy
	Logger         *slog.Logger
}

// NewLendingService wires a lending service.
func NewLendingService(cfg LendingServiceConfig) *LendingService {
	idGenerator := cfg.IDGenerator
	if idGenerator == nil {
		idGenerator = defaultIDGenerator
	}
	tokenGenerator := cfg.TokenGenerator
	if tokenGenerator == nil {
		tokenGenerator = defaultTokenGenerator
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	policy := cfg.Policy
	if policy.DefaultLoanDays <= 0 {
		policy.DefaultLoanDays = 14
	}
	if policy.MaxLoansPerPatron <= 0 {
		policy.MaxLoansPerPatron = 5
	}
	if policy.MaxRenewals < 0 {
		policy.MaxRenewals = 0
	}
	if policy.ReminderLead <= 0 {
		policy.ReminderLead = 48 * time.Hour
	}

	return &LendingService{
		loans:          cfg.Loans,
		books:          cfg.Books,
		patrons:        cfg.Patrons,
		waitlist:       cfg.Waitlist,
		ledger:         cfg.Ledger,
		generator:      cfg.Generator,
		masters:        cfg.Masters,
		circulation:    cfg.Circulation,
		notifier:       cfg.Notifier,
		libraryName:    cfg.LibraryName,
		idGenerator:    idGenerator,
		tokenGenerator: tokenGenerator,
		now:            now,
		policy:         policy,
		logger:         defaultLogger(cfg.Logger),
	}
}

// Checkout lends one copy of the book to the patron. The availability claim
// commits before the circulation copy is built; any later failure rolls the
// claim back, so a copy is never stranded and never double-lent.
func (s *LendingService) Checkout(ctx context.Context, principal Principal, bookID string) (Loan, error) {
	logger := serviceLogger(ctx, s.logger, "checkout", "patron_id", principal.PatronID, "book_id", bookID)

	patron, err := s.patrons.GetPatron(ctx, principal.PatronID)
	if err != nil {
		return Loan{}, err
	}
	if !patron.CanBorrow {
		return Loan{}, ErrNotEligible
	}

	book, err := s.books.GetBook(ctx, bookID)
	if err != nil {
		return Loan{}, err
	}
	if book.Restricted || book.MasterFile == nil {
		return Loan{}, ErrNotLendable
	}

	active, err := s.loans.CountActiveLoans(ctx, patron.ID)
	if err != nil {
		return Loan{}, fmt.Errorf("counting active loans: %w", err)
	}
	if active >= s.policy.MaxLoansPerPatron {
		return Loan{}, ErrLimitExceeded
	}

	existing, err := s.loans.ListLoans(ctx, LoanFilter{
		PatronID: patron.ID,
		BookID:   book.ID,
		Status:   LoanStatusActive,
	})
	if err != nil {
		return Loan{}, fmt.Errorf("checking for existing loan: %w", err)
	}
	if len(existing) > 0 {
		return Loan{}, ErrAlreadyBorrowed
	}

	lease, err := s.ledger.Acquire(ctx, book.ID)
	if err != nil {
		if errors.Is(err, ledger.ErrUnavailable) {
			return Loan{}, ErrUnavailable
		}
		return Loan{}, fmt.Errorf("claiming copy: %w", err)
	}

	loan, err := s.buildLoan(ctx, patron, book)
	if err != nil {
		if rbErr := lease.Rollback(ctx); rbErr != nil {
			logger.Error("availability rollback failed after checkout error", "error", rbErr)
		}
		return Loan{}, err
	}

	created, err := s.loans.CreateLoan(ctx, loan)
	if err != nil {
		if loan.CirculationFile != nil {
			if delErr := s.circulation.Delete(*loan.CirculationFile); delErr != nil {
				logger.Error("orphaned circulation copy could not be removed", "file", *loan.CirculationFile, "error", delErr)
			}
		}
		if rbErr := lease.Rollback(ctx); rbErr != nil {
			logger.Error("availability rollback failed after checkout error", "error", rbErr)
		}
		return Loan{}, fmt.Errorf("recording loan: %w", err)
	}

	s.fulfillWaitlistEntry(ctx, logger, patron.ID, book.ID)
	s.sendCheckoutReceipt(ctx, logger, patron, created)

	logger.Info("book checked out", "loan_id", created.ID, "due_at", created.DueAt)
	return created, nil
}

// buildLoan generates the circulation copy and assembles the loan record.
// The copy is written to storage before the record exists so a failed write
// never leaves a loan pointing at nothing.
func (s *LendingService) buildLoan(ctx context.Context, patron Patron, book Book) (Loan, error) {
	now := s.now()
	loanDays := book.LoanDays
	if loanDays <= 0 {
		loanDays = s.policy.DefaultLoanDays
	}
	dueAt := now.Add(time.Duration(loanDays) * 24 * time.Hour)
	loanID := s.idGenerator()

	masterPath, err := s.masters.Resolve(*book.MasterFile)
	if err != nil {
		return Loan{}, fmt.Errorf("resolving master file: %w", err)
	}

	data, err := s.generator.Generate(ctx, masterPath, watermark.Job{
		LoanID:       loanID,
		Title:        book.Title,
		Author:       book.Author,
		BorrowerName: patron.DisplayName,
		CheckedOutAt: now,
		DueAt:        dueAt,
		Mode:         watermark.Mode(book.WatermarkMode),
	})
	if err != nil {
		if isSourceCorrupt(err) {
			return Loan{}, fmt.Errorf("%w: %v", ErrSourceCorrupt, err)
		}
		return Loan{}, fmt.Errorf("generating circulation copy: %w", err)
	}

	circulationFile := fmt.Sprintf("loan_%s.pdf", loanID)
	if err := s.circulation.Write(circulationFile, data); err != nil {
		return Loan{}, fmt.Errorf("storing circulation copy: %w", err)
	}

	return Loan{
		ID:              loanID,
		AccessToken:     s.tokenGenerator(),
		PatronID:        patron.ID,
		BookID:          book.ID,
		CheckedOutAt:    now,
		DueAt:           dueAt,
		MaxRenewals:     s.policy.MaxRenewals,
		CirculationFile: &circulationFile,
		Status:          LoanStatusActive,
		TitleSnapshot:   book.Title,
		AuthorSnapshot:  book.Author,
	}, nil
}

// Return closes an active loan: the circulation copy is destroyed, the copy
// goes back into circulation, and the next waitlisted patron is told.
func (s *LendingService) Return(ctx context.Context, principal Principal, loanID string) (Loan, error) {
	logger := serviceLogger(ctx, s.logger, "return", "loan_id", loanID)

	loan, err := s.loans.GetLoan(ctx, loanID)
	if err != nil {
		return Loan{}, err
	}
	if !principal.mayActOn(loan) {
		return Loan{}, ErrUnauthorized
	}
	if loan.Status != LoanStatusActive {
		return Loan{}, ErrInvalidState
	}

	if loan.CirculationFile != nil {
		if err := s.circulation.Delete(*loan.CirculationFile); err != nil {
			return Loan{}, fmt.Errorf("removing circulation copy: %w", err)
		}
	}

	now := s.now()
	loan.Status = LoanStatusReturned
	loan.ReturnedAt = &now
	loan.CirculationFile = nil

	updated, err := s.loans.UpdateLoan(ctx, loan)
	if err != nil {
		return Loan{}, fmt.Errorf("recording return: %w", err)
	}

	if err := s.ledger.Release(ctx, loan.BookID); err != nil {
		logger.Error("copy release failed after return", "book_id", loan.BookID, "error", err)
		return Loan{}, fmt.Errorf("releasing copy: %w", err)
	}

	if err := s.NotifyNextWaitlisted(ctx, loan.BookID); err != nil {
		logger.Error("waitlist notification failed after return", "book_id", loan.BookID, "error", err)
	}

	logger.Info("book returned", "book_id", loan.BookID)
	return updated, nil
}

// Renew extends an active loan from its current due date, not from now, so
// renewing early never shortens the loan. Renewal is denied while other
// patrons wait for the book.
func (s *LendingService) Renew(ctx context.Context, principal Principal, loanID string) (Loan, error) {
	logger := serviceLogger(ctx, s.logger, "renew", "loan_id", loanID)

	loan, err := s.loans.GetLoan(ctx, loanID)
	if err != nil {
		return Loan{}, err
	}
	if !principal.mayActOn(loan) {
		return Loan{}, ErrUnauthorized
	}
	if loan.Status != LoanStatusActive {
		return Loan{}, ErrInvalidState
	}
	if loan.RenewalCount >= loan.MaxRenewals {
		return Loan{}, ErrRenewalLimitReached
	}

	waiting, err := s.waitlist.CountUnfulfilled(ctx, loan.BookID)
	if err != nil {
		return Loan{}, fmt.Errorf("checking waitlist: %w", err)
	}
	if waiting > 0 {
		return Loan{}, ErrWaitlisted
	}

	loanDays := s.policy.DefaultLoanDays
	if book, err := s.books.GetBook(ctx, loan.BookID); err == nil && book.LoanDays > 0 {
		loanDays = book.LoanDays
	}

	loan.DueAt = loan.DueAt.Add(time.Duration(loanDays) * 24 * time.Hour)
	loan.RenewalCount++
	// The reminder window restarts relative to the new due date.
	loan.ReminderSent = false

	updated, err := s.loans.UpdateLoan(ctx, loan)
	if err != nil {
		return Loan{}, fmt.Errorf("recording renewal: %w", err)
	}

	logger.Info("loan renewed", "renewal_count", updated.RenewalCount, "due_at", updated.DueAt)
	return updated, nil
}

// RedeemAccessToken serves the circulation copy for an unguessable loan
// token. Ended loans answer ErrGone; the file is never served past the due
// date even if the expiration job has not run yet.
func (s *LendingService) RedeemAccessToken(ctx context.Context, principal Principal, token string) (LoanFile, error) {
	logger := serviceLogger(ctx, s.logger, "redeem_access_token")

	loan, err := s.loans.GetLoanByAccessToken(ctx, token)
	if err != nil {
		return LoanFile{}, err
	}
	if !principal.mayActOn(loan) {
		return LoanFile{}, ErrUnauthorized
	}
	if loan.Status != LoanStatusActive || !s.now().Before(loan.DueAt) {
		return LoanFile{}, ErrGone
	}
	if loan.CirculationFile == nil {
		return LoanFile{}, fmt.Errorf("loan %s has no circulation copy recorded", loan.ID)
	}

	data, err := s.circulation.Read(*loan.CirculationFile)
	if err != nil {
		return LoanFile{}, fmt.Errorf("reading circulation copy: %w", err)
	}

	loan.DownloadCount++
	if _, err := s.loans.UpdateLoan(ctx, loan); err != nil {
		logger.Warn("download count not recorded", "loan_id", loan.ID, "error", err)
	}

	return LoanFile{
		Filename: downloadFilename(loan.TitleSnapshot),
		Data:     data,
	}, nil
}

func (s *LendingService) fulfillWaitlistEntry(ctx context.Context, logger *slog.Logger, patronID, bookID string) {
	entry, err := s.waitlist.UnfulfilledEntry(ctx, patronID, bookID)
	if err != nil {
		if !isNotFound(err) {
			logger.Warn("waitlist lookup failed during checkout", "error", err)
		}
		return
	}

	entry.IsFulfilled = true
	if _, err := s.waitlist.UpdateEntry(ctx, entry); err != nil {
		logger.Warn("waitlist entry not marked fulfilled", "entry_id", entry.ID, "error", err)
	}
}

func (s *LendingService) sendCheckoutReceipt(ctx context.Context, logger *slog.Logger, patron Patron, loan Loan) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.Send(ctx, notify.Message{
		Kind:          notify.KindCheckoutReceipt,
		RecipientName: patron.DisplayName,
		RecipientAddr: patron.Email,
		Data: map[string]string{
			"Title":   loan.TitleSnapshot,
			"Author":  loan.AuthorSnapshot,
			"DueDate": loan.DueAt.Format("January 2, 2006"),
			"Library": s.libraryName,
		},
	})
	if err != nil {
		logger.Warn("checkout receipt not delivered", "loan_id", loan.ID, "error", err)
	}
}

// downloadFilename derives a shareable-looking but filesystem-safe name from
// the loan's title snapshot.
func downloadFilename(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('_')
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		name = "book"
	}
	return name + ".pdf"
}
