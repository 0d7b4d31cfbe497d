package main

import (
	"context"
	"errors"

	"github.com/example/digital-lending/internal/application"
	"github.com/example/digital-lending/internal/ledger"
	"github.com/example/digital-lending/internal/persistence"
)

// mapRepositoryError translates storage sentinels into the application's
// error taxonomy at the boundary, so the service never sees raw storage
// errors.
func mapRepositoryError(err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return application.ErrNotFound
	}
	return err
}

// ------------------------------- Loans ------------------------------------

type loanStoreAdapter struct {
	repo persistence.LoanRepository
}

func newLoanStoreAdapter(repo persistence.LoanRepository) *loanStoreAdapter {
	return &loanStoreAdapter{repo: repo}
}

func (a *loanStoreAdapter) CreateLoan(ctx context.Context, loan application.Loan) (application.Loan, error) {
	if err := a.repo.CreateLoan(ctx, toPersistenceLoan(loan)); err != nil {
		return application.Loan{}, mapRepositoryError(err)
	}
	stored, err := a.repo.GetLoan(ctx, loan.ID)
	if err != nil {
		return application.Loan{}, mapRepositoryError(err)
	}
	return toApplicationLoan(stored), nil
}

func (a *loanStoreAdapter) UpdateLoan(ctx context.Context, loan application.Loan) (application.Loan, error) {
	if err := a.repo.UpdateLoan(ctx, toPersistenceLoan(loan)); err != nil {
		return application.Loan{}, mapRepositoryError(err)
	}
	stored, err := a.repo.GetLoan(ctx, loan.ID)
	if err != nil {
		return application.Loan{}, mapRepositoryError(err)
	}
	return toApplicationLoan(stored), nil
}

func (a *loanStoreAdapter) GetLoan(ctx context.Context, id string) (application.Loan, error) {
	stored, err := a.repo.GetLoan(ctx, id)
	if err != nil {
		return application.Loan{}, mapRepositoryError(err)
	}
	return toApplicationLoan(stored), nil
}

func (a *loanStoreAdapter) GetLoanByAccessToken(ctx context.Context, token string) (application.Loan, error) {
	stored, err := a.repo.GetLoanByAccessToken(ctx, token)
	if err != nil {
		return application.Loan{}, mapRepositoryError(err)
	}
	return toApplicationLoan(stored), nil
}

func (a *loanStoreAdapter) ListLoans(ctx context.Context, filter application.LoanFilter) ([]application.Loan, error) {
	models, err := a.repo.ListLoans(ctx, persistence.LoanFilter{
		PatronID:  filter.PatronID,
		BookID:    filter.BookID,
		Status:    persistence.LoanStatus(filter.Status),
		DueBefore: filter.DueBefore,
		DueAfter:  filter.DueAfter,
	})
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	if len(models) == 0 {
		return nil, nil
	}
	loans := make([]application.Loan, 0, len(models))
	for _, model := range models {
		loans = append(loans, toApplicationLoan(model))
	}
	return loans, nil
}

func (a *loanStoreAdapter) CountActiveLoans(ctx context.Context, patronID string) (int, error) {
	count, err := a.repo.CountActiveLoans(ctx, patronID)
	if err != nil {
		return 0, mapRepositoryError(err)
	}
	return count, nil
}

func toPersistenceLoan(loan application.Loan) persistence.Loan {
	return persistence.Loan{
		ID:                   loan.ID,
		AccessToken:          loan.AccessToken,
		PatronID:             loan.PatronID,
		BookID:               loan.BookID,
		CheckedOutAt:         loan.CheckedOutAt,
		DueAt:                loan.DueAt,
		ReturnedAt:           loan.ReturnedAt,
		RenewalCount:         loan.RenewalCount,
		MaxRenewals:          loan.MaxRenewals,
		CirculationFile:      loan.CirculationFile,
		Status:               persistence.LoanStatus(loan.Status),
		ReminderSent:         loan.ReminderSent,
		ExpirationNoticeSent: loan.ExpirationNoticeSent,
		DownloadCount:        loan.DownloadCount,
		TitleSnapshot:        loan.TitleSnapshot,
		AuthorSnapshot:       loan.AuthorSnapshot,
	}
}

func toApplicationLoan(loan persistence.Loan) application.Loan {
	return application.Loan{
		ID:                   loan.ID,
		AccessToken:          loan.AccessToken,
		PatronID:             loan.PatronID,
		BookID:               loan.BookID,
		CheckedOutAt:         loan.CheckedOutAt,
		DueAt:                loan.DueAt,
		ReturnedAt:           loan.ReturnedAt,
		RenewalCount:         loan.RenewalCount,
		MaxRenewals:          loan.MaxRenewals,
		CirculationFile:      loan.CirculationFile,
		Status:               application.LoanStatus(loan.Status),
		ReminderSent:         loan.ReminderSent,
		ExpirationNoticeSent: loan.ExpirationNoticeSent,
		DownloadCount:        loan.DownloadCount,
		TitleSnapshot:        loan.TitleSnapshot,
		AuthorSnapshot:       loan.AuthorSnapshot,
	}
}

// ------------------------------- Books -------------------------------------

type bookCatalogAdapter struct {
	repo persistence.BookRepository
}

func newBookCatalogAdapter(repo persistence.BookRepository) *bookCatalogAdapter {
	return &bookCatalogAdapter{repo: repo}
}

func (a *bookCatalogAdapter) GetBook(ctx context.Context, id string) (application.Book, error) {
	stored, err := a.repo.GetBook(ctx, id)
	if err != nil {
		return application.Book{}, mapRepositoryError(err)
	}
	return application.Book{
		ID:              stored.ID,
		Title:           stored.Title,
		Author:          stored.Author,
		MasterFile:      stored.MasterFile,
		OwnedCopies:     stored.OwnedCopies,
		AvailableCopies: stored.AvailableCopies,
		LoanDays:        stored.LoanDays,
		WatermarkMode:   stored.WatermarkMode,
		Restricted:      stored.Restricted,
	}, nil
}

// ------------------------------ Patrons ------------------------------------

type patronDirectoryAdapter struct {
	repo persistence.PatronDirectory
}

func newPatronDirectoryAdapter(repo persistence.PatronDirectory) *patronDirectoryAdapter {
	return &patronDirectoryAdapter{repo: repo}
}

func (a *patronDirectoryAdapter) GetPatron(ctx context.Context, id string) (application.Patron, error) {
	stored, err := a.repo.GetPatron(ctx, id)
	if err != nil {
		return application.Patron{}, mapRepositoryError(err)
	}
	return application.Patron{
		ID:          stored.ID,
		Email:       stored.Email,
		DisplayName: stored.DisplayName,
		CanBorrow:   stored.CanBorrow,
		IsAdmin:     stored.IsAdmin,
	}, nil
}

// ------------------------------ Waitlist -----------------------------------

type waitlistStoreAdapter struct {
	repo persistence.WaitlistRepository
}

func newWaitlistStoreAdapter(repo persistence.WaitlistRepository) *waitlistStoreAdapter {
	return &waitlistStoreAdapter{repo: repo}
}

func (a *waitlistStoreAdapter) CreateEntry(ctx context.Context, entry application.WaitlistEntry) (application.WaitlistEntry, error) {
	if err := a.repo.CreateEntry(ctx, toPersistenceWaitlistEntry(entry)); err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			return application.WaitlistEntry{}, application.ErrAlreadyWaitlisted
		}
		return application.WaitlistEntry{}, mapRepositoryError(err)
	}
	return entry, nil
}

func (a *waitlistStoreAdapter) UpdateEntry(ctx context.Context, entry application.WaitlistEntry) (application.WaitlistEntry, error) {
	if err := a.repo.UpdateEntry(ctx, toPersistenceWaitlistEntry(entry)); err != nil {
		return application.WaitlistEntry{}, mapRepositoryError(err)
	}
	return entry, nil
}

func (a *waitlistStoreAdapter) DeleteFulfilledEntry(ctx context.Context, patronID, bookID string) error {
	return mapRepositoryError(a.repo.DeleteFulfilledEntry(ctx, patronID, bookID))
}

func (a *waitlistStoreAdapter) NextUnfulfilled(ctx context.Context, bookID string) (application.WaitlistEntry, error) {
	stored, err := a.repo.NextUnfulfilled(ctx, bookID)
	if err != nil {
		return application.WaitlistEntry{}, mapRepositoryError(err)
	}
	return toApplicationWaitlistEntry(stored), nil
}

func (a *waitlistStoreAdapter) UnfulfilledEntry(ctx context.Context, patronID, bookID string) (application.WaitlistEntry, error) {
	stored, err := a.repo.UnfulfilledEntry(ctx, patronID, bookID)
	if err != nil {
		return application.WaitlistEntry{}, mapRepositoryError(err)
	}
	return toApplicationWaitlistEntry(stored), nil
}

func (a *waitlistStoreAdapter) CountUnfulfilled(ctx context.Context, bookID string) (int, error) {
	count, err := a.repo.CountUnfulfilled(ctx, bookID)
	if err != nil {
		return 0, mapRepositoryError(err)
	}
	return count, nil
}

func toPersistenceWaitlistEntry(entry application.WaitlistEntry) persistence.WaitlistEntry {
	return persistence.WaitlistEntry{
		ID:          entry.ID,
		PatronID:    entry.PatronID,
		BookID:      entry.BookID,
		JoinedAt:    entry.JoinedAt,
		NotifiedAt:  entry.NotifiedAt,
		IsFulfilled: entry.IsFulfilled,
	}
}

func toApplicationWaitlistEntry(entry persistence.WaitlistEntry) application.WaitlistEntry {
	return application.WaitlistEntry{
		ID:          entry.ID,
		PatronID:    entry.PatronID,
		BookID:      entry.BookID,
		JoinedAt:    entry.JoinedAt,
		NotifiedAt:  entry.NotifiedAt,
		IsFulfilled: entry.IsFulfilled,
	}
}

// ------------------------------- Ledger ------------------------------------

// copyLedgerAdapter narrows *ledger.CopyLedger to the lease interface the
// application consumes.
type copyLedgerAdapter struct {
	ledger *ledger.CopyLedger
}

func newCopyLedgerAdapter(l *ledger.CopyLedger) *copyLedgerAdapter {
	return &copyLedgerAdapter{ledger: l}
}

func (a *copyLedgerAdapter) Acquire(ctx context.Context, bookID string) (application.AvailabilityLease, error) {
	lease, err := a.ledger.Acquire(ctx, bookID)
	if err != nil {
		return nil, err
	}
	return lease, nil
}

func (a *copyLedgerAdapter) Release(ctx context.Context, bookID string) error {
	return a.ledger.Release(ctx, bookID)
}
