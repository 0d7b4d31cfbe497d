package application

import (
	"context"
	"fmt"
)

// JoinWaitlist queues the patron for the next freed copy of the book and
// returns their 1-based position. A patron holds at most one pending entry
// per book; a fulfilled entry from an earlier wait is discarded so the
// patron can join again.
func (s *LendingService) JoinWaitlist(ctx context.Context, principal Principal, bookID string) (int, error) {
	logger := serviceLogger(ctx, s.logger, "join_waitlist", "patron_id", principal.PatronID, "book_id", bookID)

	patron, err := s.patrons.GetPatron(ctx, principal.PatronID)
	if err != nil {
		return 0, err
	}
	if !patron.CanBorrow {
		return 0, ErrNotEligible
	}

	book, err := s.books.GetBook(ctx, bookID)
	if err != nil {
		return 0, err
	}
	if book.Restricted || book.MasterFile == nil {
		return 0, ErrNotLendable
	}
	if book.AvailableCopies > 0 {
		return 0, ErrBookAvailable
	}

	active, err := s.loans.ListLoans(ctx, LoanFilter{
		PatronID: patron.ID,
		BookID:   book.ID,
		Status:   LoanStatusActive,
	})
	if err != nil {
		return 0, fmt.Errorf("checking for existing loan: %w", err)
	}
	if len(active) > 0 {
		return 0, ErrAlreadyBorrowed
	}

	if _, err := s.waitlist.UnfulfilledEntry(ctx, patron.ID, book.ID); err == nil {
		return 0, ErrAlreadyWaitlisted
	} else if !isNotFound(err) {
		return 0, fmt.Errorf("checking waitlist: %w", err)
	}

	if err := s.waitlist.DeleteFulfilledEntry(ctx, patron.ID, book.ID); err != nil {
		return 0, fmt.Errorf("clearing fulfilled entry: %w", err)
	}

	entry := WaitlistEntry{
		ID:       s.idGenerator(),
		PatronID: patron.ID,
		BookID:   book.ID,
		JoinedAt: s.now(),
	}
	if _, err := s.waitlist.CreateEntry(ctx, entry); err != nil {
		return 0, fmt.Errorf("recording waitlist entry: %w", err)
	}

	position, err := s.waitlist.CountUnfulfilled(ctx, book.ID)
	if err != nil {
		// The entry exists; a failed count only costs the position hint.
		logger.Warn("waitlist position unavailable", "error", err)
		position = 0
	}

	logger.Info("patron joined waitlist", "position", position)
	return position, nil
}
