package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/digital-lending/internal/notify"
)

// JobReport summarizes one run of a recurring job.
type JobReport struct {
	Processed int
	Failed    int
}

// ExpireDueLoans closes every active loan at or past its due date: the
// circulation copy is destroyed, the copy released, and the patron and the
// next waitlisted patron notified. One loan's failure never blocks the rest;
// a failed loan stays active and is retried on the next run.
func (s *LendingService) ExpireDueLoans(ctx context.Context) (JobReport, error) {
	now := s.now()
	logger := serviceLogger(ctx, s.logger, "expire_due_loans")

	due, err := s.loans.ListLoans(ctx, LoanFilter{
		Status:    LoanStatusActive,
		DueBefore: &now,
	})
	if err != nil {
		return JobReport{}, fmt.Errorf("listing due loans: %w", err)
	}

	var report JobReport
	for _, loan := range due {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := s.expireLoan(ctx, logger, loan); err != nil {
			report.Failed++
			logger.Error("loan expiration failed", "loan_id", loan.ID, "error", err)
			continue
		}
		report.Processed++
	}

	if report.Processed > 0 || report.Failed > 0 {
		logger.Info("expiration sweep finished", "processed", report.Processed, "failed", report.Failed)
	}
	if report.Failed > 0 {
		return report, fmt.Errorf("%d of %d due loans failed to expire", report.Failed, report.Failed+report.Processed)
	}
	return report, nil
}

// expireLoan runs the per-loan sequence. The copy is deleted first: until
// the status flips the loan stays active and the whole sequence reruns
// safely on the next sweep.
func (s *LendingService) expireLoan(ctx context.Context, logger *slog.Logger, loan Loan) error {
	if loan.CirculationFile != nil {
		if err := s.circulation.Delete(*loan.CirculationFile); err != nil {
			return fmt.Errorf("removing circulation copy: %w", err)
		}
	}

	now := s.now()
	loan.Status = LoanStatusExpired
	loan.ReturnedAt = &now
	loan.CirculationFile = nil

	updated, err := s.loans.UpdateLoan(ctx, loan)
	if err != nil {
		return fmt.Errorf("recording expiration: %w", err)
	}

	if err := s.ledger.Release(ctx, loan.BookID); err != nil {
		return fmt.Errorf("releasing copy: %w", err)
	}

	s.sendExpirationNotice(ctx, logger, updated)

	if err := s.NotifyNextWaitlisted(ctx, loan.BookID); err != nil {
		logger.Error("waitlist notification failed after expiration", "book_id", loan.BookID, "error", err)
	}
	return nil
}

func (s *LendingService) sendExpirationNotice(ctx context.Context, logger *slog.Logger, loan Loan) {
	if s.notifier == nil || loan.ExpirationNoticeSent {
		return
	}

	patron, err := s.patrons.GetPatron(ctx, loan.PatronID)
	if err != nil {
		logger.Warn("expiration notice skipped, patron lookup failed", "loan_id", loan.ID, "error", err)
		return
	}

	err = s.notifier.Send(ctx, notify.Message{
		Kind:          notify.KindExpiration,
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
		logger.Warn("expiration notice not delivered", "loan_id", loan.ID, "error", err)
		return
	}

	loan.ExpirationNoticeSent = true
	if _, err := s.loans.UpdateLoan(ctx, loan); err != nil {
		logger.Warn("expiration notice flag not recorded", "loan_id", loan.ID, "error", err)
	}
}

// SendReminders notifies patrons whose active loans fall due within the
// reminder lead window. A loan is reminded at most once per due date; the
// flag is set only after a successful delivery so failures retry next run.
func (s *LendingService) SendReminders(ctx context.Context) (JobReport, error) {
	if s.notifier == nil {
		return JobReport{}, nil
	}

	now := s.now()
	horizon := now.Add(s.policy.ReminderLead)
	logger := serviceLogger(ctx, s.logger, "send_reminders")

	upcoming, err := s.loans.ListLoans(ctx, LoanFilter{
		Status:    LoanStatusActive,
		DueAfter:  &now,
		DueBefore: &horizon,
	})
	if err != nil {
		return JobReport{}, fmt.Errorf("listing upcoming loans: %w", err)
	}

	var report JobReport
	for _, loan := range upcoming {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if loan.ReminderSent {
			continue
		}
		if err := s.remindLoan(ctx, loan); err != nil {
			report.Failed++
			logger.Warn("reminder not delivered", "loan_id", loan.ID, "error", err)
			continue
		}
		report.Processed++
	}

	if report.Failed > 0 {
		return report, fmt.Errorf("%d reminders failed to send", report.Failed)
	}
	return report, nil
}

func (s *LendingService) remindLoan(ctx context.Context, loan Loan) error {
	patron, err := s.patrons.GetPatron(ctx, loan.PatronID)
	if err != nil {
		return fmt.Errorf("patron lookup: %w", err)
	}

	err = s.notifier.Send(ctx, notify.Message{
		Kind:          notify.KindReminder,
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
		return err
	}

	loan.ReminderSent = true
	if _, err := s.loans.UpdateLoan(ctx, loan); err != nil {
		return fmt.Errorf("recording reminder: %w", err)
	}
	return nil
}

// NotifyNextWaitlisted offers a freed copy to the oldest waiting patron.
// The entry is marked fulfilled before the delivery attempt, so each entry
// is offered at most once; a lost email does not re-queue the patron.
func (s *LendingService) NotifyNextWaitlisted(ctx context.Context, bookID string) error {
	logger := serviceLogger(ctx, s.logger, "notify_next_waitlisted", "book_id", bookID)

	book, err := s.books.GetBook(ctx, bookID)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("book lookup: %w", err)
	}
	if book.AvailableCopies <= 0 {
		return nil
	}

	entry, err := s.waitlist.NextUnfulfilled(ctx, bookID)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("waitlist lookup: %w", err)
	}

	now := s.now()
	entry.NotifiedAt = &now
	entry.IsFulfilled = true
	if _, err := s.waitlist.UpdateEntry(ctx, entry); err != nil {
		return fmt.Errorf("marking waitlist entry fulfilled: %w", err)
	}

	if s.notifier == nil {
		return nil
	}
	patron, err := s.patrons.GetPatron(ctx, entry.PatronID)
	if err != nil {
		logger.Warn("waitlist offer skipped, patron lookup failed", "entry_id", entry.ID, "error", err)
		return nil
	}

	err = s.notifier.Send(ctx, notify.Message{
		Kind:          notify.KindWaitlistAvailable,
		RecipientName: patron.DisplayName,
		RecipientAddr: patron.Email,
		Data: map[string]string{
			"Title":   book.Title,
			"Author":  book.Author,
			"Library": s.libraryName,
		},
	})
	if err != nil {
		logger.Warn("waitlist offer not delivered", "entry_id", entry.ID, "error", err)
	}
	return nil
}
