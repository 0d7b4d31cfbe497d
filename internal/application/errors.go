package application

import "errors"

var (
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrUnauthorized is returned when the acting principal does not own the
	// loan and is not an admin.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrUnavailable is returned when a checkout finds no free copy.
	ErrUnavailable = errors.New("application: no copies available")
	// ErrLimitExceeded is returned when the patron is at the loan cap.
	ErrLimitExceeded = errors.New("application: loan limit reached")
	// ErrAlreadyBorrowed is returned when the patron already holds an active
	// loan for the book.
	ErrAlreadyBorrowed = errors.New("application: book already on loan to patron")
	// ErrInvalidState is returned when the operation is not valid for the
	// loan's current status, e.g. returning a returned loan.
	ErrInvalidState = errors.New("application: operation not valid for loan state")
	// ErrRenewalLimitReached is returned when no renewals remain.
	ErrRenewalLimitReached = errors.New("application: renewal limit reached")
	// ErrWaitlisted is returned when renewal is denied because other patrons
	// are waiting for the book.
	ErrWaitlisted = errors.New("application: book has waiting patrons")
	// ErrAlreadyWaitlisted is returned when the patron already has a pending
	// waitlist entry for the book.
	ErrAlreadyWaitlisted = errors.New("application: already on waitlist")
	// ErrBookAvailable is returned when a patron tries to waitlist a book
	// that can simply be borrowed.
	ErrBookAvailable = errors.New("application: book is currently available")
	// ErrNotEligible is returned when the patron account may not borrow.
	ErrNotEligible = errors.New("application: account not eligible to borrow")
	// ErrNotLendable is returned when the title is restricted or has no
	// circulating master file.
	ErrNotLendable = errors.New("application: title not available for lending")
	// ErrSourceCorrupt is returned when the master file cannot be processed
	// into a circulation copy.
	ErrSourceCorrupt = errors.New("application: master file unreadable")
	// ErrGone is returned when an access token resolves to a loan that is no
	// longer active; the file is never served.
	ErrGone = errors.New("application: loan access has ended")
)
