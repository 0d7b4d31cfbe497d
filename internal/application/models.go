// Package application implements the lending state machine: checkout,
// return, renewal, access-token redemption, the recurring circulation jobs,
// and the waitlist. It owns the business rules and speaks to storage,
// availability, watermarking, and notification through narrow ports.
package application

import "time"

// LoanStatus enumerates the lifecycle states of a loan.
type LoanStatus string

const (
	// LoanStatusActive marks an outstanding loan.
	LoanStatusActive LoanStatus = "active"
	// LoanStatusReturned marks a loan closed by the patron or an admin.
	LoanStatusReturned LoanStatus = "returned"
	// LoanStatusExpired marks a loan closed automatically at its due date.
	LoanStatusExpired LoanStatus = "expired"
)

// Book is the catalog view the lending core needs.
type Book struct {
	ID              string
	Title           string
	Author          string
	MasterFile      *string
	OwnedCopies     int
	AvailableCopies int
	LoanDays        int
	WatermarkMode   string
	Restricted      bool
}

// Patron is the borrower account view the lending core needs.
type Patron struct {
	ID          string
	Email       string
	DisplayName string
	CanBorrow   bool
	IsAdmin     bool
}

// Loan is one outstanding or historical borrowing. Title and author are
// snapshotted at checkout so history survives catalog edits.
type Loan struct {
	ID                   string
	AccessToken          string
	PatronID             string
	BookID               string
	CheckedOutAt         time.Time
	DueAt                time.Time
	ReturnedAt           *time.Time
	RenewalCount         int
	MaxRenewals          int
	CirculationFile      *string
	Status               LoanStatus
	ReminderSent         bool
	ExpirationNoticeSent bool
	DownloadCount        int
	TitleSnapshot        string
	AuthorSnapshot       string
}

// WaitlistEntry records a patron waiting for a copy of a book.
type WaitlistEntry struct {
	ID          string
	PatronID    string
	BookID      string
	JoinedAt    time.Time
	NotifiedAt  *time.Time
	IsFulfilled bool
}

// Principal identifies who is performing an operation. Loan operations are
// permitted to the loan's owner or to an admin acting on their behalf.
type Principal struct {
	PatronID string
	IsAdmin  bool
}

func (p Principal) mayActOn(loan Loan) bool {
	return p.IsAdmin || (p.PatronID != "" && p.PatronID == loan.PatronID)
}

// LoanFile is a circulation copy ready to serve to the patron.
type LoanFile struct {
	Filename string
	Data     []byte
}

// Policy holds the lending limits applied by the service.
type Policy struct {
	// DefaultLoanDays applies when a book does not set its own loan period.
	DefaultLoanDays int
	// MaxLoansPerPatron caps concurrently active loans per patron.
	MaxLoansPerPatron int
	// MaxRenewals caps renewals per loan.
	MaxRenewals int
	// ReminderLead is how far before the due date reminders go out.
	ReminderLead time.Duration
}
