package persistence

import "time"

// LoanStatus enumerates the lifecycle states of a loan record.
type LoanStatus string

const (
	// LoanStatusActive marks an outstanding loan.
	LoanStatusActive LoanStatus = "active"
	// LoanStatusReturned marks a loan closed by the patron or an admin.
	LoanStatusReturned LoanStatus = "returned"
	// LoanStatusExpired marks a loan closed automatically at its due date.
	LoanStatusExpired LoanStatus = "expired"
)

// Book represents a catalog entry whose scanned master can circulate.
// AvailableCopies is the source-of-truth counter gated by the availability
// ledger; it is only ever mutated through DecrementAvailable and
// IncrementAvailable.
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
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Patron represents a borrower account as seen by the lending core.
type Patron struct {
	ID          string
	Email       string
	DisplayName string
	CanBorrow   bool
	IsAdmin     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Loan represents one outstanding or historical borrowing. Loans are never
// deleted; terminal rows are retained for audit history.
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
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// WaitlistEntry records a patron waiting for a copy of a book. FIFO order is
// defined by JoinedAt.
type WaitlistEntry struct {
	ID          string
	PatronID    string
	BookID      string
	JoinedAt    time.Time
	NotifiedAt  *time.Time
	IsFulfilled bool
}
