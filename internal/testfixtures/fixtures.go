// Package testfixtures provides deterministic fixtures, clocks, and storage
// harnesses shared by the lending test suites.
package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/digital-lending/internal/application"
	"github.com/example/digital-lending/internal/persistence"
)

var (
	bookCounter   uint64
	patronCounter uint64
	loanCounter   uint64
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- Book fixtures -----------------------------

// BookFixture represents a deterministic catalog entry that can be
// materialised for application or persistence tests.
type BookFixture struct {
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

// BookOption configures the generated book fixture.
type BookOption func(*BookFixture)

// NewBookFixture returns a deterministic book fixture with optional overrides.
func NewBookFixture(opts ...BookOption) BookFixture {
	idx := atomic.AddUint64(&bookCounter, 1)
	id := fmt.Sprintf("book-%03d", idx)
	master := fmt.Sprintf("%s.pdf", id)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := BookFixture{
		ID:              id,
		Title:           fmt.Sprintf("Book %03d", idx),
		Author:          fmt.Sprintf("Author %03d", idx),
		MasterFile:      &master,
		OwnedCopies:     2,
		AvailableCopies: 2,
		LoanDays:        14,
		WatermarkMode:   "standard",
		CreatedAt:       created,
		UpdatedAt:       created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithBookID overrides the generated book ID.
func WithBookID(id string) BookOption {
	return func(f *BookFixture) {
		f.ID = id
	}
}

// WithBookCopies sets the owned and available copy counters.
func WithBookCopies(owned, available int) BookOption {
	return func(f *BookFixture) {
		f.OwnedCopies = owned
		f.AvailableCopies = available
	}
}

// WithBookLoanDays overrides the loan period.
func WithBookLoanDays(days int) BookOption {
	return func(f *BookFixture) {
		f.LoanDays = days
	}
}

// WithBookWatermarkMode sets the watermark mode.
func WithBookWatermarkMode(mode string) BookOption {
	return func(f *BookFixture) {
		f.WatermarkMode = mode
	}
}

// WithBookRestricted marks the book as not lendable.
func WithBookRestricted() BookOption {
	return func(f *BookFixture) {
		f.Restricted = true
	}
}

// WithoutBookMaster clears the master file reference.
func WithoutBookMaster() BookOption {
	return func(f *BookFixture) {
		f.MasterFile = nil
	}
}

// WithBookMaster sets the master file reference.
func WithBookMaster(name string) BookOption {
	return func(f *BookFixture) {
		f.MasterFile = &name
	}
}

// Application returns the fixture as an application.Book value.
func (f BookFixture) Application() application.Book {
	return application.Book{
		ID:              f.ID,
		Title:           f.Title,
		Author:          f.Author,
		MasterFile:      copyStringPtr(f.MasterFile),
		OwnedCopies:     f.OwnedCopies,
		AvailableCopies: f.AvailableCopies,
		LoanDays:        f.LoanDays,
		WatermarkMode:   f.WatermarkMode,
		Restricted:      f.Restricted,
	}
}

// Persistence returns the fixture as a persistence.Book value.
func (f BookFixture) Persistence() persistence.Book {
	return persistence.Book{
		ID:              f.ID,
		Title:           f.Title,
		Author:          f.Author,
		MasterFile:      copyStringPtr(f.MasterFile),
		OwnedCopies:     f.OwnedCopies,
		AvailableCopies: f.AvailableCopies,
		LoanDays:        f.LoanDays,
		WatermarkMode:   f.WatermarkMode,
		Restricted:      f.Restricted,
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.UpdatedAt,
	}
}

// ---------------------------- Patron fixtures ----------------------------

// PatronFixture represents a deterministic borrower account.
type PatronFixture struct {
	ID          string
	Email       string
	DisplayName string
	CanBorrow   bool
	IsAdmin     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PatronOption configures the generated patron fixture.
type PatronOption func(*PatronFixture)

// NewPatronFixture returns a deterministic patron fixture with optional
// overrides.
func NewPatronFixture(opts ...PatronOption) PatronFixture {
	idx := atomic.AddUint64(&patronCounter, 1)
	id := fmt.Sprintf("patron-%03d", idx)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := PatronFixture{
		ID:          id,
		Email:       fmt.Sprintf("%s@example.com", id),
		DisplayName: fmt.Sprintf("Patron %03d", idx),
		CanBorrow:   true,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithPatronID overrides the generated patron ID.
func WithPatronID(id string) PatronOption {
	return func(f *PatronFixture) {
		f.ID = id
	}
}

// WithPatronAdmin marks the patron as an admin.
func WithPatronAdmin() PatronOption {
	return func(f *PatronFixture) {
		f.IsAdmin = true
	}
}

// WithPatronSuspended revokes borrowing privileges.
func WithPatronSuspended() PatronOption {
	return func(f *PatronFixture) {
		f.CanBorrow = false
	}
}

// Application returns the fixture as an application.Patron value.
func (f PatronFixture) Application() application.Patron {
	return application.Patron{
		ID:          f.ID,
		Email:       f.Email,
		DisplayName: f.DisplayName,
		CanBorrow:   f.CanBorrow,
		IsAdmin:     f.IsAdmin,
	}
}

// Persistence returns the fixture as a persistence.Patron value.
func (f PatronFixture) Persistence() persistence.Patron {
	return persistence.Patron{
		ID:          f.ID,
		Email:       f.Email,
		DisplayName: f.DisplayName,
		CanBorrow:   f.CanBorrow,
		IsAdmin:     f.IsAdmin,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

// Principal returns an application.Principal derived from the fixture.
func (f PatronFixture) Principal() application.Principal {
	return application.Principal{PatronID: f.ID, IsAdmin: f.IsAdmin}
}

// ----------------------------- Loan fixtures -----------------------------

// LoanFixture represents a deterministic loan record.
type LoanFixture struct {
	ID              string
	AccessToken     string
	PatronID        string
	BookID          string
	CheckedOutAt    time.Time
	DueAt           time.Time
	ReturnedAt      *time.Time
	RenewalCount    int
	MaxRenewals     int
	CirculationFile *string
	Status          application.LoanStatus
	ReminderSent    bool
	DownloadCount   int
	TitleSnapshot   string
	AuthorSnapshot  string
}

// LoanOption configures the generated loan fixture.
type LoanOption func(*LoanFixture)

// NewLoanFixture returns a deterministic active loan fixture with optional
// overrides.
func NewLoanFixture(opts ...LoanOption) LoanFixture {
	idx := atomic.AddUint64(&loanCounter, 1)
	id := fmt.Sprintf("loan-%03d", idx)
	file := fmt.Sprintf("loan_%s.pdf", id)
	checkedOut := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := LoanFixture{
		ID:              id,
		AccessToken:     fmt.Sprintf("%064x", idx),
		PatronID:        fmt.Sprintf("patron-%03d", idx),
		BookID:          fmt.Sprintf("book-%03d", idx),
		CheckedOutAt:    checkedOut,
		DueAt:           checkedOut.Add(14 * 24 * time.Hour),
		MaxRenewals:     2,
		CirculationFile: &file,
		Status:          application.LoanStatusActive,
		TitleSnapshot:   fmt.Sprintf("Book %03d", idx),
		AuthorSnapshot:  fmt.Sprintf("Author %03d", idx),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithLoanID overrides the generated loan ID.
func WithLoanID(id string) LoanOption {
	return func(f *LoanFixture) {
		f.ID = id
	}
}

// WithLoanPatron sets the borrowing patron.
func WithLoanPatron(patronID string) LoanOption {
	return func(f *LoanFixture) {
		f.PatronID = patronID
	}
}

// WithLoanBook sets the borrowed book.
func WithLoanBook(bookID string) LoanOption {
	return func(f *LoanFixture) {
		f.BookID = bookID
	}
}

// WithLoanDueAt overrides the due date.
func WithLoanDueAt(t time.Time) LoanOption {
	return func(f *LoanFixture) {
		f.DueAt = t
	}
}

// WithLoanStatus sets the loan status.
func WithLoanStatus(status application.LoanStatus) LoanOption {
	return func(f *LoanFixture) {
		f.Status = status
	}
}

// WithLoanRenewals sets the renewal counters.
func WithLoanRenewals(count, max int) LoanOption {
	return func(f *LoanFixture) {
		f.RenewalCount = count
		f.MaxRenewals = max
	}
}

// WithLoanAccessToken overrides the access token.
func WithLoanAccessToken(token string) LoanOption {
	return func(f *LoanFixture) {
		f.AccessToken = token
	}
}

// WithoutLoanFile clears the circulation file reference.
func WithoutLoanFile() LoanOption {
	return func(f *LoanFixture) {
		f.CirculationFile = nil
	}
}

// Application returns the fixture as an application.Loan value.
func (f LoanFixture) Application() application.Loan {
	return application.Loan{
		ID:              f.ID,
		AccessToken:     f.AccessToken,
		PatronID:        f.PatronID,
		BookID:          f.BookID,
		CheckedOutAt:    f.CheckedOutAt,
		DueAt:           f.DueAt,
		ReturnedAt:      copyTimePtr(f.ReturnedAt),
		RenewalCount:    f.RenewalCount,
		MaxRenewals:     f.MaxRenewals,
		CirculationFile: copyStringPtr(f.CirculationFile),
		Status:          f.Status,
		ReminderSent:    f.ReminderSent,
		DownloadCount:   f.DownloadCount,
		TitleSnapshot:   f.TitleSnapshot,
		AuthorSnapshot:  f.AuthorSnapshot,
	}
}

// Persistence returns the fixture as a persistence.Loan value.
func (f LoanFixture) Persistence() persistence.Loan {
	return persistence.Loan{
		ID:              f.ID,
		AccessToken:     f.AccessToken,
		PatronID:        f.PatronID,
		BookID:          f.BookID,
		CheckedOutAt:    f.CheckedOutAt,
		DueAt:           f.DueAt,
		ReturnedAt:      copyTimePtr(f.ReturnedAt),
		RenewalCount:    f.RenewalCount,
		MaxRenewals:     f.MaxRenewals,
		CirculationFile: copyStringPtr(f.CirculationFile),
		Status:          persistence.LoanStatus(f.Status),
		ReminderSent:    f.ReminderSent,
		DownloadCount:   f.DownloadCount,
		TitleSnapshot:   f.TitleSnapshot,
		AuthorSnapshot:  f.AuthorSnapshot,
		CreatedAt:       f.CheckedOutAt,
		UpdatedAt:       f.CheckedOutAt,
	}
}

// helper to deep copy optional strings.
func copyStringPtr(src *string) *string {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}

func copyTimePtr(src *time.Time) *time.Time {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}
