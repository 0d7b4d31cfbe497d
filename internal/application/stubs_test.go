package application

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/example/digital-lending/internal/ledger"
	"github.com/example/digital-lending/internal/notify"
	"github.com/example/digital-lending/internal/watermark"
)

type recordingNotifier struct {
	mu        sync.Mutex
	sent      []notify.Message
	failKinds map[notify.Kind]error
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{failKinds: make(map[notify.Kind]error)}
}

func (n *recordingNotifier) Send(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err, ok := n.failKinds[msg.Kind]; ok {
		return &notify.DeliveryError{Kind: msg.Kind, Recipient: msg.RecipientAddr, Err: err}
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) sentOfKind(kind notify.Kind) []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Message
	for _, msg := range n.sent {
		if msg.Kind == kind {
			out = append(out, msg)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// In-memory stores shared by the service tests. They honour the same filter
// and ordering semantics as the SQLite repositories.

type memLoanStore struct {
	mu        sync.Mutex
	loans     map[string]Loan
	createErr error
	updateErr error
}

func newMemLoanStore(loans ...Loan) *memLoanStore {
	store := &memLoanStore{loans: make(map[string]Loan)}
	for _, loan := range loans {
		store.loans[loan.ID] = loan
	}
	return store
}

func (s *memLoanStore) CreateLoan(_ context.Context, loan Loan) (Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return Loan{}, s.createErr
	}
	s.loans[loan.ID] = loan
	return loan, nil
}

func (s *memLoanStore) UpdateLoan(_ context.Context, loan Loan) (Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return Loan{}, s.updateErr
	}
	if _, ok := s.loans[loan.ID]; !ok {
		return Loan{}, ErrNotFound
	}
	s.loans[loan.ID] = loan
	return loan, nil
}

func (s *memLoanStore) GetLoan(_ context.Context, id string) (Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loan, ok := s.loans[id]
	if !ok {
		return Loan{}, ErrNotFound
	}
	return loan, nil
}

func (s *memLoanStore) GetLoanByAccessToken(_ context.Context, token string) (Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, loan := range s.loans {
		if loan.AccessToken == token {
			return loan, nil
		}
	}
	return Loan{}, ErrNotFound
}

func (s *memLoanStore) ListLoans(_ context.Context, filter LoanFilter) ([]Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Loan
	for _, loan := range s.loans {
		if filter.PatronID != "" && loan.PatronID != filter.PatronID {
			continue
		}
		if filter.BookID != "" && loan.BookID != filter.BookID {
			continue
		}
		if filter.Status != "" && loan.Status != filter.Status {
			continue
		}
		if filter.DueBefore != nil && loan.DueAt.After(*filter.DueBefore) {
			continue
		}
		if filter.DueAfter != nil && !loan.DueAt.After(*filter.DueAfter) {
			continue
		}
		out = append(out, loan)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DueAt.Equal(out[j].DueAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].DueAt.Before(out[j].DueAt)
	})
	return out, nil
}

func (s *memLoanStore) CountActiveLoans(_ context.Context, patronID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, loan := range s.loans {
		if loan.PatronID == patronID && loan.Status == LoanStatusActive {
			count++
		}
	}
	return count, nil
}

type memBookCatalog struct {
	mu    sync.Mutex
	books map[string]Book
}

func newMemBookCatalog(books ...Book) *memBookCatalog {
	catalog := &memBookCatalog{books: make(map[string]Book)}
	for _, book := range books {
		catalog.books[book.ID] = book
	}
	return catalog
}

func (c *memBookCatalog) GetBook(_ context.Context, id string) (Book, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	book, ok := c.books[id]
	if !ok {
		return Book{}, ErrNotFound
	}
	return book, nil
}

func (c *memBookCatalog) setAvailable(id string, available int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	book := c.books[id]
	book.AvailableCopies = available
	c.books[id] = book
}

type memPatronDirectory struct {
	patrons map[string]Patron
}

func newMemPatronDirectory(patrons ...Patron) *memPatronDirectory {
	dir := &memPatronDirectory{patrons: make(map[string]Patron)}
	for _, patron := range patrons {
		dir.patrons[patron.ID] = patron
	}
	return dir
}

func (d *memPatronDirectory) GetPatron(_ context.Context, id string) (Patron, error) {
	patron, ok := d.patrons[id]
	if !ok {
		return Patron{}, ErrNotFound
	}
	return patron, nil
}

type memWaitlistStore struct {
	mu      sync.Mutex
	entries map[string]WaitlistEntry
}

func newMemWaitlistStore(entries ...WaitlistEntry) *memWaitlistStore {
	store := &memWaitlistStore{entries: make(map[string]WaitlistEntry)}
	for _, entry := range entries {
		store.entries[entry.ID] = entry
	}
	return store
}

func (s *memWaitlistStore) CreateEntry(_ context.Context, entry WaitlistEntry) (WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ID] = entry
	return entry, nil
}

func (s *memWaitlistStore) UpdateEntry(_ context.Context, entry WaitlistEntry) (WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entry.ID]; !ok {
		return WaitlistEntry{}, ErrNotFound
	}
	s.entries[entry.ID] = entry
	return entry, nil
}

func (s *memWaitlistStore) DeleteFulfilledEntry(_ context.Context, patronID, bookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.entries {
		if entry.PatronID == patronID && entry.BookID == bookID && entry.IsFulfilled {
			delete(s.entries, id)
		}
	}
	return nil
}

func (s *memWaitlistStore) NextUnfulfilled(_ context.Context, bookID string) (WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []WaitlistEntry
	for _, entry := range s.entries {
		if entry.BookID == bookID && !entry.IsFulfilled && entry.NotifiedAt == nil {
			candidates = append(candidates, entry)
		}
	}
	if len(candidates) == 0 {
		return WaitlistEntry{}, ErrNotFound
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].JoinedAt.Before(candidates[j].JoinedAt)
	})
	return candidates[0], nil
}

func (s *memWaitlistStore) UnfulfilledEntry(_ context.Context, patronID, bookID string) (WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.entries {
		if entry.PatronID == patronID && entry.BookID == bookID && !entry.IsFulfilled {
			return entry, nil
		}
	}
	return WaitlistEntry{}, ErrNotFound
}

func (s *memWaitlistStore) CountUnfulfilled(_ context.Context, bookID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, entry := range s.entries {
		if entry.BookID == bookID && !entry.IsFulfilled {
			count++
		}
	}
	return count, nil
}

// ---------------------------------------------------------------------------
// Availability ledger fake with the same claim semantics as the real one.

type fakeLedger struct {
	mu        sync.Mutex
	available map[string]int
	rollbacks int
	releases  int
}

func newFakeLedger(available map[string]int) *fakeLedger {
	copied := make(map[string]int, len(available))
	for id, n := range available {
		copied[id] = n
	}
	return &fakeLedger{available: copied}
}

func (l *fakeLedger) Acquire(_ context.Context, bookID string) (AvailabilityLease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.available[bookID] <= 0 {
		return nil, ledger.ErrUnavailable
	}
	l.available[bookID]--
	return &fakeLease{ledger: l, bookID: bookID}, nil
}

func (l *fakeLedger) Release(_ context.Context, bookID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.available[bookID]++
	l.releases++
	return nil
}

func (l *fakeLedger) availableFor(bookID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.available[bookID]
}

type fakeLease struct {
	ledger     *fakeLedger
	bookID     string
	rolledBack bool
}

func (le *fakeLease) Rollback(_ context.Context) error {
	if le.rolledBack {
		return nil
	}
	le.rolledBack = true
	le.ledger.mu.Lock()
	defer le.ledger.mu.Unlock()
	le.ledger.available[le.bookID]++
	le.ledger.rollbacks++
	return nil
}

func (le *fakeLease) BookID() string {
	return le.bookID
}

// ---------------------------------------------------------------------------
// Generator, resolver, and circulation store fakes.

type fakeGenerator struct {
	mu   sync.Mutex
	data []byte
	err  error
	jobs []watermark.Job
}

func (g *fakeGenerator) Generate(_ context.Context, _ string, job watermark.Job) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.jobs = append(g.jobs, job)
	if g.data == nil {
		return []byte("%PDF-fake"), nil
	}
	return g.data, nil
}

type fakeResolver struct{}

func (fakeResolver) Resolve(id string) (string, error) {
	return "/masters/" + id, nil
}

type memCirculation struct {
	mu        sync.Mutex
	files     map[string][]byte
	writeErr  error
	deleteErr map[string]error
}

func newMemCirculation() *memCirculation {
	return &memCirculation{
		files:     make(map[string][]byte),
		deleteErr: make(map[string]error),
	}
}

func (c *memCirculation) Write(id string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.files[id] = append([]byte(nil), data...)
	return nil
}

func (c *memCirculation) Read(id string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.files[id]
	if !ok {
		return nil, errors.New("file not found")
	}
	return append([]byte(nil), data...), nil
}

func (c *memCirculation) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.deleteErr[id]; ok {
		return err
	}
	delete(c.files, id)
	return nil
}

func (c *memCirculation) has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.files[id]
	return ok
}
