// Package ledger serializes access to a book's availability counter. A
// checkout may proceed only while holding a lease issued here; the lease
// exists only if the storage-level decrement committed, so two concurrent
// checkouts can never both claim the last copy.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/example/digital-lending/internal/persistence"
)

// ErrUnavailable is returned when no copy is free to lend.
var ErrUnavailable = errors.New("ledger: no copies available")

// BookInventory is the storage half of the ledger: both operations must be
// atomic read-modify-writes in their own write transaction.
type BookInventory interface {
	// DecrementAvailable claims one copy, failing with
	// persistence.ErrNoCopies when the counter is zero.
	DecrementAvailable(ctx context.Context, bookID string) error
	// IncrementAvailable releases one copy.
	IncrementAvailable(ctx context.Context, bookID string) error
}

// CopyLedger composes a per-book in-process mutex with the transactional
// counter. The mutex serializes checkouts within one process as a guard for
// storage engines without row locking; the committed decrement is the source
// of truth and is what holds if the single-writer deployment constraint is
// ever violated.
type CopyLedger struct {
	inventory BookInventory

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCopyLedger wires a ledger over the given inventory. Construct one per
// process and inject it; the ledger holds no data of its own.
func NewCopyLedger(inventory BookInventory) *CopyLedger {
	return &CopyLedger{
		inventory: inventory,
		locks:     make(map[string]*sync.Mutex),
	}
}

// Lease represents one successfully claimed copy. Exactly one of Rollback
// (checkout failed downstream) or leaving the lease with the loan applies;
// Release on the ledger returns the copy when the loan later ends.
type Lease struct {
	ledger     *CopyLedger
	bookID     string
	rolledBack bool
	mu         sync.Mutex
}

// Acquire claims one copy of the book. It fails with ErrUnavailable when the
// counter is exhausted; any other inventory error passes through.
func (l *CopyLedger) Acquire(ctx context.Context, bookID string) (*Lease, error) {
	if bookID == "" {
		return nil, fmt.Errorf("ledger: book id is required")
	}

	lock := l.lockFor(bookID)
	lock.Lock()
	defer lock.Unlock()

	if err := l.inventory.DecrementAvailable(ctx, bookID); err != nil {
		if errors.Is(err, persistence.ErrNoCopies) {
			return nil, ErrUnavailable
		}
		return nil, err
	}

	return &Lease{ledger: l, bookID: bookID}, nil
}

// Release returns one copy of the book to circulation. Called on return and
// expiration, which happen long after Acquire and are serialized by the same
// per-book lock.
func (l *CopyLedger) Release(ctx context.Context, bookID string) error {
	lock := l.lockFor(bookID)
	lock.Lock()
	defer lock.Unlock()

	return l.inventory.IncrementAvailable(ctx, bookID)
}

// Rollback compensates a lease whose checkout failed after the decrement
// committed, e.g. watermark generation errors. Idempotent: a second call is
// a no-op, so cleanup paths may call it unconditionally.
func (le *Lease) Rollback(ctx context.Context) error {
	if le == nil {
		return nil
	}

	le.mu.Lock()
	defer le.mu.Unlock()

	if le.rolledBack {
		return nil
	}
	le.rolledBack = true
	return le.ledger.Release(ctx, le.bookID)
}

// BookID reports which book the lease covers.
func (le *Lease) BookID() string {
	if le == nil {
		return ""
	}
	return le.bookID
}

func (l *CopyLedger) lockFor(bookID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[bookID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[bookID] = lock
	}
	return lock
}
