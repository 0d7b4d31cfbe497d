package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/example/digital-lending/internal/persistence"
	"github.com/example/digital-lending/internal/testfixtures"
)

func waitlistEntry(id, patronID, bookID string, joined time.Time) persistence.WaitlistEntry {
	return persistence.WaitlistEntry{
		ID:       id,
		PatronID: patronID,
		BookID:   bookID,
		JoinedAt: joined,
	}
}

func TestWaitlistRepository_PendingEntryIsUnique(t *testing.T) {
	t.Parallel()

	harness := testfixtures.NewSQLiteHarness(t)
	ctx := context.Background()
	book, patron := seedPair(t, harness)

	entry := waitlistEntry("wl-1", patron.ID, book.ID, testfixtures.ReferenceTime())
	if err := harness.Waitlist.CreateEntry(ctx, entry); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	dupe := waitlistEntry("wl-2", patron.ID, book.ID, testfixtures.ReferenceTime().Add(time.Minute))
	if err := harness.Waitlist.CreateEntry(ctx, dupe); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for a second pending entry, got %v", err)
	}
}

func TestWaitlistRepository_FulfilledEntryAllowsRejoin(t *testing.T) {
	t.Parallel()

	harness := testfixtures.NewSQLiteHarness(t)
	ctx := context.Background()
	book, patron := seedPair(t, harness)

	notified := testfixtures.ReferenceTime().Add(time.Hour)
	fulfilled := waitlistEntry("wl-1", patron.ID, book.ID, testfixtures.ReferenceTime())
	if err := harness.Waitlist.CreateEntry(ctx, fulfilled); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	fulfilled.NotifiedAt = &notified
	fulfilled.IsFulfilled = true
	if err := harness.Waitlist.UpdateEntry(ctx, fulfilled); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	// The partial unique index only covers pending rows.
	rejoin := waitlistEntry("wl-2", patron.ID, book.ID, notified.Add(time.Minute))
	if err := harness.Waitlist.CreateEntry(ctx, rejoin); err != nil {
		t.Fatalf("rejoin after fulfilment should be allowed: %v", err)
	}

	if err := harness.Waitlist.DeleteFulfilledEntry(ctx, patron.ID, book.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	// The pending rejoin entry must survive the cleanup.
	pending, err := harness.Waitlist.UnfulfilledEntry(ctx, patron.ID, book.ID)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if pending.ID != "wl-2" {
		t.Fatalf("expected the rejoin entry, got %q", pending.ID)
	}
}

func TestWaitlistRepository_DeleteFulfilledIsIdempotent(t *testing.T) {
	t.Parallel()

	harness := testfixtures.NewSQLiteHarness(t)
	book, patron := seedPair(t, harness)

	if err := harness.Waitlist.DeleteFulfilledEntry(context.Background(), patron.ID, book.ID); err != nil {
		t.Fatalf("deleting nothing must not fail: %v", err)
	}
}

func TestWaitlistRepository_NextUnfulfilledIsFIFO(t *testing.T) {
	t.Parallel()

	harness := testfixtures.NewSQLiteHarness(t)
	ctx := context.Background()

	book := testfixtures.NewBookFixture()
	if err := harness.Books.CreateBook(ctx, book.Persistence()); err != nil {
		t.Fatalf("seeding book failed: %v", err)
	}

	base := testfixtures.ReferenceTime()
	// Insert out of join order to prove ordering comes from joined_at.
	joins := []struct {
		id     string
		offset time.Duration
	}{
		{"wl-b", 2 * time.Hour},
		{"wl-a", time.Hour},
		{"wl-c", 3 * time.Hour},
	}
	for i, join := range joins {
		patron := testfixtures.NewPatronFixture()
		if err := harness.Patrons.CreatePatron(ctx, patron.Persistence()); err != nil {
			t.Fatalf("seeding patron failed: %v", err)
		}
		entry := waitlistEntry(join.id, patron.ID, book.ID, base.Add(join.offset))
		if err := harness.Waitlist.CreateEntry(ctx, entry); err != nil {
			t.Fatalf("create %d failed: %v", i, err)
		}
	}

	count, err := harness.Waitlist.CountUnfulfilled(ctx, book.ID)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 pending entries, got %d", count)
	}

	for i, want := range []string{"wl-a", "wl-b", "wl-c"} {
		next, err := harness.Waitlist.NextUnfulfilled(ctx, book.ID)
		if err != nil {
			t.Fatalf("next %d failed: %v", i, err)
		}
		if next.ID != want {
			t.Fatalf("expected %q at position %d, got %q", want, i, next.ID)
		}
		next.IsFulfilled = true
		if err := harness.Waitlist.UpdateEntry(ctx, next); err != nil {
			t.Fatalf("fulfil %d failed: %v", i, err)
		}
	}

	if _, err := harness.Waitlist.NextUnfulfilled(ctx, book.ID); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on an empty queue, got %v", err)
	}
}

func TestWaitlistRepository_NextSkipsNotifiedEntries(t *testing.T) {
	t.Parallel()

	harness := testfixtures.NewSQLiteHarness(t)
	ctx := context.Background()
	book, patron := seedPair(t, harness)

	notified := testfixtures.ReferenceTime().Add(time.Hour)
	entry := waitlistEntry("wl-1", patron.ID, book.ID, testfixtures.ReferenceTime())
	entry.NotifiedAt = &notified
	if err := harness.Waitlist.CreateEntry(ctx, entry); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := harness.Waitlist.NextUnfulfilled(ctx, book.ID); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("already notified entries must not be offered again, got %v", err)
	}
}

func TestWaitlistRepository_CountScopedPerBook(t *testing.T) {
	t.Parallel()

	harness := testfixtures.NewSQLiteHarness(t)
	ctx := context.Background()

	books := []testfixtures.BookFixture{testfixtures.NewBookFixture(), testfixtures.NewBookFixture()}
	for _, book := range books {
		if err := harness.Books.CreateBook(ctx, book.Persistence()); err != nil {
			t.Fatalf("seeding book failed: %v", err)
		}
	}

	for i := 0; i < 3; i++ {
		patron := testfixtures.NewPatronFixture()
		if err := harness.Patrons.CreatePatron(ctx, patron.Persistence()); err != nil {
			t.Fatalf("seeding patron failed: %v", err)
		}
		target := books[0]
		if i == 2 {
			target = books[1]
		}
		entry := waitlistEntry(fmt.Sprintf("wl-%d", i), patron.ID, target.ID, testfixtures.ReferenceTime())
		if err := harness.Waitlist.CreateEntry(ctx, entry); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	first, err := harness.Waitlist.CountUnfulfilled(ctx, books[0].ID)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	second, err := harness.Waitlist.CountUnfulfilled(ctx, books[1].ID)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if first != 2 || second != 1 {
		t.Fatalf("expected counts 2 and 1, got %d and %d", first, second)
	}
}
