package sqlite_test

import (
	"context"
	"errors"
	"testing"

	"github.com/example/digital-lending/internal/persistence"
	"github.com/example/digital-lending/internal/testfixtures"
)

func TestBookRepository_CreateAndGet(t *testing.T) {
	t.Parallel()

	harness := testfixtures.NewSQLiteHarness(t)
	ctx := context.Background()

	fixture := testfixtures.NewBookFixture(testfixtures.WithBookWatermarkMode("gentle"))
	if err := harness.Books.CreateBook(ctx, fixture.Persistence()); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, err := harness.Books.GetBook(ctx, fixture.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Title != fixture.Title || stored.Author != fixture.Author {
		t.Errorf("metadata mismatch: %+v", stored)
	}
	if stored.MasterFile == nil || *stored.MasterFile != *fixture.MasterFile {
		t.Errorf("master file mismatch: %v", stored.MasterFile)
	}
	if stored.WatermarkMode != "gentle" {
		t.Errorf("unexpected watermark mode %q", stored.WatermarkMode)
	}
	if stored.AvailableCopies != fixture.AvailableCopies {
		t.Errorf("unexpected availability %d", stored.AvailableCopies)
	}
	if stored.CreatedAt.IsZero() || stored.UpdatedAt.IsZero() {
		t.Error("timestamps should be populated")
	}
}

func TestBookRepository_GetMissing(t *testing.T) {
	t.Parallel()

	harness := testfixtures.NewSQLiteHarness(t)

	if _, err := harness.Books.GetBook(context.Background(), "missing"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBookRepository_CreateDuplicateID(t *testing.T) {
	t.Parallel()

	harness := testfixtures.NewSQLiteHarness(t)
	ctx := context.Background()

	fixture := testfixtures.NewBookFixture()
	if err := harness.Books.CreateBook(ctx, fixture.Persistence()); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := harness.Books.CreateBook(ctx, fixture.Persistence()); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestBookRepository_UpdateMetadataKeepsAvailability(t *testing.T) {
	t.Parallel()

	harness := testfixtures.NewSQLiteHarness(t)
	ctx := context.Background()

	fixture := testfixtures.NewBookFixture(testfixtures.WithBookCopies(3, 3))
	if err := harness.Books.CreateBook(ctx, fixture.Persistence()); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := harness.Books.DecrementAvailable(ctx, fixture.ID); err != nil {
		t.Fatalf("decrement failed: %v", err)
	}

	updated := fixture.Persistence()
	updated.Title = "Revised Title"
	updated.AvailableCopies = 99 // must be ignored
	if err := harness.Books.UpdateBook(ctx, updated); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	stored, err := harness.Books.GetBook(ctx, fixture.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Title != "Revised Title" {
		t.Errorf("title not updated: %q", stored.Title)
	}
	if stored.AvailableCopies != 2 {
		t.Errorf("metadata update must not touch availability, got %d", stored.AvailableCopies)
	}
}

func TestBookRepository_UpdateMissing(t *testing.T) {
	t.Parallel()

	harness := testfixtures.NewSQLiteHarness(t)

	book := testfixtures.NewBookFixture().Persistence()
	book.ID = "missing"
	if err := harness.Books.UpdateBook(context.Background(), book); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBookRepository_DecrementGuards(t *testing.T) {
	t.Parallel()

	harness := testfixtures.NewSQLiteHarness(t)
	ctx := context.Background()

	fixture := testfixtures.NewBookFixture(testfixtures.WithBookCopies(1, 1))
	if err := harness.Books.CreateBook(ctx, fixture.Persistence()); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := harness.Books.DecrementAvailable(ctx, fixture.ID); err != nil {
		t.Fatalf("first decrement failed: %v", err)
	}
	if err := harness.Books.DecrementAvailable(ctx, fixture.ID); !errors.Is(err, persistence.ErrNoCopies) {
		t.Fatalf("expected ErrNoCopies on exhausted counter, got %v", err)
	}
	if err := harness.Books.DecrementAvailable(ctx, "missing"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for an unknown book, got %v", err)
	}
}

func TestBookRepository_IncrementIsCapped(t *testing.T) {
	t.Parallel()

	harness := testfixtures.NewSQLiteHarness(t)
	ctx := context.Background()

	fixture := testfixtures.NewBookFixture(testfixtures.WithBookCopies(2, 1))
	if err := harness.Books.CreateBook(ctx, fixture.Persistence()); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := harness.Books.IncrementAvailable(ctx, fixture.ID); err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	if err := harness.Books.IncrementAvailable(ctx, fixture.ID); !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected the owned-copies cap, got %v", err)
	}
	if err := harness.Books.IncrementAvailable(ctx, "missing"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for an unknown book, got %v", err)
	}

	stored, err := harness.Books.GetBook(ctx, fixture.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.AvailableCopies != stored.OwnedCopies {
		t.Fatalf("counter must stop at owned copies, got %d/%d", stored.AvailableCopies, stored.OwnedCopies)
	}
}

func TestBookRepository_ListOrdersByTitle(t *testing.T) {
	t.Parallel()

	harness := testfixtures.NewSQLiteHarness(t)
	ctx := context.Background()

	titles := []string{"Zebra Atlas", "Aardvark Guide", "Middle Reader"}
	for _, title := range titles {
		fixture := testfixtures.NewBookFixture()
		book := fixture.Persistence()
		book.Title = title
		if err := harness.Books.CreateBook(ctx, book); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	books, err := harness.Books.ListBooks(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(books) != 3 {
		t.Fatalf("expected 3 books, got %d", len(books))
	}
	want := []string{"Aardvark Guide", "Middle Reader", "Zebra Atlas"}
	for i, title := range want {
		if books[i].Title != title {
			t.Fatalf("unexpected order: %q at %d, want %q", books[i].Title, i, title)
		}
	}
}
