package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/text/language"

	"github.com/tbourn/go-library-backend/internal/domain"
)

func ptr[T any](v T) *T { return &v }

func TestBookCreate_DefaultsAndGenre(t *testing.T) {
	st := newStore(t)
	s := NewBookService(st)
	ctx := context.Background()

	_, err := s.Create(ctx, NewBook{Author: "x"})
	wantKind(t, err, ErrValidation, "title is required")
	_, err = s.Create(ctx, NewBook{Title: "x", Author: "  "})
	wantKind(t, err, ErrValidation, "author is required")
	_, err = s.Create(ctx, NewBook{Title: "x", Author: "y", Stock: ptr(-1)})
	wantKind(t, err, ErrValidation, "")

	b, err := s.Create(ctx, NewBook{Title: " Dune ", Author: "Frank Herbert", Genre: "  science   fiction "})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.Title != "Dune" || b.Genre != "Science Fiction" {
		t.Fatalf("normalization: %+v", b)
	}
	if b.Type != domain.DefaultBookType || b.PriceBuy != domain.DefaultPriceBuy || b.PriceRent != domain.DefaultPriceRent ||
		b.Stock != domain.DefaultStock || b.Format != domain.DefaultFormat {
		t.Fatalf("defaults not applied: %+v", b)
	}
	if b.Rating != 0 || b.TotalRatings != 0 || b.RatingSource != "" {
		t.Fatalf("new book must start unrated: %+v", b.Aggregate())
	}

	free, err := s.Create(ctx, NewBook{Title: "Free", Author: "A", PriceBuy: ptr(0.0), Stock: ptr(0), Type: "audiobook"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if free.PriceBuy != 0 || free.Stock != 0 || free.Type != "audiobook" {
		t.Fatalf("explicit zero values overridden: %+v", free)
	}
}

func TestBookGetListUpdate(t *testing.T) {
	st := newStore(t)
	s := NewBookService(st)
	ctx := context.Background()

	_, err := s.Get(ctx, "nope")
	wantKind(t, err, ErrValidation, "Invalid book id")
	_, err = s.Get(ctx, domain.NewID())
	wantKind(t, err, ErrNotFound, "Book not found")

	dune, _ := s.Create(ctx, NewBook{Title: "Dune", Author: "Herbert", Genre: "sci-fi"})
	emma, _ := s.Create(ctx, NewBook{Title: "Emma", Author: "Austen", Genre: "romance"})
	_, _ = s.Create(ctx, NewBook{Title: "Anathem", Author: "Stephenson", Genre: "SCI-FI"})

	all, err := s.List(ctx, "", 0, 0)
	if err != nil || len(all) != 3 || all[0].Title != "Anathem" {
		t.Fatalf("List all: %+v, %v", all, err)
	}
	scifi, err := s.List(ctx, "sci-fi", 0, 0)
	if err != nil || len(scifi) != 2 {
		t.Fatalf("List genre: %+v, %v", scifi, err)
	}
	page2, err := s.List(ctx, "", 2, 2)
	if err != nil || len(page2) != 1 || page2[0].ID != emma.ID {
		t.Fatalf("List page: %+v, %v", page2, err)
	}

	same, err := s.Update(ctx, dune.ID, domain.BookPatch{})
	if err != nil || same.ID != dune.ID {
		t.Fatalf("empty patch: %+v, %v", same, err)
	}
	_, err = s.Update(ctx, dune.ID, domain.BookPatch{Title: ptr(" ")})
	wantKind(t, err, ErrValidation, "title is required")
	_, err = s.Update(ctx, domain.NewID(), domain.BookPatch{Pages: ptr(10)})
	wantKind(t, err, ErrNotFound, "Book not found")

	up, err := s.Update(ctx, dune.ID, domain.BookPatch{Genre: ptr("space opera"), Pages: ptr(412), PriceRent: ptr(49.5)})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if up.Genre != "Space Opera" || up.Pages != 412 || up.PriceRent != 49.5 || up.Title != "Dune" {
		t.Fatalf("updated: %+v", up)
	}
}

func TestBookDelete_CascadesReviews(t *testing.T) {
	st := newStore(t)
	s := NewBookService(st)
	reviews := NewReviewService(st, NewRatingService(st, nil, nil), nil)
	ctx := context.Background()

	b, _ := s.Create(ctx, NewBook{Title: "Dune", Author: "Herbert"})
	keep, _ := s.Create(ctx, NewBook{Title: "Emma", Author: "Austen"})
	for _, id := range []string{b.ID, keep.ID} {
		if _, err := reviews.Create(ctx, input(id, "u1", 4)); err != nil {
			t.Fatalf("review: %v", err)
		}
	}

	if err := s.Delete(ctx, b.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	wantKind(t, s.Delete(ctx, b.ID), ErrNotFound, "Book not found")
	left, _ := reviews.ListByBook(ctx, b.ID)
	if len(left) != 0 {
		t.Fatalf("reviews not cascaded: %+v", left)
	}
	kept, _ := reviews.ListByBook(ctx, keep.ID)
	if len(kept) != 1 {
		t.Fatalf("other book's reviews touched: %+v", kept)
	}
}

func TestBookSearch_TracksMutations(t *testing.T) {
	st := newStore(t)
	s := NewBookService(st)
	ctx := context.Background()

	if got, err := s.Search(ctx, "dune", 5); err != nil || len(got) != 0 {
		t.Fatalf("empty search: %+v, %v", got, err)
	}

	dune, _ := s.Create(ctx, NewBook{Title: "Dune", Author: "Frank Herbert", Genre: "science fiction", Description: "desert planet"})
	_, _ = s.Create(ctx, NewBook{Title: "Emma", Author: "Jane Austen", Genre: "romance"})

	got, err := s.Search(ctx, "desert planet herbert", 5)
	if err != nil || len(got) != 1 || got[0].ID != dune.ID {
		t.Fatalf("search: %+v, %v", got, err)
	}

	if _, err := s.Update(ctx, dune.ID, domain.BookPatch{Description: ptr("sand")}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got, _ := s.Search(ctx, "desert", 5); len(got) != 0 {
		t.Fatalf("index not rebuilt after update: %+v", got)
	}

	if err := s.Delete(ctx, dune.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := s.Search(ctx, "herbert", 5); len(got) != 0 {
		t.Fatalf("index not rebuilt after delete: %+v", got)
	}
}

func TestBookSeed(t *testing.T) {
	st := newStore(t)
	s := NewBookService(st)
	s.GenreLocale = language.English
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "catalog.md")
	md := `# Seed

| Title | Author | Genre | Pages | Price Buy | Stock | Published |
|---|---|---|---|---|---|---|
| Dune | Frank Herbert | science fiction | 412 | 350 | 3 | 1965 |
| Emma | Jane Austen | romance | n/a | | | 1815 |
| | Nobody | broken | | | | |
`
	if err := os.WriteFile(path, []byte(md), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	n, err := s.Seed(ctx, path)
	if err != nil || n != 2 {
		t.Fatalf("Seed: n=%d err=%v", n, err)
	}
	books, _ := s.List(ctx, "", 0, 0)
	if len(books) != 2 {
		t.Fatalf("want 2 books, got %d", len(books))
	}
	dune, emma := books[0], books[1]
	if dune.Pages != 412 || dune.PriceBuy != 350 || dune.Stock != 3 || dune.Genre != "Science Fiction" || dune.PublishedDate != "1965" {
		t.Fatalf("dune: %+v", dune)
	}
	if emma.Pages != 0 || emma.PriceBuy != domain.DefaultPriceBuy || emma.Stock != domain.DefaultStock {
		t.Fatalf("emma defaults: %+v", emma)
	}
	if got, _ := s.Search(ctx, "austen", 3); len(got) != 1 {
		t.Fatalf("seeded books not indexed: %+v", got)
	}

	// non-empty catalog: no-op
	n, err = s.Seed(ctx, path)
	if err != nil || n != 0 {
		t.Fatalf("second Seed: n=%d err=%v", n, err)
	}

	if _, err := NewBookService(newStoreNamed(t, "missing")).Seed(ctx, filepath.Join(t.TempDir(), "nope.md")); err == nil {
		t.Fatalf("expected error for missing seed file")
	}
}
