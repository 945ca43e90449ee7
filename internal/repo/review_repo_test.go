package repo

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/tbourn/go-library-backend/internal/domain"
)

func TestReviews_CreateDuplicateAndFind(t *testing.T) {
	s := NewStore(newTestDB(t, &domain.Review{}))
	ctx := context.Background()
	bookID := domain.NewID()

	r := &domain.Review{BookID: bookID, UserID: "u1", UserName: "Ann", Rating: 4, Comment: "good"}
	if err := s.CreateReview(ctx, r); err != nil {
		t.Fatalf("CreateReview: %v", err)
	}
	if r.ID == "" || r.CreatedAt.IsZero() {
		t.Fatalf("expected id and createdAt, got %+v", r)
	}

	dup := &domain.Review{BookID: bookID, UserID: "u1", UserName: "Ann", Rating: 2, Comment: "again"}
	if err := s.CreateReview(ctx, dup); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	got, err := s.FindReview(ctx, bookID, "u1")
	if err != nil || got.ID != r.ID {
		t.Fatalf("FindReview = %+v, %v", got, err)
	}
	if _, err := s.FindReview(ctx, bookID, "u2"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReviews_ListOrderingAndRatings(t *testing.T) {
	s := NewStore(newTestDB(t, &domain.Review{}))
	ctx := context.Background()
	bookID, other := domain.NewID(), domain.NewID()
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	seed := []domain.Review{
		{BookID: bookID, UserID: "u1", UserName: "a", Rating: 4, Comment: "x", CreatedAt: base},
		{BookID: bookID, UserID: "u2", UserName: "b", Rating: 2, Comment: "x", CreatedAt: base.Add(time.Hour)},
		{BookID: bookID, UserID: "u3", UserName: "c", Rating: 5, Comment: "x", CreatedAt: base.Add(2 * time.Hour)},
		{BookID: other, UserID: "u1", UserName: "a", Rating: 1, Comment: "x", CreatedAt: base.Add(3 * time.Hour)},
	}
	for i := range seed {
		if err := s.CreateReview(ctx, &seed[i]); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	list, err := s.ListReviewsByBook(ctx, bookID)
	if err != nil || len(list) != 3 {
		t.Fatalf("ListReviewsByBook = %d, %v", len(list), err)
	}
	if list[0].UserID != "u3" || list[2].UserID != "u1" {
		t.Fatalf("expected newest first, got %s..%s", list[0].UserID, list[2].UserID)
	}

	byUser, err := s.ListReviewsByUser(ctx, "u1")
	if err != nil || len(byUser) != 2 || byUser[0].BookID != other {
		t.Fatalf("ListReviewsByUser = %+v, %v", byUser, err)
	}

	none, err := s.ListReviewsByBook(ctx, domain.NewID())
	if err != nil || none == nil || len(none) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v, %v", none, err)
	}

	ratings, err := s.RatingsForBook(ctx, bookID)
	if err != nil {
		t.Fatalf("RatingsForBook: %v", err)
	}
	sort.Ints(ratings)
	if len(ratings) != 3 || ratings[0] != 2 || ratings[2] != 5 {
		t.Fatalf("RatingsForBook = %v", ratings)
	}

	n, err := s.DeleteReviewsByBook(ctx, bookID)
	if err != nil || n != 3 {
		t.Fatalf("DeleteReviewsByBook = %d, %v", n, err)
	}
	if left, _ := s.CountReviews(ctx, time.Time{}); left != 1 {
		t.Fatalf("expected 1 review left, got %d", left)
	}
}

func TestReviews_UpdateAndDelete(t *testing.T) {
	s := NewStore(newTestDB(t, &domain.Review{}))
	ctx := context.Background()

	r := &domain.Review{BookID: domain.NewID(), UserID: "u1", UserName: "Ann", Rating: 3, Comment: "meh"}
	if err := s.CreateReview(ctx, r); err != nil {
		t.Fatalf("CreateReview: %v", err)
	}

	rating, comment := 5, "  great  "
	up, err := s.UpdateReview(ctx, r.ID, domain.ReviewPatch{Rating: &rating, Comment: &comment})
	if err != nil || up.Rating != 5 || up.Comment != "great" {
		t.Fatalf("UpdateReview = %+v, %v", up, err)
	}
	if !up.CreatedAt.Equal(r.CreatedAt) {
		t.Fatalf("createdAt changed: %v -> %v", r.CreatedAt, up.CreatedAt)
	}
	if _, err := s.UpdateReview(ctx, domain.NewID(), domain.ReviewPatch{Rating: &rating}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.DeleteReview(ctx, r.ID); err != nil {
		t.Fatalf("DeleteReview: %v", err)
	}
	if _, err := s.GetReview(ctx, r.ID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteReview(ctx, r.ID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
