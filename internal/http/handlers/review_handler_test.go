package handlers

import (
	"net/http"
	"testing"

	"github.com/tbourn/go-library-backend/internal/domain"
)

func reviewBody(bookID, userID string, rating int) map[string]any {
	return map[string]any{
		"bookId":   bookID,
		"userId":   userID,
		"userName": "Reader " + userID,
		"rating":   rating,
		"comment":  "Worth reading.",
	}
}

func TestCreateReview_RecomputesBookRating(t *testing.T) {
	a := newTestApp(t)
	b := a.book("Dune")

	for i, r := range []int{4, 2, 5} {
		w := a.do(http.MethodPost, "/reviews", "", reviewBody(b.ID, string(rune('a'+i)), r))
		wantStatus(t, w, http.StatusCreated)
		got := decode[domain.Review](t, w)
		if got.ID == "" || got.BookID != b.ID || got.Rating != r {
			t.Fatalf("unexpected review: %+v", got)
		}
	}

	book := decode[domain.Book](t, a.do(http.MethodGet, "/books/"+b.ID, "", nil))
	if book.Rating != 3.7 || book.TotalRatings != 3 || book.RatingSource != domain.RatingSourceReviews {
		t.Fatalf("aggregate = %.2f/%d (%q), want 3.7/3 reviews", book.Rating, book.TotalRatings, book.RatingSource)
	}

	stats := decode[domain.RatingStats](t, a.do(http.MethodGet, "/reviews/"+b.ID+"/rating", "", nil))
	want := map[int]int{1: 0, 2: 1, 3: 0, 4: 1, 5: 1}
	if stats.AverageRating != 3.7 || stats.TotalReviews != 3 {
		t.Fatalf("stats = %+v", stats)
	}
	for k, v := range want {
		if stats.RatingDistribution[k] != v {
			t.Fatalf("distribution = %v, want %v", stats.RatingDistribution, want)
		}
	}
}

func TestCreateReview_Validation(t *testing.T) {
	a := newTestApp(t)
	b := a.book("Emma")

	missing := reviewBody(b.ID, "u1", 4)
	delete(missing, "userId")
	wantError(t, a.do(http.MethodPost, "/reviews", "", missing), http.StatusBadRequest, ErrCodeBadRequest, "userId is required")

	wantError(t, a.do(http.MethodPost, "/reviews", "", reviewBody(b.ID, "u1", 6)),
		http.StatusBadRequest, ErrCodeBadRequest, "Rating must be between 1 and 5")

	wantError(t, a.do(http.MethodPost, "/reviews", "", `{"rating":"five"}`),
		http.StatusBadRequest, ErrCodeBadRequest, "Rating must be a number")

	wantError(t, a.do(http.MethodPost, "/reviews", "", `{"rating":`),
		http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")

	low := reviewBody(b.ID, "u1", 0)
	low["rating"] = 0.5
	wantError(t, a.do(http.MethodPost, "/reviews", "", low),
		http.StatusBadRequest, ErrCodeBadRequest, "Rating must be between 1 and 5")

	zero := reviewBody(b.ID, "u1", 0)
	wantError(t, a.do(http.MethodPost, "/reviews", "", zero),
		http.StatusBadRequest, ErrCodeBadRequest, "rating is required")
}

func TestCreateReview_LenientRating(t *testing.T) {
	a := newTestApp(t)
	b := a.book("Persuasion")

	cases := []struct {
		user   string
		rating any
		want   int
	}{
		{"u1", "4", 4},
		{"u2", 4.0, 4},
		{"u3", 4.9, 4},
		{"u4", " 2 ", 2},
	}
	for _, tc := range cases {
		body := reviewBody(b.ID, tc.user, 0)
		body["rating"] = tc.rating
		w := a.do(http.MethodPost, "/reviews", "", body)
		wantStatus(t, w, http.StatusCreated)
		got := decode[domain.Review](t, w)
		if got.Rating != tc.want {
			t.Fatalf("rating %v stored as %d, want %d", tc.rating, got.Rating, tc.want)
		}
	}
}

func TestCreateReview_OrphanBookID(t *testing.T) {
	a := newTestApp(t)

	w := a.do(http.MethodPost, "/reviews", "", reviewBody("not-an-id", "u1", 3))
	wantStatus(t, w, http.StatusCreated)
	got := decode[domain.Review](t, w)
	if got.BookID != "not-an-id" {
		t.Fatalf("bookId = %q", got.BookID)
	}
}

func TestCreateReview_DuplicateIsConflict(t *testing.T) {
	a := newTestApp(t)
	b := a.book("Middlemarch")

	wantStatus(t, a.do(http.MethodPost, "/reviews", "", reviewBody(b.ID, "u1", 5)), http.StatusCreated)
	wantError(t, a.do(http.MethodPost, "/reviews", "", reviewBody(b.ID, "u1", 1)),
		http.StatusConflict, ErrCodeConflict, "You have already reviewed this book")
}

func TestListReviews_ETag(t *testing.T) {
	a := newTestApp(t)
	b := a.book("Ulysses")

	empty := a.do(http.MethodGet, "/reviews/"+b.ID, "", nil)
	wantStatus(t, empty, http.StatusOK)
	if empty.Body.String() != "[]" {
		t.Fatalf("empty list body = %s", empty.Body.String())
	}

	created := decode[domain.Review](t, a.do(http.MethodPost, "/reviews", "", reviewBody(b.ID, "u1", 3)))

	w := a.do(http.MethodGet, "/reviews/"+b.ID, "", nil)
	wantStatus(t, w, http.StatusOK)
	etag := w.Header().Get("ETag")
	if etag == "" || etag == empty.Header().Get("ETag") {
		t.Fatalf("etag should change after create: %q", etag)
	}
	if rs := decode[[]domain.Review](t, w); len(rs) != 1 {
		t.Fatalf("want 1 review, got %d", len(rs))
	}

	nm := a.do(http.MethodGet, "/reviews/"+b.ID, "", nil, "If-None-Match", etag)
	wantStatus(t, nm, http.StatusNotModified)
	if nm.Body.Len() != 0 {
		t.Fatalf("304 must have empty body")
	}

	// a comment-only edit still invalidates the validator
	wantStatus(t, a.do(http.MethodPut, "/reviews/"+created.ID, "", map[string]any{"comment": "Changed my mind."}), http.StatusOK)
	w = a.do(http.MethodGet, "/reviews/"+b.ID, "", nil, "If-None-Match", etag)
	wantStatus(t, w, http.StatusOK)
	if w.Header().Get("ETag") == etag {
		t.Fatalf("etag unchanged after update")
	}
}

func TestUpdateReview(t *testing.T) {
	a := newTestApp(t)
	b := a.book("Beloved")
	rev := decode[domain.Review](t, a.do(http.MethodPost, "/reviews", "", reviewBody(b.ID, "u1", 3)))

	w := a.do(http.MethodPut, "/reviews/"+rev.ID, "", map[string]any{"rating": 5})
	wantStatus(t, w, http.StatusOK)
	if got := decode[domain.Review](t, w); got.Rating != 5 || got.Comment != rev.Comment {
		t.Fatalf("updated = %+v", got)
	}
	book := decode[domain.Book](t, a.do(http.MethodGet, "/books/"+b.ID, "", nil))
	if book.Rating != 5 || book.TotalRatings != 1 {
		t.Fatalf("aggregate after update = %.1f/%d", book.Rating, book.TotalRatings)
	}

	wantError(t, a.do(http.MethodPut, "/reviews/"+rev.ID, "", map[string]any{}),
		http.StatusBadRequest, ErrCodeBadRequest, "No valid fields to update")
	wantError(t, a.do(http.MethodPut, "/reviews/"+rev.ID, "", map[string]any{"rating": 0}),
		http.StatusBadRequest, ErrCodeBadRequest, "Rating must be between 1 and 5")
	wantError(t, a.do(http.MethodPut, "/reviews/bogus", "", map[string]any{"rating": 2}),
		http.StatusBadRequest, ErrCodeBadRequest, "Invalid review id")
	wantError(t, a.do(http.MethodPut, "/reviews/"+domain.NewID(), "", map[string]any{"rating": 2}),
		http.StatusNotFound, ErrCodeNotFound, "Review not found")
}

func TestDeleteReview_ResetsAggregate(t *testing.T) {
	a := newTestApp(t)
	b := a.book("Persuasion")
	rev := decode[domain.Review](t, a.do(http.MethodPost, "/reviews", "", reviewBody(b.ID, "u1", 4)))

	w := a.do(http.MethodDelete, "/reviews/"+rev.ID, "", nil)
	wantStatus(t, w, http.StatusOK)
	if m := decode[MessageResponse](t, w); m.Message != "Review deleted successfully" {
		t.Fatalf("message = %q", m.Message)
	}

	book := decode[domain.Book](t, a.do(http.MethodGet, "/books/"+b.ID, "", nil))
	if book.Rating != 0 || book.TotalRatings != 0 || book.RatingSource != domain.RatingSourceNone {
		t.Fatalf("aggregate after delete = %+v", book.Aggregate())
	}

	wantError(t, a.do(http.MethodDelete, "/reviews/"+rev.ID, "", nil), http.StatusNotFound, ErrCodeNotFound, "Review not found")
}

func TestUserReviewLookups(t *testing.T) {
	a := newTestApp(t)
	b1 := a.book("Kindred")
	b2 := a.book("Parable of the Sower")

	w := a.do(http.MethodGet, "/reviews/"+b1.ID+"/user/u1", "", nil)
	wantStatus(t, w, http.StatusOK)
	if w.Body.String() != "null" {
		t.Fatalf("absent review should be null, got %s", w.Body.String())
	}

	wantStatus(t, a.do(http.MethodPost, "/reviews", "", reviewBody(b1.ID, "u1", 5)), http.StatusCreated)
	wantStatus(t, a.do(http.MethodPost, "/reviews", "", reviewBody(b2.ID, "u1", 4)), http.StatusCreated)
	wantStatus(t, a.do(http.MethodPost, "/reviews", "", reviewBody(b2.ID, "u2", 2)), http.StatusCreated)

	got := decode[domain.Review](t, a.do(http.MethodGet, "/reviews/"+b1.ID+"/user/u1", "", nil))
	if got.UserID != "u1" || got.Rating != 5 {
		t.Fatalf("user review = %+v", got)
	}

	mine := decode[[]domain.Review](t, a.do(http.MethodGet, "/reviews/user/u1", "", nil))
	if len(mine) != 2 {
		t.Fatalf("reviews by u1 = %d, want 2", len(mine))
	}
	for _, r := range mine {
		if r.UserID != "u1" {
			t.Fatalf("foreign review in list: %+v", r)
		}
	}
}
