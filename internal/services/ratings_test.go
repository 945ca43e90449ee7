package services

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/go-library-backend/internal/domain"
	"github.com/tbourn/go-library-backend/internal/events"
	"github.com/tbourn/go-library-backend/internal/lock"
)

func TestRound_HalfAwayFromZero(t *testing.T) {
	cases := []struct {
		in     float64
		places int32
		want   float64
	}{
		{2.25, 1, 2.3},
		{3.665, 2, 3.67},
		{0.05, 1, 0.1},
		{11.0 / 3.0, 1, 3.7},
		{-2.25, 1, -2.3},
		{4, 2, 4},
	}
	for _, c := range cases {
		if got := round(c.in, c.places); got != c.want {
			t.Errorf("round(%v, %d) = %v; want %v", c.in, c.places, got, c.want)
		}
	}
}

func TestAggregate(t *testing.T) {
	if got := aggregate(nil); got != (domain.RatingAggregate{}) {
		t.Fatalf("empty aggregate: %+v", got)
	}
	got := aggregate([]int{4, 2, 5})
	want := domain.RatingAggregate{Rating: 3.7, TotalRatings: 3, Source: domain.RatingSourceReviews}
	if got != want {
		t.Fatalf("aggregate = %+v; want %+v", got, want)
	}
}

func TestNewRatingService_Defaults(t *testing.T) {
	s := NewRatingService(newStore(t), nil, nil)
	if s.CASRetries != DefaultCASRetries || s.IdempotencyTTL != DefaultIdempotencyTTL {
		t.Fatalf("defaults not applied: %+v", s)
	}
	if _, ok := s.Locker.(*lock.Local); !ok {
		t.Fatalf("expected local locker, got %T", s.Locker)
	}
	if _, ok := s.Events.(events.Nop); !ok {
		t.Fatalf("expected nop publisher, got %T", s.Events)
	}
}

func TestQuickRate_RunningAverage(t *testing.T) {
	st := newStore(t)
	pub := &recPublisher{}
	s := NewRatingService(st, nil, pub)
	b := seedBook(t, st, "Dune")
	ctx := context.Background()

	got, err := s.QuickRate(ctx, b.ID, 4)
	if err != nil {
		t.Fatalf("QuickRate: %v", err)
	}
	if got.Rating != 4 || got.TotalRatings != 1 || got.RatingSource != domain.RatingSourceQuick {
		t.Fatalf("after first rate: %+v", got.Aggregate())
	}

	got, err = s.QuickRate(ctx, b.ID, 2)
	if err != nil {
		t.Fatalf("QuickRate: %v", err)
	}
	if got.Rating != 3 || got.TotalRatings != 2 {
		t.Fatalf("after second rate: %+v", got.Aggregate())
	}

	got, err = s.QuickRate(ctx, b.ID, 4.5)
	if err != nil {
		t.Fatalf("QuickRate: %v", err)
	}
	// (3*2 + 4.5) / 3 = 3.5
	if got.Rating != 3.5 || got.TotalRatings != 3 {
		t.Fatalf("after third rate: %+v", got.Aggregate())
	}

	stored := mustBook(t, st, b.ID)
	if stored.Aggregate() != got.Aggregate() {
		t.Fatalf("stored %+v != returned %+v", stored.Aggregate(), got.Aggregate())
	}
	if n := len(pub.seen()); n != 3 {
		t.Fatalf("want 3 rating events, got %d", n)
	}
	if n, _ := st.CountReviews(ctx, time.Time{}); n != 0 {
		t.Fatalf("quick rate must not create reviews, got %d", n)
	}
}

func TestQuickRate_RoundsToTwoDecimals(t *testing.T) {
	st := newStore(t)
	s := NewRatingService(st, nil, nil)
	b := seedBook(t, st, "Emma")
	ctx := context.Background()

	for _, v := range []float64{5, 4, 4} {
		if _, err := s.QuickRate(ctx, b.ID, v); err != nil {
			t.Fatalf("QuickRate(%v): %v", v, err)
		}
	}
	// (5+4+4)/3 = 4.333...
	if got := mustBook(t, st, b.ID).Rating; got != 4.33 {
		t.Fatalf("want 4.33, got %v", got)
	}
}

func TestQuickRate_Validation(t *testing.T) {
	st := newStore(t)
	s := NewRatingService(st, nil, nil)
	b := seedBook(t, st, "Emma")
	ctx := context.Background()

	_, err := s.QuickRate(ctx, "nope", 3)
	wantKind(t, err, ErrValidation, "Invalid book id")

	_, err = s.QuickRate(ctx, b.ID, math.NaN())
	wantKind(t, err, ErrValidation, "Rating must be a number")

	for _, v := range []float64{0, 0.99, 5.01, -3} {
		_, err = s.QuickRate(ctx, b.ID, v)
		wantKind(t, err, ErrValidation, "Rating must be between 1 and 5")
	}

	_, err = s.QuickRate(ctx, domain.NewID(), 3)
	wantKind(t, err, ErrNotFound, "Book not found")
}

func TestQuickRate_FoldsIntoReviewAggregate(t *testing.T) {
	st := newStore(t)
	s := NewRatingService(st, nil, nil)
	b := seedBook(t, st, "Emma")
	ctx := context.Background()

	if err := st.SetRating(ctx, b.ID, domain.RatingAggregate{Rating: 4, TotalRatings: 1, Source: domain.RatingSourceReviews}); err != nil {
		t.Fatalf("SetRating: %v", err)
	}
	got, err := s.QuickRate(ctx, b.ID, 2)
	if err != nil {
		t.Fatalf("QuickRate: %v", err)
	}
	if got.Rating != 3 || got.TotalRatings != 2 || got.RatingSource != domain.RatingSourceQuick {
		t.Fatalf("returned aggregate = %+v", got.Aggregate())
	}
	if stored := mustBook(t, st, b.ID); stored.Rating != 3 || stored.TotalRatings != 2 {
		t.Fatalf("stored aggregate = %+v", stored.Aggregate())
	}
}

func TestQuickRate_ConcurrentNoLostUpdates(t *testing.T) {
	const n = 8
	st := newStore(t)
	s := NewRatingService(st, nil, nil)
	// every failed swap means another caller succeeded, so n attempts suffice
	s.CASRetries = n
	b := seedBook(t, st, "Dune")

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.QuickRate(context.Background(), b.ID, 4); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("QuickRate: %v", err)
	}

	got := mustBook(t, st, b.ID)
	if got.TotalRatings != n || got.Rating != 4 {
		t.Fatalf("want %d ratings averaging 4, got %+v", n, got.Aggregate())
	}
}

func TestRecompute_FromReviews(t *testing.T) {
	st := newStore(t)
	pub := &recPublisher{}
	s := NewRatingService(st, nil, pub)
	b := seedBook(t, st, "Dune")
	ctx := context.Background()

	for i, r := range []int{4, 2, 5} {
		rv := &domain.Review{BookID: b.ID, UserID: string(rune('a' + i)), UserName: "u", Rating: r, Comment: "c"}
		if err := st.CreateReview(ctx, rv); err != nil {
			t.Fatalf("CreateReview: %v", err)
		}
	}

	agg, err := s.recompute(ctx, b.ID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	want := domain.RatingAggregate{Rating: 3.7, TotalRatings: 3, Source: domain.RatingSourceReviews}
	if agg != want || mustBook(t, st, b.ID).Aggregate() != want {
		t.Fatalf("want %+v, got %+v", want, agg)
	}

	// idempotent
	s.Recompute(ctx, b.ID)
	if got := mustBook(t, st, b.ID).Aggregate(); got != want {
		t.Fatalf("second recompute changed aggregate: %+v", got)
	}

	if _, err := st.DeleteReviewsByBook(ctx, b.ID); err != nil {
		t.Fatalf("DeleteReviewsByBook: %v", err)
	}
	s.Recompute(ctx, b.ID)
	if got := mustBook(t, st, b.ID).Aggregate(); got != (domain.RatingAggregate{}) {
		t.Fatalf("want reset aggregate, got %+v", got)
	}

	topics := pub.seen()
	if len(topics) != 3 || topics[0] != events.TopicBookRatingUpdated {
		t.Fatalf("unexpected events: %v", topics)
	}
	var payload events.RatingUpdated
	if err := json.Unmarshal(pub.events[0].Data, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.BookID != b.ID || payload.TotalRatings != 3 || payload.RatingSource != domain.RatingSourceReviews {
		t.Fatalf("payload: %+v", payload)
	}
}

func TestRecompute_MissingBookIsSwallowed(t *testing.T) {
	st := newStore(t)
	pub := &recPublisher{}
	s := NewRatingService(st, nil, pub)
	id := domain.NewID()

	if _, err := s.recompute(context.Background(), id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	s.Recompute(context.Background(), id) // must not panic
	if len(pub.seen()) != 0 {
		t.Fatalf("no event expected when nothing was written")
	}
}

func TestRecompute_RunsWithoutLock(t *testing.T) {
	st := newStore(t)
	s := NewRatingService(st, failLocker{}, nil)
	b := seedBook(t, st, "Dune")
	ctx := context.Background()

	if err := st.CreateReview(ctx, &domain.Review{BookID: b.ID, UserID: "u1", UserName: "u", Rating: 5, Comment: "c"}); err != nil {
		t.Fatalf("CreateReview: %v", err)
	}
	s.Recompute(ctx, b.ID)
	if got := mustBook(t, st, b.ID); got.Rating != 5 || got.TotalRatings != 1 {
		t.Fatalf("recompute without lock did not write: %+v", got.Aggregate())
	}
}

func TestQuickRateOnce_ReplaysSameKey(t *testing.T) {
	st := newStore(t)
	s := NewRatingService(st, nil, nil)
	b := seedBook(t, st, "Dune")
	ctx := context.Background()

	first, replayed, err := s.QuickRateOnce(ctx, "u1", b.ID, "key-1", 4)
	if err != nil || replayed {
		t.Fatalf("first call: replayed=%v err=%v", replayed, err)
	}
	again, replayed, err := s.QuickRateOnce(ctx, "u1", b.ID, "key-1", 2)
	if err != nil || !replayed {
		t.Fatalf("second call: replayed=%v err=%v", replayed, err)
	}
	if string(first) != string(again) {
		t.Fatalf("replayed body differs:\n%s\n%s", first, again)
	}
	if got := mustBook(t, st, b.ID); got.TotalRatings != 1 {
		t.Fatalf("replay re-applied the rate: %+v", got.Aggregate())
	}

	// another subject with the same key is independent
	if _, replayed, err := s.QuickRateOnce(ctx, "u2", b.ID, "key-1", 2); err != nil || replayed {
		t.Fatalf("other subject: replayed=%v err=%v", replayed, err)
	}
	// no key never dedupes
	if _, replayed, err := s.QuickRateOnce(ctx, "u1", b.ID, "", 3); err != nil || replayed {
		t.Fatalf("no key: replayed=%v err=%v", replayed, err)
	}
	got := mustBook(t, st, b.ID)
	if got.TotalRatings != 3 || got.Rating != 3 {
		t.Fatalf("want 3 ratings averaging 3, got %+v", got.Aggregate())
	}

	var body domain.Book
	if err := json.Unmarshal(first, &body); err != nil || body.ID != b.ID || body.TotalRatings != 1 {
		t.Fatalf("stored body: %s (%v)", first, err)
	}
}

func TestQuickRateOnce_ExpiredKeyApplies(t *testing.T) {
	st := newStore(t)
	s := NewRatingService(st, nil, nil)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return now }
	s.IdempotencyTTL = time.Minute
	b := seedBook(t, st, "Dune")
	ctx := context.Background()

	if _, _, err := s.QuickRateOnce(ctx, "u1", b.ID, "k", 4); err != nil {
		t.Fatalf("first: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, replayed, err := s.QuickRateOnce(ctx, "u1", b.ID, "k", 2); err != nil || replayed {
		t.Fatalf("after expiry: replayed=%v err=%v", replayed, err)
	}
	if got := mustBook(t, st, b.ID); got.TotalRatings != 2 {
		t.Fatalf("want 2 ratings, got %+v", got.Aggregate())
	}
}

func TestQuickRateOnce_ErrorsAreNotStored(t *testing.T) {
	st := newStore(t)
	s := NewRatingService(st, nil, nil)
	b := seedBook(t, st, "Dune")
	ctx := context.Background()

	_, _, err := s.QuickRateOnce(ctx, "u1", b.ID, "k", 9)
	wantKind(t, err, ErrValidation, "")
	if _, replayed, err := s.QuickRateOnce(ctx, "u1", b.ID, "k", 4); err != nil || replayed {
		t.Fatalf("retry after failure: replayed=%v err=%v", replayed, err)
	}
}
