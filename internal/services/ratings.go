// Package services – RatingService
//
// RatingService owns the denormalized (rating, totalRatings) pair stored on
// each book. Two paths write it:
//
//   - Recompute derives the aggregate from every review of the book. It runs
//     after each review mutation under a per-book lock and never fails the
//     caller.
//   - QuickRate folds a single anonymous value into the running average with
//     a compare-and-swap retried on contention.
//
// The book's ratingSource records which path wrote the aggregate last. Both
// paths may touch the same book: a quick rate folds into a review-derived
// value and the next Recompute replaces it.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-library-backend/internal/domain"
	"github.com/tbourn/go-library-backend/internal/events"
	"github.com/tbourn/go-library-backend/internal/lock"
	"github.com/tbourn/go-library-backend/internal/observability"

	// OpenTelemetry
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Rating service defaults.
const (
	DefaultCASRetries     = 5
	DefaultIdempotencyTTL = 24 * time.Hour
	MinRating             = 1
	MaxRating             = 5
)

// RatingService maintains book rating aggregates.
type RatingService struct {
	Books   BookStore
	Reviews ReviewStore
	Idem    IdempotencyStore
	Locker  lock.Locker
	Events  events.Publisher

	// CASRetries bounds QuickRate compare-and-swap attempts.
	CASRetries int
	// IdempotencyTTL is how long a keyed quick-rate response is replayable.
	IdempotencyTTL time.Duration

	Now func() time.Time
}

// NewRatingService wires a RatingService over st. A nil locker falls back to
// an in-process lock and a nil publisher discards events.
func NewRatingService(st Store, l lock.Locker, pub events.Publisher) *RatingService {
	if l == nil {
		l = lock.NewLocal()
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &RatingService{
		Books:          st,
		Reviews:        st,
		Idem:           st,
		Locker:         l,
		Events:         pub,
		CASRetries:     DefaultCASRetries,
		IdempotencyTTL: DefaultIdempotencyTTL,
		Now:            func() time.Time { return time.Now().UTC() },
	}
}

// Recompute rewrites the aggregate of bookID from its reviews: 0/0 with no
// reviews, otherwise the mean rounded to one decimal and the review count.
// Errors are logged and swallowed.
func (s *RatingService) Recompute(ctx context.Context, bookID string) {
	if _, err := s.recompute(ctx, bookID); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("book_id", bookID).Msg("recompute book rating")
	}
}

func (s *RatingService) recompute(ctx context.Context, bookID string) (domain.RatingAggregate, error) {
	tr := observability.Tracer("services/ratings")
	ctx, span := tr.Start(ctx, "Recompute",
		trace.WithAttributes(attribute.String("book.id", bookID)),
	)
	defer span.End()

	if s.Locker != nil {
		unlock, err := s.Locker.Lock(ctx, "rating:"+bookID)
		if err != nil {
			// last writer wins rather than dropping the update
			zerolog.Ctx(ctx).Warn().Err(err).Str("book_id", bookID).Msg("rating lock not acquired")
		} else {
			defer unlock()
		}
	}

	ratings, err := s.Reviews.RatingsForBook(ctx, bookID)
	if err != nil {
		recomputeTotal.WithLabelValues("error").Inc()
		span.SetStatus(codes.Error, "ratings")
		return domain.RatingAggregate{}, err
	}
	agg := aggregate(ratings)
	span.SetAttributes(attribute.Int("rating.count", agg.TotalRatings))

	if err := s.Books.SetRating(ctx, bookID, agg); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			recomputeTotal.WithLabelValues("missing_book").Inc()
		} else {
			recomputeTotal.WithLabelValues("error").Inc()
		}
		span.SetStatus(codes.Error, "set rating")
		return agg, err
	}
	recomputeTotal.WithLabelValues("ok").Inc()
	s.publishRating(ctx, bookID, agg)
	return agg, nil
}

// aggregate derives the review-owned aggregate of a rating set.
func aggregate(ratings []int) domain.RatingAggregate {
	if len(ratings) == 0 {
		return domain.RatingAggregate{Source: domain.RatingSourceNone}
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	return domain.RatingAggregate{
		Rating:       round(float64(sum)/float64(len(ratings)), 1),
		TotalRatings: len(ratings),
		Source:       domain.RatingSourceReviews,
	}
}

// QuickRate folds value into the running average of bookID:
// newAvg = round((cur*cnt + value) / (cnt+1), 2). No review is created.
func (s *RatingService) QuickRate(ctx context.Context, bookID string, value float64) (*domain.Book, error) {
	tr := observability.Tracer("services/ratings")
	ctx, span := tr.Start(ctx, "QuickRate",
		trace.WithAttributes(
			attribute.String("book.id", bookID),
			attribute.Float64("rating.value", value),
		),
	)
	defer span.End()

	if !domain.IsValidID(bookID) {
		return nil, validationErr("Invalid book id")
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, validationErr("Rating must be a number")
	}
	if value < MinRating || value > MaxRating {
		return nil, validationErr("Rating must be between 1 and 5")
	}

	attempts := s.CASRetries
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		b, err := s.Books.GetBook(ctx, bookID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, notFoundErr("Book not found")
			}
			quickRateTotal.WithLabelValues("error").Inc()
			return nil, storageErr("get book", err)
		}
		prev := b.Aggregate()
		next := domain.RatingAggregate{
			Rating:       round((prev.Rating*float64(prev.TotalRatings)+value)/float64(prev.TotalRatings+1), 2),
			TotalRatings: prev.TotalRatings + 1,
			Source:       domain.RatingSourceQuick,
		}
		ok, err := s.Books.SwapRating(ctx, bookID, prev, next)
		if err != nil {
			quickRateTotal.WithLabelValues("error").Inc()
			return nil, storageErr("swap rating", err)
		}
		if !ok {
			span.AddEvent("cas retry", trace.WithAttributes(attribute.Int("attempt", i+1)))
			continue
		}

		b.Rating, b.TotalRatings, b.RatingSource = next.Rating, next.TotalRatings, next.Source
		quickRateTotal.WithLabelValues("ok").Inc()
		s.publishRating(ctx, bookID, next)
		return b, nil
	}

	quickRateTotal.WithLabelValues("conflict").Inc()
	span.SetStatus(codes.Error, "cas retries exhausted")
	return nil, conflictErr("Rating changed concurrently, please retry")
}

// QuickRateOnce applies QuickRate at most once per (subject, bookID, key)
// within IdempotencyTTL and returns the JSON response body. A repeated call
// returns the stored body with replayed=true. An empty key disables
// deduplication.
func (s *RatingService) QuickRateOnce(ctx context.Context, subject, bookID, key string, value float64) (body []byte, replayed bool, err error) {
	if key == "" || s.Idem == nil {
		b, err := s.QuickRate(ctx, bookID, value)
		if err != nil {
			return nil, false, err
		}
		body, err = json.Marshal(b)
		return body, false, err
	}

	if s.Locker != nil {
		unlock, lerr := s.Locker.Lock(ctx, "idem:"+subject+":"+bookID+":"+key)
		if lerr != nil {
			return nil, false, conflictErr("Request with this Idempotency-Key is in progress")
		}
		defer unlock()
	}

	now := s.now()
	rec, err := s.Idem.GetIdempotency(ctx, subject, bookID, key, now)
	switch {
	case err == nil:
		quickRateTotal.WithLabelValues("replay").Inc()
		return []byte(rec.Response), true, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, false, storageErr("get idempotency", err)
	}

	b, err := s.QuickRate(ctx, bookID, value)
	if err != nil {
		return nil, false, err
	}
	body, err = json.Marshal(b)
	if err != nil {
		return nil, false, err
	}

	ttl := s.IdempotencyTTL
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	if err := s.Idem.CreateIdempotency(ctx, &domain.Idempotency{
		Subject:   subject,
		BookID:    bookID,
		Key:       key,
		Status:    200,
		Response:  string(body),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}); err != nil {
		// the rate is applied; only replay protection is lost
		zerolog.Ctx(ctx).Warn().Err(err).Str("book_id", bookID).Msg("store idempotency record")
	}
	return body, false, nil
}

func (s *RatingService) publishRating(ctx context.Context, bookID string, agg domain.RatingAggregate) {
	publish(ctx, s.Events, events.TopicBookRatingUpdated, bookID, events.AggregateBook, events.RatingUpdated{
		BookID:       bookID,
		Rating:       agg.Rating,
		TotalRatings: agg.TotalRatings,
		RatingSource: agg.Source,
	})
}

func (s *RatingService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
