// Package services – ReviewService
//
// ReviewService validates and persists reviews (at most one per book and
// user) and triggers a rating recompute of the affected book after every
// successful mutation. Recompute failures never fail the review operation.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tbourn/go-library-backend/internal/domain"
	"github.com/tbourn/go-library-backend/internal/events"
	"github.com/tbourn/go-library-backend/internal/observability"

	// OpenTelemetry
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Recomputer refreshes a book's rating aggregate from its reviews.
type Recomputer interface {
	Recompute(ctx context.Context, bookID string)
}

// NewReview is the input of ReviewService.Create. A zero Rating counts as
// missing.
type NewReview struct {
	BookID   string
	UserID   string
	UserName string
	Rating   int
	Comment  string
}

// ReviewService manages the review lifecycle.
type ReviewService struct {
	Reviews ReviewStore
	Ratings Recomputer
	Events  events.Publisher

	Now func() time.Time
}

// NewReviewService wires a ReviewService. A nil publisher discards events.
func NewReviewService(st ReviewStore, ratings Recomputer, pub events.Publisher) *ReviewService {
	if pub == nil {
		pub = events.Nop{}
	}
	return &ReviewService{
		Reviews: st,
		Ratings: ratings,
		Events:  pub,
		Now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create validates in, stores the review and recomputes the book rating.
func (s *ReviewService) Create(ctx context.Context, in NewReview) (*domain.Review, error) {
	tr := observability.Tracer("services/reviews")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("book.id", in.BookID),
			attribute.String("user.id", in.UserID),
		),
	)
	defer span.End()

	// bookId is stored as given: reviews may reference books that no longer exist.
	switch {
	case in.BookID == "":
		return nil, validationErr("bookId is required")
	case in.UserID == "":
		return nil, validationErr("userId is required")
	case in.UserName == "":
		return nil, validationErr("userName is required")
	case in.Rating == 0:
		return nil, validationErr("rating is required")
	case in.Comment == "":
		return nil, validationErr("comment is required")
	}
	if in.Rating < MinRating || in.Rating > MaxRating {
		return nil, validationErr("Rating must be between 1 and 5")
	}

	if _, err := s.Reviews.FindReview(ctx, in.BookID, in.UserID); err == nil {
		return nil, conflictErr("You have already reviewed this book")
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, storageErr("find review", err)
	}

	r := &domain.Review{
		BookID:    in.BookID,
		UserID:    in.UserID,
		UserName:  in.UserName,
		Rating:    in.Rating,
		Comment:   strings.TrimSpace(in.Comment),
		CreatedAt: s.now(),
	}
	if err := s.Reviews.CreateReview(ctx, r); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, conflictErr("You have already reviewed this book")
		}
		return nil, storageErr("create review", err)
	}
	reviewsTotal.WithLabelValues("create").Inc()

	s.afterChange(ctx, events.TopicReviewCreated, r)
	return r, nil
}

// Update applies a partial update to review id.
func (s *ReviewService) Update(ctx context.Context, id string, p domain.ReviewPatch) (*domain.Review, error) {
	tr := observability.Tracer("services/reviews")
	ctx, span := tr.Start(ctx, "Update",
		trace.WithAttributes(attribute.String("review.id", id)),
	)
	defer span.End()

	if !domain.IsValidID(id) {
		return nil, validationErr("Invalid review id")
	}
	if _, err := s.get(ctx, id); err != nil {
		return nil, err
	}
	if p.Empty() {
		return nil, validationErr("No valid fields to update")
	}
	if p.Rating != nil && (*p.Rating < MinRating || *p.Rating > MaxRating) {
		return nil, validationErr("Rating must be between 1 and 5")
	}
	if p.Comment != nil {
		c := strings.TrimSpace(*p.Comment)
		p.Comment = &c
	}

	r, err := s.Reviews.UpdateReview(ctx, id, p)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, notFoundErr("Review not found")
		}
		return nil, storageErr("update review", err)
	}
	reviewsTotal.WithLabelValues("update").Inc()

	s.afterChange(ctx, events.TopicReviewUpdated, r)
	return r, nil
}

// Delete removes review id and recomputes its book's rating.
func (s *ReviewService) Delete(ctx context.Context, id string) error {
	tr := observability.Tracer("services/reviews")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(attribute.String("review.id", id)),
	)
	defer span.End()

	if !domain.IsValidID(id) {
		return validationErr("Invalid review id")
	}
	r, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Reviews.DeleteReview(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return notFoundErr("Review not found")
		}
		return storageErr("delete review", err)
	}
	reviewsTotal.WithLabelValues("delete").Inc()

	s.afterChange(ctx, events.TopicReviewDeleted, r)
	return nil
}

// ListByBook returns the reviews of bookID, newest first.
func (s *ReviewService) ListByBook(ctx context.Context, bookID string) ([]domain.Review, error) {
	out, err := s.Reviews.ListReviewsByBook(ctx, bookID)
	if err != nil {
		return nil, storageErr("list reviews by book", err)
	}
	if out == nil {
		out = []domain.Review{}
	}
	return out, nil
}

// ListByUser returns the reviews written by userID, newest first.
func (s *ReviewService) ListByUser(ctx context.Context, userID string) ([]domain.Review, error) {
	out, err := s.Reviews.ListReviewsByUser(ctx, userID)
	if err != nil {
		return nil, storageErr("list reviews by user", err)
	}
	if out == nil {
		out = []domain.Review{}
	}
	return out, nil
}

// GetOne returns the review of userID for bookID, or nil when there is none.
func (s *ReviewService) GetOne(ctx context.Context, bookID, userID string) (*domain.Review, error) {
	r, err := s.Reviews.FindReview(ctx, bookID, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("find review", err)
	}
	return r, nil
}

// RatingStats summarizes the reviews of bookID. The distribution always has
// buckets 1..5; ratings outside that range are counted in the total only.
func (s *ReviewService) RatingStats(ctx context.Context, bookID string) (*domain.RatingStats, error) {
	ratings, err := s.Reviews.RatingsForBook(ctx, bookID)
	if err != nil {
		return nil, storageErr("ratings for book", err)
	}
	st := &domain.RatingStats{
		BookID:             bookID,
		TotalReviews:       len(ratings),
		RatingDistribution: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0},
	}
	if len(ratings) == 0 {
		return st, nil
	}
	sum := 0
	for _, r := range ratings {
		sum += r
		if r >= MinRating && r <= MaxRating {
			st.RatingDistribution[r]++
		}
	}
	st.AverageRating = round(float64(sum)/float64(len(ratings)), 1)
	return st, nil
}

func (s *ReviewService) get(ctx context.Context, id string) (*domain.Review, error) {
	r, err := s.Reviews.GetReview(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, notFoundErr("Review not found")
	}
	if err != nil {
		return nil, storageErr("get review", err)
	}
	return r, nil
}

// afterChange recomputes the book aggregate and announces the mutation. The
// review is already committed, so a caller that went away does not cancel it.
func (s *ReviewService) afterChange(ctx context.Context, topic string, r *domain.Review) {
	ctx = context.WithoutCancel(ctx)
	if s.Ratings != nil {
		s.Ratings.Recompute(ctx, r.BookID)
	}
	publish(ctx, s.Events, topic, r.ID, events.AggregateReview, events.ReviewChanged{
		ReviewID: r.ID,
		BookID:   r.BookID,
		UserID:   r.UserID,
		Rating:   r.Rating,
	})
}

func (s *ReviewService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
