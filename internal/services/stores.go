package services

import (
	"context"
	"time"

	"github.com/tbourn/go-library-backend/internal/domain"
)

// Store contracts. Both backends (internal/repo for GORM, internal/mongostore
// for MongoDB) implement every interface here. Lookups of unknown ids return
// domain.ErrNotFound; unique-index violations return domain.ErrDuplicate.

// BookStore persists books and their rating aggregate.
type BookStore interface {
	CreateBook(ctx context.Context, b *domain.Book) error
	GetBook(ctx context.Context, id string) (*domain.Book, error)
	ListBooks(ctx context.Context, f domain.BookFilter) ([]domain.Book, error)
	CountBooks(ctx context.Context) (int64, error)
	UpdateBook(ctx context.Context, id string, p domain.BookPatch) (*domain.Book, error)
	DeleteBook(ctx context.Context, id string) error
	AverageBookRating(ctx context.Context) (float64, error)

	// SetRating unconditionally overwrites the aggregate.
	SetRating(ctx context.Context, id string, agg domain.RatingAggregate) error
	// SwapRating writes next only if the stored aggregate still equals prev.
	// It reports false (and no error) when another writer got there first.
	SwapRating(ctx context.Context, id string, prev, next domain.RatingAggregate) (bool, error)
}

// ReviewStore persists reviews.
type ReviewStore interface {
	CreateReview(ctx context.Context, r *domain.Review) error
	GetReview(ctx context.Context, id string) (*domain.Review, error)
	FindReview(ctx context.Context, bookID, userID string) (*domain.Review, error)
	ListReviewsByBook(ctx context.Context, bookID string) ([]domain.Review, error)
	ListReviewsByUser(ctx context.Context, userID string) ([]domain.Review, error)
	UpdateReview(ctx context.Context, id string, p domain.ReviewPatch) (*domain.Review, error)
	DeleteReview(ctx context.Context, id string) error
	DeleteReviewsByBook(ctx context.Context, bookID string) (int64, error)
	// RatingsForBook returns every rating value recorded for bookID.
	RatingsForBook(ctx context.Context, bookID string) ([]int, error)
	// CountReviews counts reviews created at or after since (zero = all).
	CountReviews(ctx context.Context, since time.Time) (int64, error)
}

// UserStore persists users.
type UserStore interface {
	CreateUser(ctx context.Context, u *domain.User) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	UpdateUser(ctx context.Context, id string, p domain.UserPatch) (*domain.User, error)
	CountUsers(ctx context.Context, f domain.UserFilter) (int64, error)
}

// IdempotencyStore persists quick-rate replay records.
type IdempotencyStore interface {
	GetIdempotency(ctx context.Context, subject, bookID, key string, now time.Time) (*domain.Idempotency, error)
	CreateIdempotency(ctx context.Context, rec *domain.Idempotency) error
}

// Store bundles every contract a backend provides.
type Store interface {
	BookStore
	ReviewStore
	UserStore
	IdempotencyStore
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
