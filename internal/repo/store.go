package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-library-backend/internal/domain"
)

// Store adapts the package functions to the services store contracts.
type Store struct {
	DB *gorm.DB
}

// NewStore wraps db.
func NewStore(db *gorm.DB) *Store { return &Store{DB: db} }

func (s *Store) CreateBook(ctx context.Context, b *domain.Book) error {
	return CreateBook(ctx, s.DB, b)
}

func (s *Store) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	return GetBook(ctx, s.DB, id)
}

func (s *Store) ListBooks(ctx context.Context, f domain.BookFilter) ([]domain.Book, error) {
	return ListBooks(ctx, s.DB, f)
}

func (s *Store) CountBooks(ctx context.Context) (int64, error) { return CountBooks(ctx, s.DB) }

func (s *Store) UpdateBook(ctx context.Context, id string, p domain.BookPatch) (*domain.Book, error) {
	return UpdateBook(ctx, s.DB, id, p)
}

func (s *Store) DeleteBook(ctx context.Context, id string) error { return DeleteBook(ctx, s.DB, id) }

func (s *Store) AverageBookRating(ctx context.Context) (float64, error) {
	return AverageBookRating(ctx, s.DB)
}

func (s *Store) SetRating(ctx context.Context, id string, agg domain.RatingAggregate) error {
	return SetRating(ctx, s.DB, id, agg)
}

func (s *Store) SwapRating(ctx context.Context, id string, prev, next domain.RatingAggregate) (bool, error) {
	return SwapRating(ctx, s.DB, id, prev, next)
}

func (s *Store) CreateReview(ctx context.Context, r *domain.Review) error {
	return CreateReview(ctx, s.DB, r)
}

func (s *Store) GetReview(ctx context.Context, id string) (*domain.Review, error) {
	return GetReview(ctx, s.DB, id)
}

func (s *Store) FindReview(ctx context.Context, bookID, userID string) (*domain.Review, error) {
	return FindReview(ctx, s.DB, bookID, userID)
}

func (s *Store) ListReviewsByBook(ctx context.Context, bookID string) ([]domain.Review, error) {
	return ListReviewsByBook(ctx, s.DB, bookID)
}

func (s *Store) ListReviewsByUser(ctx context.Context, userID string) ([]domain.Review, error) {
	return ListReviewsByUser(ctx, s.DB, userID)
}

func (s *Store) UpdateReview(ctx context.Context, id string, p domain.ReviewPatch) (*domain.Review, error) {
	return UpdateReview(ctx, s.DB, id, p)
}

func (s *Store) DeleteReview(ctx context.Context, id string) error {
	return DeleteReview(ctx, s.DB, id)
}

func (s *Store) DeleteReviewsByBook(ctx context.Context, bookID string) (int64, error) {
	return DeleteReviewsByBook(ctx, s.DB, bookID)
}

func (s *Store) RatingsForBook(ctx context.Context, bookID string) ([]int, error) {
	return RatingsForBook(ctx, s.DB, bookID)
}

func (s *Store) CountReviews(ctx context.Context, since time.Time) (int64, error) {
	return CountReviews(ctx, s.DB, since)
}

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	return CreateUser(ctx, s.DB, u)
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return GetUser(ctx, s.DB, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return GetUserByEmail(ctx, s.DB, email)
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) { return ListUsers(ctx, s.DB) }

func (s *Store) UpdateUser(ctx context.Context, id string, p domain.UserPatch) (*domain.User, error) {
	return UpdateUser(ctx, s.DB, id, p)
}

func (s *Store) CountUsers(ctx context.Context, f domain.UserFilter) (int64, error) {
	return CountUsers(ctx, s.DB, f)
}

func (s *Store) GetIdempotency(ctx context.Context, subject, bookID, key string, now time.Time) (*domain.Idempotency, error) {
	return GetIdempotency(ctx, s.DB, subject, bookID, key, now)
}

func (s *Store) CreateIdempotency(ctx context.Context, rec *domain.Idempotency) error {
	return CreateIdempotency(ctx, s.DB, rec)
}

// Ping checks the underlying connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close(context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
