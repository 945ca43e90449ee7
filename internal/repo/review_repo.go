// Package repo implements the relational persistence layer. This file
// provides repository functions for the Review model.
package repo

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-library-backend/internal/domain"
)

// CreateReview inserts r. A second review for the same (book, user) pair
// fails with ErrDuplicate.
func CreateReview(ctx context.Context, db *gorm.DB, r *domain.Review) error {
	if r.ID == "" {
		r.ID = domain.NewID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetReview returns the review with id or ErrNotFound.
func GetReview(ctx context.Context, db *gorm.DB, id string) (*domain.Review, error) {
	var r domain.Review
	if err := db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// FindReview returns the review userID wrote for bookID, or ErrNotFound.
func FindReview(ctx context.Context, db *gorm.DB, bookID, userID string) (*domain.Review, error) {
	var r domain.Review
	err := db.WithContext(ctx).
		Where("book_id = ? AND user_id = ?", bookID, userID).
		First(&r).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// ListReviewsByBook returns the reviews of bookID, newest first.
func ListReviewsByBook(ctx context.Context, db *gorm.DB, bookID string) ([]domain.Review, error) {
	return listReviews(ctx, db, "book_id = ?", bookID)
}

// ListReviewsByUser returns the reviews written by userID, newest first.
func ListReviewsByUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.Review, error) {
	return listReviews(ctx, db, "user_id = ?", userID)
}

func listReviews(ctx context.Context, db *gorm.DB, cond string, arg string) ([]domain.Review, error) {
	out := []domain.Review{}
	err := db.WithContext(ctx).
		Where(cond, arg).
		Order("created_at DESC").Order("id DESC").
		Find(&out).Error
	return out, err
}

// UpdateReview applies the non-nil fields of p. The comment is trimmed.
func UpdateReview(ctx context.Context, db *gorm.DB, id string, p domain.ReviewPatch) (*domain.Review, error) {
	cols := map[string]any{}
	if p.Rating != nil {
		cols["rating"] = *p.Rating
	}
	if p.Comment != nil {
		cols["comment"] = strings.TrimSpace(*p.Comment)
	}
	if len(cols) == 0 {
		return GetReview(ctx, db, id)
	}
	res := db.WithContext(ctx).Model(&domain.Review{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return GetReview(ctx, db, id)
}

// DeleteReview removes the review with id.
func DeleteReview(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Review{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteReviewsByBook removes every review of bookID and returns how many.
func DeleteReviewsByBook(ctx context.Context, db *gorm.DB, bookID string) (int64, error) {
	res := db.WithContext(ctx).Where("book_id = ?", bookID).Delete(&domain.Review{})
	return res.RowsAffected, res.Error
}

// RatingsForBook returns the rating of every review of bookID.
func RatingsForBook(ctx context.Context, db *gorm.DB, bookID string) ([]int, error) {
	out := []int{}
	err := db.WithContext(ctx).Model(&domain.Review{}).
		Where("book_id = ?", bookID).
		Pluck("rating", &out).Error
	return out, err
}
