// Package repo implements the relational persistence layer. This file
// provides the count queries behind the admin dashboard.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-library-backend/internal/domain"
)

// CountReviews counts reviews created at or after since. A zero since
// counts every review.
func CountReviews(ctx context.Context, db *gorm.DB, since time.Time) (int64, error) {
	q := db.WithContext(ctx).Model(&domain.Review{})
	if !since.IsZero() {
		q = q.Where("created_at >= ?", since)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

// CountUsers counts users matching f.
func CountUsers(ctx context.Context, db *gorm.DB, f domain.UserFilter) (int64, error) {
	q := db.WithContext(ctx).Model(&domain.User{})
	if f.Role != "" {
		q = q.Where("role = ?", f.Role)
	}
	if f.ExcludeRole != "" {
		q = q.Where("role <> ?", f.ExcludeRole)
	}
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}
