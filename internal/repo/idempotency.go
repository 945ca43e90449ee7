// Package repo implements the relational persistence layer. This file
// provides repository helpers for the Idempotency model used to make
// quick-rate requests safe to retry.
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-library-backend/internal/domain"
)

// GetIdempotency returns a non-expired record for (subject, bookID, key) or
// ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, subject, bookID, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(bookID) == "" || strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("subject = ? AND book_id = ? AND key = ? AND expires_at > ?", subject, bookID, key, now).
		First(&rec).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

// CreateIdempotency inserts rec and returns ErrDuplicate on unique violation.
// An expired record under the same scope is replaced.
func CreateIdempotency(ctx context.Context, db *gorm.DB, rec *domain.Idempotency) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("subject = ? AND book_id = ? AND key = ? AND expires_at <= ?",
			rec.Subject, rec.BookID, rec.Key, rec.CreatedAt).
			Delete(&domain.Idempotency{}).Error; err != nil {
			return err
		}
		if err := tx.Create(rec).Error; err != nil {
			if isDuplicate(err) {
				return ErrDuplicate
			}
			return err
		}
		return nil
	})
}
