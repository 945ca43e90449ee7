package mongostore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/tbourn/go-library-backend/internal/domain"
)

// GetIdempotency returns a live record for the scope. Expired documents are
// removed by the TTL index eventually, so expiry is also checked here.
func (s *Store) GetIdempotency(ctx context.Context, subject, bookID, key string, now time.Time) (*domain.Idempotency, error) {
	if bookID == "" || key == "" {
		return nil, domain.ErrNotFound
	}
	filter := bson.M{
		"subject":   subject,
		"bookId":    bookID,
		"key":       key,
		"expiresAt": bson.M{"$gt": now},
	}
	var d idemDoc
	if err := s.idem.FindOne(ctx, filter).Decode(&d); err != nil {
		return nil, mapErr(err)
	}
	rec := d.record()
	return &rec, nil
}

func (s *Store) CreateIdempotency(ctx context.Context, rec *domain.Idempotency) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	stale := bson.M{
		"subject":   rec.Subject,
		"bookId":    rec.BookID,
		"key":       rec.Key,
		"expiresAt": bson.M{"$lte": rec.CreatedAt},
	}
	if _, err := s.idem.DeleteMany(ctx, stale); err != nil {
		return err
	}
	d := idemDoc{
		ID:        rec.ID,
		Subject:   rec.Subject,
		BookID:    rec.BookID,
		Key:       rec.Key,
		Status:    rec.Status,
		Response:  rec.Response,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
	}
	_, err := s.idem.InsertOne(ctx, d)
	return mapErr(err)
}
