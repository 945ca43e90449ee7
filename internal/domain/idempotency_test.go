package domain

import (
	"testing"
	"time"
)

func TestIdempotency_UniqueScope_AndReadback(t *testing.T) {
	db := newTestDB(t)
	if err := db.AutoMigrate(&Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	now := time.Now().UTC()
	rec := &Idempotency{
		ID:        "id-1",
		Subject:   "u1",
		BookID:    "b1",
		Key:       "k1",
		Status:    200,
		Response:  `{"rating":4}`,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	if err := db.Create(rec).Error; err != nil {
		t.Fatalf("insert: %v", err)
	}

	var got Idempotency
	if err := db.First(&got, "id = ?", "id-1").Error; err != nil {
		t.Fatalf("readback: %v", err)
	}
	if got.Subject != "u1" || got.BookID != "b1" || got.Key != "k1" || got.Status != 200 || got.Response != `{"rating":4}` {
		t.Fatalf("unexpected row: %+v", got)
	}

	// Same (subject, book, key) must be rejected.
	again := *rec
	again.ID = "id-2"
	if err := db.Create(&again).Error; err == nil {
		t.Fatalf("expected unique violation on (subject, book_id, key)")
	}

	// Different key is fine.
	other := *rec
	other.ID = "id-3"
	other.Key = "k2"
	if err := db.Create(&other).Error; err != nil {
		t.Fatalf("insert other key: %v", err)
	}
}

func TestIdempotency_Expired(t *testing.T) {
	now := time.Now()
	if (Idempotency{ExpiresAt: now.Add(time.Minute)}).Expired(now) {
		t.Fatalf("future expiry should not be expired")
	}
	if !(Idempotency{ExpiresAt: now}).Expired(now) {
		t.Fatalf("expiry equal to now should be expired")
	}
}
