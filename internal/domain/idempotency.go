package domain

import "time"

// Idempotency records the outcome of a quick-rate request, keyed by
// (subject, book_id, key). A retried request with the same key is answered
// from Response instead of applying the rating a second time.
type Idempotency struct {
	ID        string    `json:"-" gorm:"type:TEXT NOT NULL;primaryKey"`
	Subject   string    `json:"-" gorm:"type:TEXT NOT NULL;uniqueIndex:ux_subject_book_key,priority:1"`
	BookID    string    `json:"-" gorm:"type:TEXT NOT NULL;uniqueIndex:ux_subject_book_key,priority:2"`
	Key       string    `json:"-" gorm:"type:TEXT NOT NULL;uniqueIndex:ux_subject_book_key,priority:3"`
	Status    int       `json:"-" gorm:"type:INTEGER NOT NULL"`
	Response  string    `json:"-" gorm:"type:TEXT NOT NULL"`
	CreatedAt time.Time `json:"-" gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `json:"-" gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }

// Expired reports whether the record is no longer replayable at now.
func (r Idempotency) Expired(now time.Time) bool { return !r.ExpiresAt.After(now) }
