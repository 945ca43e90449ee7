// Package events publishes domain events (review and rating changes) to
// Kafka using a JSON envelope shared by every topic.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Topics, relative to the configured prefix.
const (
	TopicReviewCreated     = "review.created"
	TopicReviewUpdated     = "review.updated"
	TopicReviewDeleted     = "review.deleted"
	TopicBookRatingUpdated = "book.rating.updated"
	AggregateReview        = "review"
	AggregateBook          = "book"
	Source                 = "library-backend"
)

// Event is the envelope written to every topic.
type Event struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Version       int             `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	Source        string          `json:"source"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Data          json.RawMessage `json:"data"`
}

// New builds an event with a fresh id and the current time.
func New(eventType, aggregateID, aggregateType string, data any) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       1,
		Timestamp:     time.Now().UTC(),
		Source:        Source,
		Data:          raw,
	}, nil
}

// WithCorrelationID sets the correlation ID and returns e.
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

// Marshal serializes the envelope.
func (e *Event) Marshal() ([]byte, error) { return json.Marshal(e) }

// ReviewChanged is the payload of the review.* topics.
type ReviewChanged struct {
	ReviewID string `json:"reviewId"`
	BookID   string `json:"bookId"`
	UserID   string `json:"userId"`
	Rating   int    `json:"rating"`
}

// RatingUpdated is the payload of book.rating.updated.
type RatingUpdated struct {
	BookID       string  `json:"bookId"`
	Rating       float64 `json:"rating"`
	TotalRatings int     `json:"totalRatings"`
	RatingSource string  `json:"ratingSource"`
}
