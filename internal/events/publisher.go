package events

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker/v2"
)

// Publisher sends events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, topic string, ev *Event) error
	Close() error
}

// Nop discards every event. It is used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, *Event) error { return nil }
func (Nop) Close() error                                  { return nil }

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures a KafkaPublisher.
type KafkaConfig struct {
	Brokers     []string
	TopicPrefix string
	// Timeout bounds each publish call.
	Timeout time.Duration
}

// KafkaPublisher writes events synchronously behind a circuit breaker so a
// broker outage fails fast instead of stalling requests.
type KafkaPublisher struct {
	writer  messageWriter
	prefix  string
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewKafkaPublisher returns a publisher writing to cfg.Brokers.
func NewKafkaPublisher(cfg KafkaConfig) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return newKafkaPublisher(w, cfg)
}

func newKafkaPublisher(w messageWriter, cfg KafkaConfig) *KafkaPublisher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        "kafka-publisher",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	}
	return &KafkaPublisher{
		writer:  w,
		prefix:  cfg.TopicPrefix,
		timeout: cfg.Timeout,
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

// Publish writes ev to prefix+topic keyed by the aggregate id, so events of
// one book stay ordered within a partition.
func (p *KafkaPublisher) Publish(ctx context.Context, topic string, ev *Event) error {
	data, err := ev.Marshal()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	full := p.prefix + topic
	msg := kafka.Message{
		Topic: full,
		Key:   []byte(ev.AggregateID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.EventType)},
			{Key: "source", Value: []byte(ev.Source)},
		},
	}
	if ev.CorrelationID != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "correlation_id", Value: []byte(ev.CorrelationID)})
	}

	_, err = p.breaker.Execute(func() (struct{}, error) {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()
		return struct{}{}, p.writer.WriteMessages(wctx, msg)
	})
	if err != nil {
		return fmt.Errorf("publish event to %s: %w", full, err)
	}
	zerolog.Ctx(ctx).Debug().
		Str("topic", full).
		Str("event_type", ev.EventType).
		Str("aggregate_id", ev.AggregateID).
		Msg("event published")
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error { return p.writer.Close() }
