package services

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-library-backend/internal/events"
	"github.com/tbourn/go-library-backend/internal/sysutil"
)

// publish hands an event to pub. Failures are counted and logged, never
// returned: the mutation that triggered the event is already durable.
func publish(ctx context.Context, pub events.Publisher, topic, aggregateID, aggregateType string, data any) {
	if pub == nil {
		return
	}
	ev, err := events.New(topic, aggregateID, aggregateType, data)
	if err != nil {
		eventsPublished.WithLabelValues(topic, "error").Inc()
		zerolog.Ctx(ctx).Error().Err(err).Str("topic", topic).Msg("build event")
		return
	}
	ev.WithCorrelationID(sysutil.RequestIDFrom(ctx))
	if err := pub.Publish(ctx, topic, ev); err != nil {
		eventsPublished.WithLabelValues(topic, "error").Inc()
		zerolog.Ctx(ctx).Warn().Err(err).
			Str("topic", topic).
			Str("aggregate_id", aggregateID).
			Msg("publish event")
		return
	}
	eventsPublished.WithLabelValues(topic, "ok").Inc()
}
