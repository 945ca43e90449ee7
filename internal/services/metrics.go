package services

import "github.com/prometheus/client_golang/prometheus"

// Domain counters. Label values are fixed strings so cardinality stays small.
var (
	reviewsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_reviews_total",
			Help: "Review mutations by operation.",
		},
		[]string{"op"}, // create, update, delete
	)

	recomputeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_rating_recompute_total",
			Help: "Rating recomputations by result.",
		},
		[]string{"result"}, // ok, missing_book, error
	)

	quickRateTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_quick_rate_total",
			Help: "Quick-rate attempts by result.",
		},
		[]string{"result"}, // ok, replay, conflict, error
	)

	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_events_published_total",
			Help: "Domain events handed to the publisher by topic and result.",
		},
		[]string{"topic", "result"},
	)
)

func init() {
	prometheus.MustRegister(reviewsTotal, recomputeTotal, quickRateTotal, eventsPublished)
}
