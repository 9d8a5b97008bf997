package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// fetchesTotal counts finished fetch cycles by result (success, error, discarded)
	fetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topposts_pagination_fetches_total",
			Help: "Total number of page fetches by result",
		},
		[]string{"result"},
	)

	// fetchDuration tracks how long the page source took
	fetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "topposts_pagination_fetch_duration_seconds",
			Help:    "Page fetch duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	// itemsMerged counts items appended to the feed
	itemsMerged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "topposts_pagination_items_merged_total",
			Help: "Total number of items appended to the feed",
		},
	)

	// duplicatesDropped counts incoming items dropped because their ID was already present
	duplicatesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "topposts_pagination_duplicates_dropped_total",
			Help: "Total number of incoming items dropped as duplicates",
		},
	)

	// triggersIgnored counts load requests that were no-ops, by reason
	triggersIgnored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topposts_pagination_triggers_ignored_total",
			Help: "Total number of load requests ignored by reason",
		},
		[]string{"reason"}, // "in_flight", "exhausted", "closed"
	)
)
