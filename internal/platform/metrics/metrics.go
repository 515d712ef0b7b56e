// Package metrics exposes Prometheus collectors for arcjournal hot paths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CommitsTotal counts commit batches by outcome.
	CommitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arcjournal_commits_total",
		Help: "Total number of commit batches processed",
	}, []string{"outcome"})

	// TransactionsCommitted counts individual committed transactions by kind.
	TransactionsCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arcjournal_transactions_committed_total",
		Help: "Total number of transactions committed",
	}, []string{"kind"})

	// ReplayDuration observes the time spent folding a committed log.
	ReplayDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arcjournal_replay_duration_seconds",
		Help:    "Duration of replay engine runs",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	})

	// FeedDropsTotal counts feed messages dropped for slow subscribers.
	FeedDropsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arcjournal_feed_drops_total",
		Help: "Number of feed messages dropped due to a full subscriber buffer",
	})

	// InstancesCreated counts lazily created instances.
	InstancesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arcjournal_instances_created_total",
		Help: "Number of instances created by GetOrCreate",
	})
)
