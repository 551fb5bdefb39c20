package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	txCommits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatdb_store_tx_commits_total",
		Help: "Number of committed store transactions.",
	})
	txAborts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatdb_store_tx_aborts_total",
		Help: "Number of aborted store transactions.",
	})
	commitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chatdb_store_commit_duration_seconds",
		Help:    "Durable commit latency.",
		Buckets: prometheus.DefBuckets,
	})
)
