package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "redeem"
	subsystem        = "submit"
)

var (
	submitBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "batches_total",
			Help:      "Total number of batches by final outcome",
		},
		[]string{"outcome"}, // outcome: "succeeded", "failed", "skipped"
	)

	submitAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "attempts_total",
			Help:      "Total number of send attempts including retries",
		},
	)

	confirmDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "confirm_duration_seconds",
			Help:      "Time spent waiting for one confirmation",
			Buckets:   prometheus.DefBuckets,
		},
	)

	claimSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "claim",
			Name:      "sessions_total",
			Help:      "Total number of claim sessions by terminal state",
		},
		[]string{"state"}, // state: "completed", "rejected", "abandoned"
	)
)
