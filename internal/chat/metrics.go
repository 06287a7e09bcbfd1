package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	turnsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "wayfarer",
			Name:      "turns_active",
			Help:      "Number of chat turns currently streaming",
		},
	)

	turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wayfarer",
			Name:      "turns_total",
			Help:      "Total chat turns by outcome",
		},
		[]string{"outcome"}, // "completed", "errored", "rejected"
	)

	turnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "wayfarer",
			Name:      "turn_duration_seconds",
			Help:      "Duration of a full chat turn in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2m
		},
	)

	toolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wayfarer",
			Name:      "tool_calls_total",
			Help:      "Total tool invocations by tool and status",
		},
		[]string{"tool", "status"},
	)

	toolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wayfarer",
			Name:      "tool_duration_seconds",
			Help:      "Duration of tool invocations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	searchJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wayfarer",
			Name:      "search_jobs_total",
			Help:      "Total provider search jobs by terminal state",
		},
		[]string{"state"},
	)
)
