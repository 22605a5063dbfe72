package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ticketsIssued counts tickets handed out by the scheduler.
	ticketsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nowhere_tickets_issued_total",
		Help: "Total scheduler tickets issued",
	})

	// ticketsRejected counts refused ticket requests by reason.
	ticketsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nowhere_tickets_rejected_total",
		Help: "Total ticket requests refused by reason",
	}, []string{"reason"})

	// capsulesAppended counts ledger appends by result.
	capsulesAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nowhere_capsules_appended_total",
		Help: "Total capsule appends by result",
	}, []string{"result"})

	// effectsApplied counts effects applied to the sink.
	effectsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nowhere_effects_applied_total",
		Help: "Total effects applied to the evidence sink",
	})

	// effectApplyRetries counts failed apply attempts that were retried.
	effectApplyRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nowhere_effect_apply_retries_total",
		Help: "Total effect apply attempts that failed and were retried",
	})

	// replays counts replay verifications by final state and reason.
	replays = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nowhere_replays_total",
		Help: "Total replay verifications by state and reason",
	}, []string{"state", "reason"})

	// stepDuration tracks end-to-end step latency.
	stepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nowhere_step_duration_seconds",
		Help:    "Step duration in seconds by outcome",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
	}, []string{"outcome"})
)
