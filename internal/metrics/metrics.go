package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// deliveriesTotal counts terminal delivery records.
	// Labels:
	// - outcome: "sent", "bounced" or "failed"
	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campaign",
			Name:      "deliveries_total",
			Help:      "Terminal delivery records written, by outcome.",
		},
		[]string{"outcome"},
	)

	// sendAttemptsTotal counts individual transport calls.
	// Labels:
	// - result: "ok", "transient", "fatal", "bounced" or "unavailable"
	sendAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campaign",
			Name:      "send_attempts_total",
			Help:      "Send attempts made against the mail transport, by result.",
		},
		[]string{"result"},
	)

	quotaDeniedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "campaign",
			Name:      "quota_denied_total",
			Help:      "Dispatch runs stopped because the daily quota was exhausted.",
		},
	)

	// dispatchRunsTotal counts dispatch runs.
	// Labels:
	// - result: "completed", "quota_exhausted", "halted", "failed", "skipped" or "busy"
	dispatchRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campaign",
			Name:      "dispatch_runs_total",
			Help:      "Dispatch runs by how they ended.",
		},
		[]string{"result"},
	)

	dispatchRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "campaign",
			Name:      "dispatch_run_duration_seconds",
			Help:      "Wall time of one dispatch run.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	// transitionsTotal counts lifecycle transitions that were applied.
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campaign",
			Name:      "transitions_total",
			Help:      "Campaign lifecycle transitions, by source and target state.",
		},
		[]string{"from", "to"},
	)

	engagementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campaign",
			Name:      "engagements_total",
			Help:      "Engagement events recorded, by kind.",
		},
		[]string{"kind"},
	)
)

func IncDelivery(outcome string)    { deliveriesTotal.WithLabelValues(outcome).Inc() }
func IncSendAttempt(result string)  { sendAttemptsTotal.WithLabelValues(result).Inc() }
func IncQuotaDenied()               { quotaDeniedTotal.Inc() }
func IncTransition(from, to string) { transitionsTotal.WithLabelValues(from, to).Inc() }
func IncEngagement(kind string)     { engagementsTotal.WithLabelValues(kind).Inc() }

// ObserveDispatchRun records the end of a dispatch run.
func ObserveDispatchRun(result string, seconds float64) {
	dispatchRunsTotal.WithLabelValues(result).Inc()
	dispatchRunDuration.Observe(seconds)
}
