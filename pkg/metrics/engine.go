package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine-level counters for the payment lifecycle consistency engine.
var (
	WebhookDuplicateSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "feegate",
		Name:      "webhook_duplicate_suppressed_total",
		Help:      "Webhook deliveries that hit an existing lock or committed result.",
	})

	WebhookStaleLockReclaimed = promauto.NewCounter(prometheus.CounterOpts{
		Subsystem: "feegate",
		Name:      "webhook_stale_lock_reclaimed_total",
		Help:      "Webhook locks reclaimed after exceeding the staleness TTL.",
	})

	RateLimitBlocked = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "feegate",
		Name:      "rate_limit_blocked_total",
		Help:      "Requests rejected by the fixed-window rate limiter.",
	}, []string{"scope"})

	SessionDecision = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "feegate",
		Name:      "session_decision_total",
		Help:      "Payment session creation decisions: create, reuse, reject.",
	}, []string{"decision"})
)
