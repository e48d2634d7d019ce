package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result
	// (success|failure|pending_2fa|throttled).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mithaq_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// CodesIssued counts verification codes issued per purpose.
	CodesIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mithaq_twofactor_codes_issued_total",
			Help: "Total number of verification codes issued",
		},
		[]string{"purpose"},
	)

	// IssuanceDenied counts issuance requests refused by the rate limiter
	// (reason: quota_exceeded|too_soon).
	IssuanceDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mithaq_twofactor_issuance_denied_total",
			Help: "Total number of code issuance requests denied by the rate limiter",
		},
		[]string{"reason"},
	)

	// CodeVerifications counts verification outcomes per purpose (success|failure).
	CodeVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mithaq_twofactor_verifications_total",
			Help: "Total number of verification code checks",
		},
		[]string{"purpose", "result"},
	)

	// ActiveSessions tracks sessions that are neither expired nor revoked.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mithaq_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mithaq_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
