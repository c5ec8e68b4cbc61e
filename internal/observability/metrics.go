package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_webhook_events_total",
			Help: "Total webhook events received, by type and result",
		},
		[]string{"type", "result"},
	)

	DuplicateEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_webhook_duplicates_total",
			Help: "Total webhook deliveries skipped as already processed",
		},
	)

	TransfersCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_transfers_created_total",
			Help: "Total payout transfers issued, by recipient role",
		},
		[]string{"role"},
	)

	SettleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gallery_settle_seconds",
			Help:    "Duration of order settlement",
			Buckets: prometheus.DefBuckets,
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)

// promauto registers with the default registerer; nothing else to do.
func InitMetrics() {
	_ = prometheus.DefaultRegisterer
}
