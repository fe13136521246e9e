package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	// Click path
	Clicks            *prometheus.CounterVec
	ClickErrors       *prometheus.CounterVec
	RotatorSelections *prometheus.CounterVec

	// Postback path
	Postbacks         *prometheus.CounterVec
	PostbackRejected  prometheus.Counter
	OrphanPostbacks   prometheus.Counter
	RevenueApproved   *prometheus.CounterVec

	// Outbound calls
	AlertFailures prometheus.Counter

	// Latency
	ClickLatency    prometheus.Histogram
	PostbackLatency prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Clicks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "clicks_total",
				Help:      "Total clicks routed, by offer and network",
			},
			[]string{"offer_id", "network"},
		),
		ClickErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "click_errors_total",
				Help:      "Click requests rejected or failed, by reason",
			},
			[]string{"reason"},
		),
		RotatorSelections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rotator_selections_total",
				Help:      "Variant selections, by rotator, variant and phase",
			},
			[]string{"rotator", "variant", "phase"},
		),
		Postbacks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "postbacks_total",
				Help:      "Conversion postbacks received, by status",
			},
			[]string{"status"},
		),
		PostbackRejected: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "postbacks_rejected_total",
				Help:      "Postbacks rejected for a bad shared secret",
			},
		),
		OrphanPostbacks: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "postbacks_orphan_total",
				Help:      "Postbacks whose click_id did not correlate",
			},
		),
		RevenueApproved: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "revenue_approved_total",
				Help:      "Approved payout sum, by rotator",
			},
			[]string{"rotator"},
		),
		AlertFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alert_failures_total",
				Help:      "Telegram alert deliveries that failed",
			},
		),
		ClickLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "click_latency_seconds",
				Help:      "Click handling latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
		PostbackLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "postback_latency_seconds",
				Help:      "Postback handling latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
