package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
	"time"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	Checkouts          *prometheus.CounterVec
	SettlementDuration prometheus.Histogram
	SequencerFallbacks prometheus.Counter
	LedgerOps          *prometheus.CounterVec
	LedgerRetries      prometheus.Counter
	Requests           *prometheus.CounterVec
	LatencyMS          *prometheus.HistogramVec
}

func New(reg prometheus.Registerer, service string) *Metrics {
	m := &Metrics{
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "settlement",
			Subsystem: service,
			Name:      "checkouts_total",
			Help:      "Checkout attempts by outcome.",
		}, []string{"outcome"}),
		SettlementDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "settlement",
			Subsystem: service,
			Name:      "settlement_duration_seconds",
			Help:      "Time spent in the settlement transaction.",
			Buckets:   prometheus.DefBuckets,
		}),
		SequencerFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "settlement",
			Subsystem: service,
			Name:      "order_number_fallbacks_total",
			Help:      "Order numbers issued without the counter store.",
		}),
		LedgerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "settlement",
			Subsystem: service,
			Name:      "ledger_operations_total",
			Help:      "Seller ledger mutations by op and outcome.",
		}, []string{"op", "outcome"}),
		LedgerRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "settlement",
			Subsystem: service,
			Name:      "ledger_version_retries_total",
			Help:      "Seller balance writes retried after a version conflict.",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "settlement",
			Subsystem: service,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "settlement",
			Subsystem: service,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"route"}),
	}
	reg.MustRegister(m.Checkouts, m.SettlementDuration, m.SequencerFallbacks, m.LedgerOps, m.LedgerRetries,
		m.Requests, m.LatencyMS)
	return m
}

func (m *Metrics) Checkout(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.Checkouts.WithLabelValues(outcome).Inc()
	m.SettlementDuration.Observe(took.Seconds())
}

func (m *Metrics) SequencerFallback() {
	if m == nil {
		return
	}
	m.SequencerFallbacks.Inc()
}

func (m *Metrics) LedgerOp(op, outcome string) {
	if m == nil {
		return
	}
	m.LedgerOps.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) LedgerRetry() {
	if m == nil {
		return
	}
	m.LedgerRetries.Inc()
}

func (m *Metrics) Request(route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(route, http.StatusText(status)).Inc()
	m.LatencyMS.WithLabelValues(route).Observe(float64(took.Milliseconds()))
}

func Handler() http.Handler {
	return promhttp.Handler()
}
