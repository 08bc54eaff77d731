package flexibee

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts FlexiBee requests and their latency.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the transport metrics with reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flexiql_flexibee_requests_total",
				Help: "Total number of FlexiBee API requests",
			},
			[]string{"method", "table", "status"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flexiql_flexibee_request_duration_seconds",
				Help:    "FlexiBee API request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "table"},
		),
	}
}

func (m *Metrics) observe(method, table, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, table, status).Inc()
	m.duration.WithLabelValues(method, table).Observe(d.Seconds())
}
