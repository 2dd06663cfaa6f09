package ua

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the set of Prometheus collectors a Client reports against
// (via WithClientMetrics), following spec.md §4.7's observability requirement (request
// count by method, final-response count by status, active dialogs, retry
// count). Grounded on
// _examples/arzzra-soft_phone/pkg/dialog/metrics.go's promauto-based
// MetricsCollector, generalized to register against a caller-supplied
// registerer instead of the default global one, so multiple Clients in
// one process don't collide on metric names.
type Metrics struct {
	transactionsStarted *prometheus.CounterVec
	transactionsFinal   *prometheus.CounterVec
	retries             *prometheus.CounterVec
	dialogs             prometheus.Gauge
}

// NewMetrics registers this module's collectors against reg. Pass
// prometheus.DefaultRegisterer for the common case of one stack per
// process.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		transactionsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sipstack",
			Subsystem: "ua",
			Name:      "transactions_started_total",
			Help:      "Client transactions started, by method.",
		}, []string{"method"}),
		transactionsFinal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sipstack",
			Subsystem: "ua",
			Name:      "transactions_final_total",
			Help:      "Client transactions that reached a final response, by method and status code.",
		}, []string{"method", "status"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sipstack",
			Subsystem: "ua",
			Name:      "auth_retries_total",
			Help:      "Requests resent after a digest challenge, by method.",
		}, []string{"method"}),
		dialogs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "sipstack",
			Subsystem: "ua",
			Name:      "dialogs_active",
			Help:      "Dialogs currently established.",
		}),
	}
}
