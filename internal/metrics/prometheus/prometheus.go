package prometheus

import (
	"time"

	"github.com/jitta-card/jitta_card/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports ledger metrics to Prometheus.
type Collector struct {
	operations   *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	breakerState *prometheus.GaugeVec
	breakerOpens *prometheus.CounterVec
}

// NewCollector builds the metric vectors under namespace. Call Register before use.
func NewCollector(namespace string) *Collector {
	return &Collector{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_operations_total",
				Help:      "Ledger operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ledger_operation_duration_seconds",
				Help:      "Ledger operation latency including the atomic scope",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
			},
			[]string{"operation"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "store_breaker_state",
				Help:      "Store circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		breakerOpens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_breaker_opens_total",
				Help:      "Times the store circuit breaker opened",
			},
			[]string{"name"},
		),
	}
}

// Register registers every vector with registry.
func (c *Collector) Register(registry prometheus.Registerer) error {
	for _, collector := range []prometheus.Collector{
		c.operations,
		c.latency,
		c.breakerState,
		c.breakerOpens,
	} {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) RecordOperation(operation, outcome string, duration time.Duration) {
	c.operations.WithLabelValues(operation, outcome).Inc()
	c.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

func (c *Collector) RecordBreakerState(name string, state metrics.BreakerState) {
	c.breakerState.WithLabelValues(name).Set(float64(state))
	if state == metrics.BreakerOpen {
		c.breakerOpens.WithLabelValues(name).Inc()
	}
}
