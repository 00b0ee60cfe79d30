package metrics

import "time"

// Collector receives ledger engine and store health measurements.
type Collector interface {
	// RecordOperation records one engine operation with its outcome label
	// ("ok" or the error kind) and its latency.
	RecordOperation(operation, outcome string, duration time.Duration)

	// RecordBreakerState records a circuit breaker state transition.
	RecordBreakerState(name string, state BreakerState)
}

// BreakerState mirrors the states of a circuit breaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// NoOpCollector discards everything.
type NoOpCollector struct{}

func (NoOpCollector) RecordOperation(string, string, time.Duration) {}

func (NoOpCollector) RecordBreakerState(string, BreakerState) {}
