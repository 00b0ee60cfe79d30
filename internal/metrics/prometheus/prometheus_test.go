package prometheus

import (
	"testing"
	"time"

	"github.com/jitta-card/jitta_card/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_RecordOperation(t *testing.T) {
	c := NewCollector("test")
	reg := prometheus.NewRegistry()
	if err := c.Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}

	c.RecordOperation("deposit", "ok", 3*time.Millisecond)
	c.RecordOperation("deposit", "ok", time.Millisecond)
	c.RecordOperation("withdraw", "insufficient_funds", time.Millisecond)

	if got := testutil.ToFloat64(c.operations.WithLabelValues("deposit", "ok")); got != 2 {
		t.Fatalf("expected 2 deposits, got %v", got)
	}
	if got := testutil.ToFloat64(c.operations.WithLabelValues("withdraw", "insufficient_funds")); got != 1 {
		t.Fatalf("expected 1 failed withdraw, got %v", got)
	}
	if n := testutil.CollectAndCount(c.latency); n != 2 {
		t.Fatalf("expected 2 latency series, got %d", n)
	}
}

func TestCollector_RecordBreakerState(t *testing.T) {
	c := NewCollector("test")
	if err := c.Register(prometheus.NewRegistry()); err != nil {
		t.Fatalf("register: %v", err)
	}

	c.RecordBreakerState("store", metrics.BreakerOpen)
	c.RecordBreakerState("store", metrics.BreakerHalfOpen)

	if got := testutil.ToFloat64(c.breakerState.WithLabelValues("store")); got != float64(metrics.BreakerHalfOpen) {
		t.Fatalf("unexpected breaker state %v", got)
	}
	if got := testutil.ToFloat64(c.breakerOpens.WithLabelValues("store")); got != 1 {
		t.Fatalf("expected one open, got %v", got)
	}
}

func TestCollector_RegisterTwiceFails(t *testing.T) {
	c := NewCollector("test")
	reg := prometheus.NewRegistry()
	if err := c.Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := c.Register(reg); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}
