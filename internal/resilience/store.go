package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jitta-card/jitta_card/internal/ledger"
	"github.com/jitta-card/jitta_card/internal/metrics"
	"github.com/sony/gobreaker"
)

// Config controls when the breaker opens and how long it stays open.
type Config struct {
	Name string
	// ConsecutiveFailures trips the breaker. Zero means 5.
	ConsecutiveFailures uint32
	// OpenTimeout is the time spent open before a half-open probe.
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of probes allowed while half-open.
	HalfOpenRequests uint32
}

// Store guards a ledger.Store with a circuit breaker. Only store
// unavailability counts as a failure; rule violations pass through untouched.
type Store struct {
	next    ledger.Store
	cb      *gobreaker.CircuitBreaker
	metrics metrics.Collector
	logger  *slog.Logger
}

var _ ledger.Store = (*Store)(nil)

// NewStore wraps next. A nil collector or logger is replaced by a no-op.
func NewStore(next ledger.Store, cfg Config, collector metrics.Collector, logger *slog.Logger) *Store {
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Name == "" {
		cfg.Name = "ledger-store"
	}
	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}

	s := &Store{next: next, metrics: collector, logger: logger}
	s.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: healthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			s.metrics.RecordBreakerState(name, stateOf(to))
		},
	})
	return s
}

// healthy reports whether err says nothing bad about the store itself.
func healthy(err error) bool {
	if err == nil || !ledger.Retryable(err) {
		return true
	}
	// the caller gave up, the store did not fail
	return errors.Is(err, context.Canceled)
}

func stateOf(s gobreaker.State) metrics.BreakerState {
	switch s {
	case gobreaker.StateOpen:
		return metrics.BreakerOpen
	case gobreaker.StateHalfOpen:
		return metrics.BreakerHalfOpen
	default:
		return metrics.BreakerClosed
	}
}

// State returns the current breaker state.
func (s *Store) State() metrics.BreakerState {
	return stateOf(s.cb.State())
}

// Name returns the breaker name.
func (s *Store) Name() string {
	return s.cb.Name()
}

func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	_, err := s.cb.Execute(func() (any, error) {
		return nil, s.next.Atomic(ctx, fn)
	})
	return s.translate(err)
}

func (s *Store) Balances(ctx context.Context, ownerID uuid.UUID, kind ledger.Kind) ([]ledger.Balance, error) {
	out, err := s.cb.Execute(func() (any, error) {
		return s.next.Balances(ctx, ownerID, kind)
	})
	if err != nil {
		return nil, s.translate(err)
	}
	balances, _ := out.([]ledger.Balance)
	return balances, nil
}

func (s *Store) Entries(ctx context.Context, ownerID uuid.UUID, filter ledger.EntryFilter) ([]ledger.Entry, error) {
	out, err := s.cb.Execute(func() (any, error) {
		return s.next.Entries(ctx, ownerID, filter)
	})
	if err != nil {
		return nil, s.translate(err)
	}
	entries, _ := out.([]ledger.Entry)
	return entries, nil
}

func (s *Store) translate(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		s.logger.Warn("circuit breaker rejected request", slog.String("breaker", s.cb.Name()))
		return fmt.Errorf("%w: %w", ledger.ErrStoreUnavailable, err)
	}
	return err
}
