package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/aristath/pipeline/internal/config"
)

// RetryPolicy configures the delay between attempts of one task.
type RetryPolicy struct {
	InitialInterval time.Duration // Delay before the second attempt
	MaxInterval     time.Duration // Cap for the doubling delay
}

// RetryPolicyFrom reads the retry settings out of cfg.
func RetryPolicyFrom(cfg config.Config) RetryPolicy {
	return RetryPolicy{
		InitialInterval: cfg.RetryInitial(),
		MaxInterval:     cfg.RetryMax(),
	}
}

// backOff builds a deterministic doubling backoff allowing at most retries
// re-attempts. It stops early when ctx is done.
func (p RetryPolicy) backOff(ctx context.Context, retries int) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.InitialInterval
	policy.MaxInterval = p.MaxInterval
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0 // bounded by the retry count instead
	policy.Reset()

	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx)
}

// BreakerSettings tunes the circuit breakers handed out by a registry.
type BreakerSettings struct {
	ConsecutiveFailures uint32        // Failures that trip the breaker (default 5)
	OpenTimeout         time.Duration // Time spent open before probing (default 30s)
	HalfOpenRequests    uint32        // Probes allowed while half-open (default 3)
}

// DefaultBreakerSettings returns the default breaker tuning.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		HalfOpenRequests:    3,
	}
}

// BreakerRegistry hands out one circuit breaker per program, so a missing
// or broken tool stops being retried across every task that invokes it.
type BreakerRegistry struct {
	mu       sync.Mutex
	settings BreakerSettings
	logger   *slog.Logger
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerRegistry creates a registry. A nil logger uses slog.Default().
func NewBreakerRegistry(settings BreakerSettings, logger *slog.Logger) *BreakerRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &BreakerRegistry{
		settings: settings,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Get returns the circuit breaker for program, creating it on first use.
func (r *BreakerRegistry) Get(program string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[program]; ok {
		return cb
	}

	threshold := r.settings.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        program,
		MaxRequests: r.settings.HalfOpenRequests,
		Interval:    0, // Don't clear counts automatically
		Timeout:     r.settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.Warn("circuit breaker state changed", "program", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Cancellation is not the program's fault
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	r.breakers[program] = cb
	return cb
}

// State reports the breaker state for program without creating one.
func (r *BreakerRegistry) State(program string) (gobreaker.State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb, ok := r.breakers[program]
	if !ok {
		return gobreaker.StateClosed, false
	}
	return cb.State(), true
}

// breakerOpen reports errors that mean the breaker refused the call.
func breakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
