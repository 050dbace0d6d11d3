// Package network relays remote pilot input to network-controlled actors.
// Clients dial through a circuit breaker so a dead server fails fast instead
// of stalling the sender.
package network

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/opd-ai/go-flight/pkg/config"
	"github.com/opd-ai/go-flight/pkg/logging"
)

// ErrCircuitOpen is returned while the breaker is rejecting operations.
var ErrCircuitOpen = errors.New("circuit open")

// Retry defaults for DoWithRetry.
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second
	// maxBackoffFactor caps the exponential delay at this multiple of the base delay.
	maxBackoffFactor = 8
)

// permanentError marks a failure that retrying cannot fix.
type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent wraps err so DoWithRetry returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Breaker guards a pilot's connection to the input server. Consecutive
// failures open it; a cancelled context is not counted as a failure.
type Breaker struct {
	cb         *gobreaker.CircuitBreaker
	logger     *logging.Logger
	maxRetries int
	retryDelay time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewBreaker configures a breaker from env. A nil logger logs to stdout.
func NewBreaker(env *config.EnvironmentConfig, logger *logging.Logger) *Breaker {
	if logger == nil {
		logger = logging.NewLogger()
	}
	logger = logger.Component("circuit_breaker")

	maxFails := uint32(env.CircuitBreakerMaxConsecutiveFails)
	if maxFails == 0 {
		maxFails = 1
	}
	settings := gobreaker.Settings{
		Name:        "flight-input",
		MaxRequests: uint32(env.CircuitBreakerMaxRequests),
		Interval:    env.CircuitBreakerInterval,
		Timeout:     env.CircuitBreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFails
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info(context.Background(), "circuit breaker state changed",
				"name", name, "from", from.String(), "to", to.String())
		},
	}

	return &Breaker{
		cb:         gobreaker.NewCircuitBreaker(settings),
		logger:     logger,
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		sleep:      sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetRetryPolicy changes the attempt count and base delay used by DoWithRetry.
func (b *Breaker) SetRetryPolicy(maxRetries int, baseDelay time.Duration) {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if baseDelay < 0 {
		baseDelay = 0
	}
	b.maxRetries = maxRetries
	b.retryDelay = baseDelay
}

// Do runs op through the breaker. While the circuit is open it returns
// ErrCircuitOpen without running op.
func (b *Breaker) Do(ctx context.Context, op func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, op()
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		b.logger.Debug(ctx, "operation rejected by open circuit", "state", b.cb.State().String())
		return fmt.Errorf("circuit breaker: %w", ErrCircuitOpen)
	default:
		return fmt.Errorf("circuit breaker: %w", err)
	}
}

// backoff returns the delay before retry number attempt (1-based).
func (b *Breaker) backoff(attempt int) time.Duration {
	factor := 1 << (attempt - 1)
	if factor > maxBackoffFactor {
		factor = maxBackoffFactor
	}
	return time.Duration(factor) * b.retryDelay
}

// DoWithRetry runs op up to the configured number of attempts with
// exponential backoff. It stops early on a Permanent error, an open circuit
// or a done ctx.
func (b *Breaker) DoWithRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 1; attempt <= b.maxRetries; attempt++ {
		if err = b.Do(ctx, op); err == nil {
			return nil
		}

		var permanent permanentError
		if errors.As(err, &permanent) {
			return err
		}
		if errors.Is(err, ErrCircuitOpen) {
			b.logger.Warn(ctx, "circuit breaker is open, skipping retries", "attempt", attempt)
			return err
		}
		if attempt == b.maxRetries {
			break
		}

		delay := b.backoff(attempt)
		b.logger.Warn(ctx, "operation failed, retrying",
			"attempt", attempt,
			"max_retries", b.maxRetries,
			"delay", delay.String(),
			"error", err.Error(),
		)
		if sleepErr := b.sleep(ctx, delay); sleepErr != nil {
			return fmt.Errorf("retry cancelled: %w", sleepErr)
		}
	}

	b.logger.Error(ctx, "all retry attempts failed", err, "attempts", b.maxRetries)
	return fmt.Errorf("max retries (%d) exceeded: %w", b.maxRetries, err)
}

// State returns the breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Counts returns the breaker's request counts for the current interval.
func (b *Breaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}
