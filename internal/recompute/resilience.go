package recompute

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/aristath/planner/internal/persistence"
	"github.com/aristath/planner/internal/scheduler"
)

// RetryConfig configures exponential backoff for store writes.
type RetryConfig struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	MaxElapsedTime      time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// DefaultRetryConfig returns the retry policy used for schedule write-back.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     50 * time.Millisecond,
		MaxInterval:         2 * time.Second,
		MaxElapsedTime:      15 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

func (r RetryConfig) policy(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.InitialInterval
	b.MaxInterval = r.MaxInterval
	b.MaxElapsedTime = r.MaxElapsedTime
	b.Multiplier = r.Multiplier
	b.RandomizationFactor = r.RandomizationFactor
	return backoff.WithContext(b, ctx)
}

// newStoreBreaker trips after five consecutive failed writes and probes
// again after the open timeout. Cancellation does not count as a failure.
func newStoreBreaker(log zerolog.Logger, openTimeout time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "store",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})
}

// applyWithRetry writes schedule back through the breaker, retrying
// transient failures. An open breaker or a cancelled context stops retries.
func applyWithRetry(ctx context.Context, store persistence.Store, projectID string, schedule *scheduler.Schedule, cb *gobreaker.CircuitBreaker, retry RetryConfig) (int, error) {
	var updated int

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		result, err := cb.Execute(func() (interface{}, error) {
			return store.ApplySchedule(ctx, projectID, schedule)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}

		updated = result.(int)
		return nil
	}

	err := backoff.Retry(operation, retry.policy(ctx))
	return updated, err
}
