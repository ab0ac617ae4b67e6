// Package retry runs fallible operations under a fixed-interval retry policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrExhausted is wrapped into the error returned once every attempt failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy bounds how often and how fast a failing operation is retried.
type Policy struct {
	Attempts int           // total attempts, including the first
	Wait     time.Duration // fixed pause between attempts
}

// DefaultPolicy makes ten attempts one second apart.
func DefaultPolicy() Policy {
	return Policy{Attempts: 10, Wait: time.Second}
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff = &backoff.StopBackOff{}
	if p.Attempts > 1 {
		b = backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Wait), uint64(p.Attempts-1))
	}
	return backoff.WithContext(b, ctx)
}

// Do calls op until it succeeds, the policy's attempts are spent or ctx is
// done. On exhaustion the last error is returned wrapped with ErrExhausted.
// Errors marked with backoff.Permanent stop the loop at once and are returned
// unwrapped.
func Do[T any](ctx context.Context, p Policy, logger *slog.Logger, op func(context.Context) (T, error)) (T, error) {
	attempt := 0
	res, err := backoff.RetryNotifyWithData(func() (T, error) {
		attempt++
		return op(ctx)
	}, p.backOff(ctx), func(err error, wait time.Duration) {
		logger.Warn("attempt failed, retrying",
			"attempt", attempt,
			"max_attempts", p.Attempts,
			"wait", wait,
			"error", err,
		)
	})
	if err == nil {
		return res, nil
	}

	var zero T
	if ctxErr := ctx.Err(); ctxErr != nil {
		return zero, ctxErr
	}
	// A permanent error ends the loop before the attempts are spent.
	if attempt < max(p.Attempts, 1) {
		return zero, err
	}
	return zero, fmt.Errorf("%w after %d attempt(s): %w", ErrExhausted, attempt, err)
}
