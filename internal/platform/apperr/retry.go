package apperr

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type RetryPolicy struct {
	MaxAttempts     uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     4,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// Retry runs op until it succeeds, fails with a non-retryable error, the
// attempts run out, or ctx is done. The last error is returned.
func (d *Dispatcher) Retry(ctx context.Context, policy RetryPolicy, op func(ctx context.Context) error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = policy.InitialInterval
	eb.MaxInterval = policy.MaxInterval
	eb.MaxElapsedTime = 0

	var b backoff.BackOff = eb
	if policy.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, policy.MaxAttempts-1)
	}

	return backoff.Retry(func() error {
		err := op(ctx)
		if err != nil && !d.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx))
}
