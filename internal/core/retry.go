package core

import (
	"context"
	"time"

	"questionbank/pkg/domain"
)

// RetryPolicy bounds how often a conflicting transaction is replayed.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy is used when no policy is configured.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:    5,
	InitialBackoff: 10 * time.Millisecond,
	MaxBackoff:     500 * time.Millisecond,
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.InitialBackoff < 0 {
		p.InitialBackoff = 0
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	return p
}

// retryConflicts runs fn until it succeeds, fails with anything other than a
// concurrency conflict, the context ends or attempts run out. onConflict sees
// every conflict; retrying is false for the one that ends the loop.
func retryConflicts(ctx context.Context, policy RetryPolicy, onConflict func(attempt int, err error, retrying bool), fn func(attempt int) error) error {
	policy = policy.normalized()
	backoff := policy.InitialBackoff
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil || !domain.IsConflict(err) {
			return err
		}
		retrying := attempt < policy.MaxAttempts
		if onConflict != nil {
			onConflict(attempt, err, retrying)
		}
		if !retrying {
			return err
		}
		if backoff > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return err
			case <-timer.C:
			}
			backoff *= 2
			if backoff > policy.MaxBackoff {
				backoff = policy.MaxBackoff
			}
		}
	}
}
