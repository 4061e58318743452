// Package retry implements the bounded exponential backoff used around step attempts.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonathan/ideaforge/internal/types"
)

// Policy bounds how often and how long an operation is retried
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy is three attempts with a 4s base and a 10s cap
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   4 * time.Second,
		MaxDelay:    10 * time.Second,
	}
}

// Normalize fills zero fields with defaults and keeps the cap at or above the base.
func (p Policy) Normalize() Policy {
	def := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// Ceiling returns the upper bound of the wait before the given retry (1-based):
// min(MaxDelay, BaseDelay * 2^(retry-1)). It never decreases as retry grows.
func (p Policy) Ceiling(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	d := p.BaseDelay
	for i := 1; i < retry; i++ {
		if d >= p.MaxDelay/2 {
			return p.MaxDelay
		}
		d *= 2
	}
	return min(d, p.MaxDelay)
}

// MaxTotalWait is the longest a full retry sequence can spend sleeping.
func (p Policy) MaxTotalWait() time.Duration {
	var total time.Duration
	for retry := 1; retry < p.MaxAttempts; retry++ {
		total += p.Ceiling(retry)
	}
	return total
}

// FullJitter is a backoff.BackOff drawing each wait uniformly from [0, Ceiling(n)].
type FullJitter struct {
	policy Policy
	retry  int
	rand   func(n int64) int64
}

// NewBackOff returns a full-jitter backoff for the policy. The attempt limit is not
// applied here; Do wraps it with backoff.WithMaxRetries.
func (p Policy) NewBackOff() *FullJitter {
	return &FullJitter{policy: p.Normalize(), rand: rand.Int64N}
}

// NextBackOff implements backoff.BackOff.
func (f *FullJitter) NextBackOff() time.Duration {
	f.retry++
	ceiling := f.policy.Ceiling(f.retry)
	if ceiling <= 0 {
		return 0
	}
	return time.Duration(f.rand(int64(ceiling) + 1))
}

// Reset implements backoff.BackOff.
func (f *FullJitter) Reset() {
	f.retry = 0
}

// Attempt is called once per try with the 1-based attempt number
type Attempt func(ctx context.Context, attempt int) error

// Notify is called after a retryable failure, before sleeping
type Notify func(attempt int, err error, wait time.Duration)

// Do runs op until it succeeds, returns a non-retryable error, or the policy's
// attempts are used up. It returns the number of attempts made and the last error.
func Do(ctx context.Context, p Policy, op Attempt, notify Notify) (int, error) {
	return do(ctx, p, p.NewBackOff(), op, notify)
}

func do(ctx context.Context, p Policy, jitter backoff.BackOff, op Attempt, notify Notify) (int, error) {
	p = p.Normalize()
	attempts := 0

	b := backoff.WithContext(backoff.WithMaxRetries(jitter, uint64(p.MaxAttempts-1)), ctx)
	err := backoff.RetryNotify(func() error {
		attempts++
		err := op(ctx, attempts)
		if err != nil && !types.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		if notify != nil {
			notify(attempts, err, wait)
		}
	})

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	return attempts, err
}
