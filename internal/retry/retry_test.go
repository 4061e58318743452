package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/ideaforge/internal/types"
)

func fastPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 3 * time.Millisecond}
}

func transient() error {
	return &types.TransientError{Op: "generate_text", Err: errors.New("503")}
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 4*time.Second, p.BaseDelay)
	assert.Equal(t, 10*time.Second, p.MaxDelay)
}

func TestCeiling_DefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 4*time.Second, p.Ceiling(1))
	assert.Equal(t, 8*time.Second, p.Ceiling(2))
	assert.Equal(t, 10*time.Second, p.Ceiling(3))
	assert.Equal(t, 10*time.Second, p.Ceiling(50))
	assert.Equal(t, 4*time.Second, p.Ceiling(0))
}

func TestCeiling_NonDecreasingAndCapped(t *testing.T) {
	policies := []Policy{
		DefaultPolicy(),
		{MaxAttempts: 5, BaseDelay: 3 * time.Second, MaxDelay: 10 * time.Second},
		{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: time.Hour},
	}

	for _, p := range policies {
		prev := time.Duration(0)
		for n := 1; n <= 64; n++ {
			c := p.Ceiling(n)
			assert.GreaterOrEqual(t, c, prev, "ceiling decreased at retry %d", n)
			assert.LessOrEqual(t, c, p.MaxDelay)
			prev = c
		}
	}
}

func TestNormalize(t *testing.T) {
	p := Policy{BaseDelay: 20 * time.Second, MaxDelay: time.Second}.Normalize()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 20*time.Second, p.MaxDelay)
}

func TestMaxTotalWait(t *testing.T) {
	assert.Equal(t, 12*time.Second, DefaultPolicy().MaxTotalWait())
}

func TestFullJitter_WithinCeiling(t *testing.T) {
	b := DefaultPolicy().NewBackOff()
	for round := 0; round < 50; round++ {
		b.Reset()
		for n := 1; n <= 4; n++ {
			d := b.NextBackOff()
			assert.GreaterOrEqual(t, d, time.Duration(0))
			assert.LessOrEqual(t, d, DefaultPolicy().Ceiling(n))
		}
	}
}

func TestFullJitter_UsesCeilingAsUpperBound(t *testing.T) {
	b := DefaultPolicy().NewBackOff()
	b.rand = func(n int64) int64 { return n - 1 }

	assert.Equal(t, 4*time.Second, b.NextBackOff())
	assert.Equal(t, 8*time.Second, b.NextBackOff())
	assert.Equal(t, 10*time.Second, b.NextBackOff())

	b.Reset()
	assert.Equal(t, 4*time.Second, b.NextBackOff())
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	attempts, err := Do(context.Background(), fastPolicy(), func(_ context.Context, attempt int) error {
		calls++
		assert.Equal(t, calls, attempt)
		if attempt < 3 {
			return transient()
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_NeverExceedsMaxAttempts(t *testing.T) {
	var waits []time.Duration
	attempts, err := Do(context.Background(), fastPolicy(), func(context.Context, int) error {
		return transient()
	}, func(_ int, _ error, wait time.Duration) {
		waits = append(waits, wait)
	})

	require.Error(t, err)
	var te *types.TransientError
	assert.ErrorAs(t, err, &te)
	assert.Equal(t, 3, attempts)
	assert.Len(t, waits, 2)
	for i, w := range waits {
		assert.LessOrEqual(t, w, fastPolicy().Ceiling(i+1))
	}
}

func TestDo_FatalIsNotRetried(t *testing.T) {
	fatal := &types.FatalError{Op: "generate_json", Err: errors.New("malformed payload")}
	attempts, err := Do(context.Background(), fastPolicy(), func(context.Context, int) error {
		return fatal
	}, nil)

	assert.Equal(t, 1, attempts)
	assert.Same(t, fatal, err)
}

func TestDo_ValidationFailureIsRetried(t *testing.T) {
	attempts, err := Do(context.Background(), fastPolicy(), func(context.Context, int) error {
		return &types.ValidationError{Step: "generate_document", Reason: "too short"}
	}, nil)

	assert.Equal(t, 3, attempts)
	var ve *types.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestDo_ContextCancelledStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	slow := Policy{MaxAttempts: 3, BaseDelay: time.Hour, MaxDelay: time.Hour}

	attempts, err := Do(ctx, slow, func(context.Context, int) error {
		cancel()
		return transient()
	}, nil)

	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, context.Canceled)
}
