package lock

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lockers returns the memory locker plus a Redis locker when REDIS_ADDR is set.
func lockers(t *testing.T) map[string]Locker {
	out := map[string]Locker{"memory": NewMemoryLocker()}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		l, err := NewRedisLocker(RedisConfig{Addr: addr, TTL: time.Minute})
		if err != nil {
			t.Logf("skipping redis locker: %v", err)
		} else {
			t.Cleanup(func() { _ = l.Close() })
			out["redis"] = l
		}
	}
	return out
}

func TestLocker_AcquireRelease(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			project := "p-" + uuid.NewString()
			a, b := uuid.New(), uuid.New()

			holder, ok, err := l.Acquire(ctx, project, a)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, a, holder)

			holder, ok, err = l.Acquire(ctx, project, b)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Equal(t, a, holder)

			// the owner cannot take its own lock a second time
			holder, ok, err = l.Acquire(ctx, project, a)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Equal(t, a, holder)

			assert.ErrorIs(t, l.Release(ctx, project, b), ErrNotHeld)
			assert.ErrorIs(t, l.Refresh(ctx, project, b), ErrNotHeld)
			require.NoError(t, l.Refresh(ctx, project, a))
			require.NoError(t, l.Release(ctx, project, a))
			assert.ErrorIs(t, l.Release(ctx, project, a), ErrNotHeld)

			_, ok, err = l.Acquire(ctx, project, b)
			require.NoError(t, err)
			assert.True(t, ok)
			require.NoError(t, l.Release(ctx, project, b))
		})
	}
}

func TestLocker_ConcurrentAcquireOneWins(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			project := "p-" + uuid.NewString()
			var wins int32
			var winner atomic.Value

			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					owner := uuid.New()
					_, ok, err := l.Acquire(ctx, project, owner)
					if assert.NoError(t, err) && ok {
						atomic.AddInt32(&wins, 1)
						winner.Store(owner)
					}
				}()
			}
			wg.Wait()

			require.Equal(t, int32(1), wins)
			require.NoError(t, l.Release(ctx, project, winner.Load().(uuid.UUID)))
		})
	}
}

func TestNewRedisLockerFromClient_DefaultTTL(t *testing.T) {
	l := NewRedisLockerFromClient(nil, 0)
	assert.Equal(t, DefaultTTL, l.TTL())
}
