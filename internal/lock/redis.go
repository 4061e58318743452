package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a crashed process can keep a project locked
const DefaultTTL = 2 * time.Hour

// Release and refresh only act when the stored owner matches, so a lock that
// expired and was taken by another run is never touched.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// RedisLocker implements Locker with Redis SET NX leases.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisConfig holds configuration for connecting to Redis.
type RedisConfig struct {
	Addr     string // host:port
	Password string // optional
	DB       int    // database number
	TTL      time.Duration
}

// NewRedisLocker connects to Redis and verifies the connection.
func NewRedisLocker(cfg RedisConfig) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return NewRedisLockerFromClient(client, cfg.TTL), nil
}

// NewRedisLockerFromClient wraps an existing client
func NewRedisLockerFromClient(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLocker{client: client, ttl: ttl}
}

// Acquire implements Locker.
func (l *RedisLocker) Acquire(ctx context.Context, projectID string, owner uuid.UUID) (uuid.UUID, bool, error) {
	ok, err := l.client.SetNX(ctx, key(projectID), owner.String(), l.ttl).Result()
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if ok {
		return owner, true, nil
	}

	val, err := l.client.Get(ctx, key(projectID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// expired between SETNX and GET; report contention and let the caller retry
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("failed to read lock holder: %w", err)
	}
	holder, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("lock holder %q is not a run id: %w", val, err)
	}
	return holder, false, nil
}

// Release implements Locker.
func (l *RedisLocker) Release(ctx context.Context, projectID string, owner uuid.UUID) error {
	n, err := releaseScript.Run(ctx, l.client, []string{key(projectID)}, owner.String()).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// Refresh implements Locker.
func (l *RedisLocker) Refresh(ctx context.Context, projectID string, owner uuid.UUID) error {
	n, err := refreshScript.Run(ctx, l.client, []string{key(projectID)}, owner.String(), l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to refresh lock: %w", err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// TTL returns the lease length
func (l *RedisLocker) TTL() time.Duration {
	return l.ttl
}

// Close closes the connection to Redis.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}

// Ensure RedisLocker implements Locker.
var _ Locker = (*RedisLocker)(nil)
