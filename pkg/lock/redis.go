package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Renewal and release are compare-and-set on the holder ID so an expired
// lease taken over by another worker is never touched.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisManager implements Manager on a single Redis instance using
// SET NX PX leases.
type RedisManager struct {
	client redis.UniversalClient
}

func NewRedisManager(ctx context.Context, addr, password string, db int) (*RedisManager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := client.Ping(pingCtx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisManager{client: client}, nil
}

// NewRedisManagerWithClient wraps an existing client, mainly for tests.
func NewRedisManagerWithClient(client redis.UniversalClient) *RedisManager {
	return &RedisManager{client: client}
}

func (m *RedisManager) Acquire(ctx context.Context, key, holderID string, ttl time.Duration) (*Lease, error) {
	ok, err := m.client.SetNX(ctx, key, holderID, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}

	if !ok {
		// Re-acquisition by the same holder extends the lease instead.
		current, err := m.client.Get(ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("failed to inspect lock %s: %w", key, err)
		}

		if current != holderID {
			return nil, ErrLockHeld
		}

		if err := m.client.PExpire(ctx, key, ttl).Err(); err != nil {
			return nil, fmt.Errorf("failed to extend lock %s: %w", key, err)
		}
	}

	return &Lease{Key: key, HolderID: holderID, TTL: ttl}, nil
}

func (m *RedisManager) Renew(ctx context.Context, lease *Lease) error {
	renewed, err := renewScript.Run(ctx, m.client, []string{lease.Key}, lease.HolderID, lease.TTL.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to renew lock %s: %w", lease.Key, err)
	}

	if renewed == 0 {
		return ErrLeaseLost
	}

	return nil
}

func (m *RedisManager) Release(ctx context.Context, lease *Lease) error {
	_, err := releaseScript.Run(ctx, m.client, []string{lease.Key}, lease.HolderID).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", lease.Key, err)
	}

	return nil
}

func (m *RedisManager) Close() error {
	return m.client.Close()
}
