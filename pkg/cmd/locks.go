package cmd

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/strandkit/strand/pkg/lock"
)

// NewLockManager selects the dedup lock backend. An empty URL falls back
// to the in-process manager, which is only safe for single-instance
// deployments.
func NewLockManager(redisURL string) (lock.Manager, error) {
	if redisURL == "" {
		return lock.NewMemoryManager(), nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	return lock.NewRedisManagerWithClient(redis.NewClient(opts)), nil
}
