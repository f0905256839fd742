package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"rapidride/internal/estimator"
)

// keyPrefix namespaces every key this service writes.
const keyPrefix = "rr:"

// EstimateCache stores fare/ETA estimates as JSON blobs with a TTL.
type EstimateCache struct {
	client *redis.Client
}

// NewEstimateCache creates a new EstimateCache.
func NewEstimateCache(client *redis.Client) *EstimateCache {
	return &EstimateCache{client: client}
}

// Get retrieves a cached estimate. A miss returns (nil, nil).
func (s *EstimateCache) Get(ctx context.Context, key string) (*estimator.CachedResult, error) {
	data, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Cache miss
		}
		return nil, err
	}

	var cached estimator.CachedResult
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	return &cached, nil
}

// Set stores an estimate for ttl.
func (s *EstimateCache) Set(ctx context.Context, key string, value *estimator.CachedResult, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, keyPrefix+key, data, ttl).Err()
}
