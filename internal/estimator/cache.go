package estimator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bluele/gcache"
)

// CachedResult is the stored form of a Result.
type CachedResult struct {
	Estimate     Estimate `json:"estimate"`
	Variant      string   `json:"variant"`
	FareFallback bool     `json:"fare_fallback,omitempty"`
	ETAFallback  bool     `json:"eta_fallback,omitempty"`
}

// Cache stores estimates by trip key.
// Get returns (nil, nil) on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (*CachedResult, error)
	Set(ctx context.Context, key string, value *CachedResult, ttl time.Duration) error
}

// CacheKey identifies a trip by its rounded coordinates and traffic level.
func CacheKey(req Request) string {
	return fmt.Sprintf("estimate:%.4f:%.4f:%.4f:%.4f:%.1f",
		req.Pickup.Lat, req.Pickup.Lng, req.Destination.Lat, req.Destination.Lng, req.traffic())
}

func toCached(r Result) *CachedResult {
	c := &CachedResult{Estimate: r.Estimate(), Variant: Variant(r)}
	if fb, ok := r.(Fallback); ok {
		c.FareFallback = fb.FareFallback
		c.ETAFallback = fb.ETAFallback
	}
	return c
}

func (c *CachedResult) result() Result {
	if c.Variant == "fallback" {
		return Fallback{Value: c.Estimate, FareFallback: c.FareFallback, ETAFallback: c.ETAFallback}
	}
	return Authoritative{Value: c.Estimate}
}

// LocalCache is an in-process LRU Cache used when Redis is unavailable.
type LocalCache struct {
	store gcache.Cache
}

// NewLocalCache creates a LocalCache holding up to size entries.
func NewLocalCache(size int) *LocalCache {
	return &LocalCache{store: gcache.New(size).LRU().Build()}
}

var _ Cache = (*LocalCache)(nil)

func (c *LocalCache) Get(_ context.Context, key string) (*CachedResult, error) {
	v, err := c.store.Get(key)
	if errors.Is(err, gcache.KeyNotFoundError) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cached, ok := v.(*CachedResult)
	if !ok {
		return nil, nil
	}
	return cached, nil
}

func (c *LocalCache) Set(_ context.Context, key string, value *CachedResult, ttl time.Duration) error {
	return c.store.SetWithExpire(key, value, ttl)
}
