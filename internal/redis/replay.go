package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"rapidride/internal/middleware"
)

const replayKeyPrefix = keyPrefix + "idempotency:"

// ReplayStore keeps idempotent responses as JSON blobs with a TTL.
type ReplayStore struct {
	client *redis.Client
}

// NewReplayStore creates a new ReplayStore.
func NewReplayStore(client *redis.Client) *ReplayStore {
	return &ReplayStore{client: client}
}

func (s *ReplayStore) Load(ctx context.Context, key string) (*middleware.StoredResponse, error) {
	data, err := s.client.Get(ctx, replayKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var resp middleware.StoredResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *ReplayStore) Save(ctx context.Context, key string, resp *middleware.StoredResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, replayKeyPrefix+key, data, ttl).Err()
}
