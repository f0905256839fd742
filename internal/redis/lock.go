package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const driverLockPrefix = keyPrefix + "lock:driver:"

// releaseIfOwner deletes the lock only while it still carries our token,
// so a lock that expired and was taken by another instance survives.
var releaseIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockStore serializes accepts per driver across server instances.
type LockStore struct {
	client *redis.Client
	owner  string
}

// NewLockStore creates a LockStore with a token unique to this process.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client, owner: uuid.NewString()}
}

// AcquireDriverLock reports whether the lock was taken. It does not block.
func (s *LockStore) AcquireDriverLock(ctx context.Context, driverID string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, driverLockPrefix+driverID, s.owner, ttl).Result()
}

func (s *LockStore) ReleaseDriverLock(ctx context.Context, driverID string) error {
	return releaseIfOwner.Run(ctx, s.client, []string{driverLockPrefix + driverID}, s.owner).Err()
}
