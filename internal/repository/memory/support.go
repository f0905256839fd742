// Package memory keeps short-lived records in process memory.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bluele/gcache"

	"rapidride/internal/domain"
	"rapidride/internal/repository"
)

// SupportRetention is how long a chat is kept after it was opened.
const SupportRetention = 30 * 24 * time.Hour

type supportEntry struct {
	chat      *domain.SupportChat
	expiresAt time.Time
}

// SupportRepository implements repository.SupportRepository on an LRU cache.
// Chats expire a fixed retention after creation; updates do not extend it.
type SupportRepository struct {
	mu        sync.Mutex
	chats     gcache.Cache
	clock     gcache.Clock
	retention time.Duration
}

var _ repository.SupportRepository = (*SupportRepository)(nil)

// NewSupportRepository creates a SupportRepository holding at most size chats.
func NewSupportRepository(size int, retention time.Duration) *SupportRepository {
	return newSupportRepository(size, retention, gcache.NewRealClock())
}

func newSupportRepository(size int, retention time.Duration, clock gcache.Clock) *SupportRepository {
	return &SupportRepository{
		chats:     gcache.New(size).LRU().Clock(clock).Build(),
		clock:     clock,
		retention: retention,
	}
}

func (r *SupportRepository) Create(_ context.Context, chat *domain.SupportChat) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.chats.Get(chat.ID); err == nil {
		return repository.ErrConflict
	}
	entry := &supportEntry{chat: chat.Clone(), expiresAt: r.clock.Now().Add(r.retention)}
	return r.chats.SetWithExpire(chat.ID, entry, r.retention)
}

func (r *SupportRepository) Get(_ context.Context, id string) (*domain.SupportChat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, err := r.get(id)
	if err != nil {
		return nil, err
	}
	return entry.chat.Clone(), nil
}

func (r *SupportRepository) Update(_ context.Context, id string, fn func(chat *domain.SupportChat) error) (*domain.SupportChat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, err := r.get(id)
	if err != nil {
		return nil, err
	}
	chat := entry.chat.Clone()
	if err := fn(chat); err != nil {
		return nil, err
	}

	ttl := entry.expiresAt.Sub(r.clock.Now())
	if ttl <= 0 {
		return nil, repository.ErrNotFound
	}
	if err := r.chats.SetWithExpire(id, &supportEntry{chat: chat, expiresAt: entry.expiresAt}, ttl); err != nil {
		return nil, err
	}
	return chat.Clone(), nil
}

func (r *SupportRepository) List(_ context.Context, filter repository.SupportFilter) ([]*domain.SupportChat, error) {
	r.mu.Lock()
	all := r.chats.GetALL(false)
	r.mu.Unlock()

	// GetALL checks expiry against the wall clock, not the cache clock.
	now := r.clock.Now()
	out := make([]*domain.SupportChat, 0, len(all))
	for _, v := range all {
		entry := v.(*supportEntry)
		if !entry.expiresAt.After(now) {
			continue
		}
		chat := entry.chat
		if filter.AccountID != "" && chat.AccountID != filter.AccountID {
			continue
		}
		if filter.Status != "" && chat.Status != filter.Status {
			continue
		}
		if filter.UserType != "" && chat.UserType != filter.UserType {
			continue
		}
		out = append(out, chat.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *SupportRepository) get(id string) (*supportEntry, error) {
	v, err := r.chats.Get(id)
	if err == gcache.KeyNotFoundError {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v.(*supportEntry), nil
}
