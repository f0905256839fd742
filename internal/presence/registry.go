// Package presence tracks which drivers are online and where they are.
package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"rapidride/internal/domain"
	"rapidride/internal/estimator"
)

// DefaultVehicleType is used when a driver goes online without naming a vehicle.
const DefaultVehicleType = "Sedan"

// Entry is a driver's presence record. It is never persisted.
type Entry struct {
	AccountID    string
	SessionID    string
	VehicleType  string
	Location     *domain.Location
	LastActivity time.Time
}

// Registry stores driver presence entries.
type Registry interface {
	// GoOnline inserts or replaces the entry for e.AccountID.
	GoOnline(ctx context.Context, e Entry) error

	// GoOffline removes the entry. Removing an absent entry is not an error.
	GoOffline(ctx context.Context, accountID string) error

	// UpdateLocation refreshes location, session and activity of an existing entry.
	// It reports false and changes nothing when the driver is not online.
	UpdateLocation(ctx context.Context, accountID string, loc domain.Location, sessionID string) (bool, error)

	// ListOnlineMatching returns the entries whose vehicle type is in vehicleTypes.
	ListOnlineMatching(ctx context.Context, vehicleTypes []string) ([]Entry, error)

	// ListNearestMatching is ListOnlineMatching ordered by distance from
	// pickup. Entries without a known location come last.
	ListNearestMatching(ctx context.Context, vehicleTypes []string, pickup domain.Location) ([]Entry, error)

	// SweepIdle evicts entries idle for at least the idle timeout and returns how many were removed.
	SweepIdle(ctx context.Context) (int, error)

	// Count returns the number of online drivers.
	Count(ctx context.Context) (int, error)
}

// MemoryRegistry is an in-process Registry guarded by a mutex.
type MemoryRegistry struct {
	mu          sync.Mutex
	entries     map[string]Entry
	idleTimeout time.Duration
	now         func() time.Time
}

// Option configures a MemoryRegistry.
type Option func(*MemoryRegistry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *MemoryRegistry) { r.now = now }
}

// NewMemoryRegistry creates a MemoryRegistry that evicts entries idle for idleTimeout.
func NewMemoryRegistry(idleTimeout time.Duration, opts ...Option) *MemoryRegistry {
	r := &MemoryRegistry{
		entries:     make(map[string]Entry),
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ Registry = (*MemoryRegistry)(nil)

func (r *MemoryRegistry) GoOnline(_ context.Context, e Entry) error {
	if e.VehicleType == "" {
		e.VehicleType = DefaultVehicleType
	}
	if e.LastActivity.IsZero() {
		e.LastActivity = r.now()
	}

	r.mu.Lock()
	r.entries[e.AccountID] = e
	r.mu.Unlock()
	return nil
}

func (r *MemoryRegistry) GoOffline(_ context.Context, accountID string) error {
	r.mu.Lock()
	delete(r.entries, accountID)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRegistry) UpdateLocation(_ context.Context, accountID string, loc domain.Location, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[accountID]
	if !ok {
		return false, nil
	}

	now := r.now()
	if loc.UpdatedAt.IsZero() {
		loc.UpdatedAt = now
	}
	e.Location = &loc
	e.LastActivity = now
	if sessionID != "" {
		e.SessionID = sessionID
	}
	r.entries[accountID] = e
	return true, nil
}

func (r *MemoryRegistry) ListOnlineMatching(_ context.Context, vehicleTypes []string) ([]Entry, error) {
	want := make(map[string]struct{}, len(vehicleTypes))
	for _, t := range vehicleTypes {
		want[t] = struct{}{}
	}

	r.mu.Lock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if _, ok := want[e.VehicleType]; ok {
			out = append(out, e)
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

func (r *MemoryRegistry) ListNearestMatching(ctx context.Context, vehicleTypes []string, pickup domain.Location) ([]Entry, error) {
	entries, err := r.ListOnlineMatching(ctx, vehicleTypes)
	if err != nil {
		return nil, err
	}
	from := estimator.Point{Lat: pickup.Lat, Lng: pickup.Lng}
	OrderByRank(entries, func(e Entry) (float64, bool) {
		if e.Location == nil {
			return 0, false
		}
		return estimator.HaversineMeters(from, estimator.Point{Lat: e.Location.Lat, Lng: e.Location.Lng}), true
	})
	return entries, nil
}

// OrderByRank stable-sorts entries by ascending rank. Entries without a
// rank keep their relative order after the ranked ones.
func OrderByRank(entries []Entry, rank func(Entry) (float64, bool)) {
	type ranked struct {
		value float64
		ok    bool
	}
	ranks := make(map[string]ranked, len(entries))
	for _, e := range entries {
		v, ok := rank(e)
		ranks[e.AccountID] = ranked{v, ok}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := ranks[entries[i].AccountID], ranks[entries[j].AccountID]
		if a.ok != b.ok {
			return a.ok
		}
		return a.ok && a.value < b.value
	})
}

func (r *MemoryRegistry) SweepIdle(_ context.Context) (int, error) {
	cutoff := r.now().Add(-r.idleTimeout)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, e := range r.entries {
		if !e.LastActivity.After(cutoff) {
			delete(r.entries, id)
			removed++
		}
	}
	return removed, nil
}

func (r *MemoryRegistry) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries), nil
}

// Get returns a copy of the entry for accountID.
func (r *MemoryRegistry) Get(accountID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[accountID]
	return e, ok
}
