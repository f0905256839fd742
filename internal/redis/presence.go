package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"rapidride/internal/domain"
	"rapidride/internal/presence"
)

const (
	presenceMembersKey = keyPrefix + "presence:online"
	presenceEntryKey   = keyPrefix + "presence:driver:"
)

// updateIfPresent writes the location fields only when the entry exists.
var updateIfPresent = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("HSET", KEYS[1], unpack(ARGV))
return 1
`)

// PresenceStore implements presence.Registry with one hash per driver,
// a set of online members and the shared GEO index for locations.
type PresenceStore struct {
	client      *redis.Client
	locations   LocationStore
	idleTimeout time.Duration
	now         func() time.Time
}

// NewPresenceStore creates a new PresenceStore.
func NewPresenceStore(client *redis.Client, idleTimeout time.Duration) *PresenceStore {
	return &PresenceStore{
		client:      client,
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
}

func (s *PresenceStore) GoOnline(ctx context.Context, e presence.Entry) error {
	if e.VehicleType == "" {
		e.VehicleType = presence.DefaultVehicleType
	}
	if e.LastActivity.IsZero() {
		e.LastActivity = s.now()
	}

	fields := map[string]any{
		"session_id":    e.SessionID,
		"vehicle_type":  e.VehicleType,
		"last_activity": e.LastActivity.UnixMilli(),
	}
	if e.Location != nil {
		fields["lat"] = e.Location.Lat
		fields["lng"] = e.Location.Lng
		fields["location_at"] = e.Location.UpdatedAt.UnixMilli()
	}

	key := presenceEntryKey + e.AccountID
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields)
	pipe.SAdd(ctx, presenceMembersKey, e.AccountID)
	if e.Location != nil {
		s.locations.add(ctx, pipe, e.AccountID, *e.Location)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *PresenceStore) GoOffline(ctx context.Context, accountID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, presenceEntryKey+accountID)
	pipe.SRem(ctx, presenceMembersKey, accountID)
	s.locations.remove(ctx, pipe, accountID)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *PresenceStore) UpdateLocation(ctx context.Context, accountID string, loc domain.Location, sessionID string) (bool, error) {
	now := s.now()
	if loc.UpdatedAt.IsZero() {
		loc.UpdatedAt = now
	}

	args := []any{
		"lat", loc.Lat,
		"lng", loc.Lng,
		"location_at", loc.UpdatedAt.UnixMilli(),
		"last_activity", now.UnixMilli(),
	}
	if sessionID != "" {
		args = append(args, "session_id", sessionID)
	}

	updated, err := updateIfPresent.Run(ctx, s.client, []string{presenceEntryKey + accountID}, args...).Int()
	if err != nil {
		return false, err
	}
	if updated == 0 {
		return false, nil
	}
	if err := s.locations.add(ctx, s.client, accountID, loc).Err(); err != nil {
		return true, err
	}
	return true, nil
}

func (s *PresenceStore) ListOnlineMatching(ctx context.Context, vehicleTypes []string) ([]presence.Entry, error) {
	want := make(map[string]struct{}, len(vehicleTypes))
	for _, t := range vehicleTypes {
		want[t] = struct{}{}
	}

	entries, err := s.all(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]presence.Entry, 0, len(entries))
	for _, e := range entries {
		if _, ok := want[e.VehicleType]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// nearbyRadiusKm bounds the GEO search used to rank ride request recipients.
const nearbyRadiusKm = 50

func (s *PresenceStore) ListNearestMatching(ctx context.Context, vehicleTypes []string, pickup domain.Location) ([]presence.Entry, error) {
	entries, err := s.ListOnlineMatching(ctx, vehicleTypes)
	if err != nil || len(entries) == 0 {
		return entries, err
	}
	dist, err := s.locations.distances(ctx, s.client, pickup, nearbyRadiusKm)
	if err != nil {
		return nil, err
	}
	presence.OrderByRank(entries, func(e presence.Entry) (float64, bool) {
		d, ok := dist[e.AccountID]
		return d, ok
	})
	return entries, nil
}

func (s *PresenceStore) SweepIdle(ctx context.Context) (int, error) {
	entries, err := s.all(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-s.idleTimeout)
	removed := 0
	for _, e := range entries {
		if e.LastActivity.After(cutoff) {
			continue
		}
		if err := s.GoOffline(ctx, e.AccountID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (s *PresenceStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, presenceMembersKey).Result()
	return int(n), err
}

// all loads every online entry. Members whose hash has vanished are pruned.
func (s *PresenceStore) all(ctx context.Context) ([]presence.Entry, error) {
	ids, err := s.client.SMembers(ctx, presenceMembersKey).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, presenceEntryKey+id)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	entries := make([]presence.Entry, 0, len(ids))
	var stale []any
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil || len(fields) == 0 {
			stale = append(stale, ids[i])
			continue
		}
		entries = append(entries, entryFromHash(ids[i], fields))
	}
	if len(stale) > 0 {
		_ = s.client.SRem(ctx, presenceMembersKey, stale...).Err()
	}
	return entries, nil
}

func entryFromHash(id string, fields map[string]string) presence.Entry {
	e := presence.Entry{
		AccountID:    id,
		SessionID:    fields["session_id"],
		VehicleType:  fields["vehicle_type"],
		LastActivity: millisField(fields, "last_activity"),
	}
	lat, latErr := strconv.ParseFloat(fields["lat"], 64)
	lng, lngErr := strconv.ParseFloat(fields["lng"], 64)
	if latErr == nil && lngErr == nil {
		e.Location = &domain.Location{Lat: lat, Lng: lng, UpdatedAt: millisField(fields, "location_at")}
	}
	return e
}

func millisField(fields map[string]string, name string) time.Time {
	ms, err := strconv.ParseInt(fields[name], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
