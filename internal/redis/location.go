package redis

import (
	"context"

	"github.com/redis/go-redis/v9"

	"rapidride/internal/domain"
)

const driverLocationKey = keyPrefix + "drivers:locations"

// LocationStore is the GEO index of online driver positions. Writes take a
// redis.Cmdable so they can join a presence pipeline.
type LocationStore struct{}

func (LocationStore) add(ctx context.Context, c redis.Cmdable, accountID string, loc domain.Location) *redis.IntCmd {
	return c.GeoAdd(ctx, driverLocationKey, &redis.GeoLocation{
		Name:      accountID,
		Longitude: loc.Lng,
		Latitude:  loc.Lat,
	})
}

func (LocationStore) remove(ctx context.Context, c redis.Cmdable, accountID string) *redis.IntCmd {
	return c.ZRem(ctx, driverLocationKey, accountID)
}

// distances returns the distance in km from loc of every indexed driver
// within radiusKm.
func (LocationStore) distances(ctx context.Context, c redis.Cmdable, loc domain.Location, radiusKm float64) (map[string]float64, error) {
	found, err := c.GeoSearchLocation(ctx, driverLocationKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  loc.Lng,
			Latitude:   loc.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
		WithDist: true,
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(found))
	for _, g := range found {
		out[g.Name] = g.Dist
	}
	return out, nil
}
