package redisgeo

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/ports"
)

// Index keeps driver last-known locations in a Redis GEO set and answers the
// selector's radius queries.
type Index struct {
	client *redis.Client
	key    string
}

// NewClient connects to Redis and verifies the connection with a ping.
func NewClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewIndex constructs a GeoIndex storing positions under the given key.
func NewIndex(client *redis.Client, key string) ports.GeoIndex {
	return &Index{client: client, key: key}
}

// Upsert records the driver's last-known position. GEOADD updates the member
// in place, so repeated pings from the same driver keep a single entry.
func (idx *Index) Upsert(ctx context.Context, driverID string, loc geo.Point) error {
	return idx.client.GeoAdd(ctx, idx.key, &redis.GeoLocation{
		Name:      driverID,
		Longitude: loc.Longitude,
		Latitude:  loc.Latitude,
	}).Err()
}

// Remove drops the driver from the index when they go offline. GEO sets are
// plain sorted sets underneath, so ZREM is the removal primitive.
func (idx *Index) Remove(ctx context.Context, driverID string) error {
	return idx.client.ZRem(ctx, idx.key, driverID).Err()
}

// Nearby returns driver ids within radiusKM of center, nearest first.
func (idx *Index) Nearby(ctx context.Context, center geo.Point, radiusKM float64, limit int) ([]string, error) {
	results, err := idx.client.GeoSearch(ctx, idx.key, &redis.GeoSearchQuery{
		Longitude:  center.Longitude,
		Latitude:   center.Latitude,
		Radius:     radiusKM,
		RadiusUnit: "km",
		Sort:       "ASC",
		Count:      limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("geo search: %w", err)
	}
	return results, nil
}
