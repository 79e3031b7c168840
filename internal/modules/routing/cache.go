// README: Route caches keyed by a geohash-normalized coordinate pair (Redis and in-process).
package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mmcloughlin/geohash"
	"github.com/redis/go-redis/v9"

	"tripshare/internal/geo"
	"tripshare/internal/types"
)

const (
	routeKeyPrefix = "routing:route:%s:%s"
	// ~5m cells; coordinates closer than that share a cached route.
	keyPrecision = 9
)

// CacheKey builds the cache key for an (origin, destination) pair.
func CacheKey(origin, destination types.Point) string {
	return fmt.Sprintf(routeKeyPrefix,
		geohash.EncodeWithPrecision(origin.Lat, origin.Lng, keyPrecision),
		geohash.EncodeWithPrecision(destination.Lat, destination.Lng, keyPrecision),
	)
}

type cachedRoute struct {
	Origin         types.Point `json:"origin"`
	Destination    types.Point `json:"destination"`
	Polyline       string      `json:"polyline"`
	DistanceMeters float64     `json:"distance_m"`
	DurationSec    float64     `json:"duration_s"`
}

// RedisCache keeps the encoded polyline in Redis and decodes it on read.
type RedisCache struct {
	redis *redis.Client
}

func NewRedisCache(redis *redis.Client) *RedisCache {
	return &RedisCache{redis: redis}
}

func (c *RedisCache) Get(ctx context.Context, key string) (Route, bool, error) {
	val, err := c.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return Route{}, false, nil
	}
	if err != nil {
		return Route{}, false, err
	}
	var cr cachedRoute
	if err := json.Unmarshal(val, &cr); err != nil {
		return Route{}, false, err
	}
	path, err := geo.DecodePolyline(cr.Polyline)
	if err != nil {
		return Route{}, false, err
	}
	return Route{
		Origin:         cr.Origin,
		Destination:    cr.Destination,
		Path:           path,
		Polyline:       cr.Polyline,
		DistanceMeters: cr.DistanceMeters,
		Duration:       time.Duration(cr.DurationSec * float64(time.Second)),
	}, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, r Route, ttl time.Duration) error {
	b, err := json.Marshal(cachedRoute{
		Origin:         r.Origin,
		Destination:    r.Destination,
		Polyline:       r.Polyline,
		DistanceMeters: r.DistanceMeters,
		DurationSec:    r.Duration.Seconds(),
	})
	if err != nil {
		return err
	}
	return c.redis.Set(ctx, key, b, ttl).Err()
}

type memoryEntry struct {
	route     Route
	expiresAt time.Time
}

// MemoryCache is a process-local cache used when Redis is not configured.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) (Route, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return Route{}, false, nil
	}
	if !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return Route{}, false, nil
	}
	return e.route, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, r Route, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{route: r, expiresAt: c.now().Add(ttl)}
	return nil
}
