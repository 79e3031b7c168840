// README: Route value object plus the provider and cache contracts used by matching.
package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tripshare/internal/types"
)

var ErrRouteNotFound = errors.New("no route found")

// Route is a driving path between two points. It is immutable once fetched.
type Route struct {
	Origin         types.Point
	Destination    types.Point
	Path           []types.Point
	Polyline       string
	DistanceMeters float64
	Duration       time.Duration
}

func (r Route) DistanceKm() float64 {
	return r.DistanceMeters / 1000
}

// Provider fetches a route from the external routing service.
type Provider interface {
	Directions(ctx context.Context, origin, destination types.Point) (Route, error)
}

// Cache stores routes by coordinate-pair key with a time-based expiry.
type Cache interface {
	Get(ctx context.Context, key string) (Route, bool, error)
	Set(ctx context.Context, key string, r Route, ttl time.Duration) error
}

// ProviderError reports a failed call to the routing provider, timeouts included.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("routing provider: %v", e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
