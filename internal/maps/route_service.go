package maps

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"googlemaps.github.io/maps"

	"tripshare/internal/geo"
	"tripshare/internal/modules/routing"
	"tripshare/internal/types"
)

// RouteService handles interactions with the Google Maps Directions API.
type RouteService struct {
	client *maps.Client
}

// NewRouteService creates a new RouteService with the given API Key.
func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// Directions returns the driving route between two coordinates, with the
// overview polyline decoded into a path.
func (s *RouteService) Directions(ctx context.Context, origin, destination types.Point) (routing.Route, error) {
	r := &maps.DirectionsRequest{
		Origin:      latLng(origin),
		Destination: latLng(destination),
		Mode:        maps.TravelModeDriving,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return routing.Route{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return routing.Route{}, routing.ErrRouteNotFound
	}

	route := routes[0]
	path, err := geo.DecodePolyline(route.OverviewPolyline.Points)
	if err != nil {
		return routing.Route{}, err
	}

	var meters int
	var duration time.Duration
	for _, leg := range route.Legs {
		meters += leg.Distance.Meters
		duration += leg.Duration
	}
	return routing.Route{
		Origin:         origin,
		Destination:    destination,
		Path:           path,
		Polyline:       route.OverviewPolyline.Points,
		DistanceMeters: float64(meters),
		Duration:       duration,
	}, nil
}

func latLng(p types.Point) string {
	return strconv.FormatFloat(p.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lng, 'f', 6, 64)
}
