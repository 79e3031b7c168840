// Package geo contains pure geographic computation helpers shared by routing and matching.
package geo

import (
	"errors"
	"fmt"
	"math"

	"googlemaps.github.io/maps"

	"tripshare/internal/types"
)

const earthRadiusMeters = 6371000.0

var ErrDecode = errors.New("malformed polyline")

// Projection is the closest point on a segment to a probe point.
type Projection struct {
	Point          types.Point
	DistanceMeters float64
	// T is the clamped position along the segment, 0 at a and 1 at b.
	T float64
}

// HaversineMeters returns the great-circle distance between two points.
func HaversineMeters(p1, p2 types.Point) float64 {
	dLat := degreesToRadians(p2.Lat - p1.Lat)
	dLng := degreesToRadians(p2.Lng - p1.Lng)

	rLat1 := degreesToRadians(p1.Lat)
	rLat2 := degreesToRadians(p2.Lat)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// HaversineKm is HaversineMeters in kilometres.
func HaversineKm(p1, p2 types.Point) float64 {
	return HaversineMeters(p1, p2) / 1000
}

// BearingDegrees returns the initial compass bearing from p1 to p2 in [0,360).
func BearingDegrees(p1, p2 types.Point) float64 {
	dLng := degreesToRadians(p2.Lng - p1.Lng)
	rLat1 := degreesToRadians(p1.Lat)
	rLat2 := degreesToRadians(p2.Lat)

	y := math.Sin(dLng) * math.Cos(rLat2)
	x := math.Cos(rLat1)*math.Sin(rLat2) - math.Sin(rLat1)*math.Cos(rLat2)*math.Cos(dLng)

	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// BearingDiff folds the absolute difference of two bearings into [0,180].
func BearingDiff(a, b float64) float64 {
	d := math.Abs(math.Mod(a-b, 360))
	if d > 180 {
		d = 360 - d
	}
	return d
}

// ClosestPointOnSegment projects p onto a-b treating (lng, lat) as planar
// coordinates, then measures the true great-circle distance to the projection.
func ClosestPointOnSegment(p, a, b types.Point) Projection {
	vx, vy := b.Lng-a.Lng, b.Lat-a.Lat
	wx, wy := p.Lng-a.Lng, p.Lat-a.Lat

	lenSq := vx*vx + vy*vy
	t := 0.0
	if lenSq > 0 {
		t = (wx*vx + wy*vy) / lenSq
	}
	t = math.Max(0, math.Min(1, t))

	proj := types.Point{
		Lat: a.Lat + t*(b.Lat-a.Lat),
		Lng: a.Lng + t*(b.Lng-a.Lng),
	}
	return Projection{Point: proj, DistanceMeters: HaversineMeters(p, proj), T: t}
}

// DecodePolyline decodes a Google encoded polyline into an ordered path.
func DecodePolyline(encoded string) ([]types.Point, error) {
	if encoded == "" {
		return nil, nil
	}
	if err := validatePolyline(encoded); err != nil {
		return nil, err
	}
	latLngs, err := maps.DecodePolyline(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	path := make([]types.Point, len(latLngs))
	for i, ll := range latLngs {
		path[i] = types.Point{Lat: ll.Lat, Lng: ll.Lng}
	}
	return path, nil
}

// validatePolyline rejects characters outside the encoding alphabet and
// inputs that end mid-value or carry a latitude without its longitude.
func validatePolyline(encoded string) error {
	values := 0
	open := false
	for i := 0; i < len(encoded); i++ {
		c := encoded[i]
		if c < 63 || c > 126 {
			return fmt.Errorf("%w: invalid character %q at offset %d", ErrDecode, c, i)
		}
		open = (c-63)&0x20 != 0
		if !open {
			values++
		}
	}
	if open {
		return fmt.Errorf("%w: truncated value", ErrDecode)
	}
	if values%2 != 0 {
		return fmt.Errorf("%w: odd number of coordinates", ErrDecode)
	}
	return nil
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// SortByDistance performs an insertion sort (fine for small N) on any slice
// where each element exposes a distance via the accessor function. It is stable.
func SortByDistance[T any](items []T, dist func(T) float64) {
	for i := 1; i < len(items); i++ {
		key := items[i]
		j := i - 1
		for j >= 0 && dist(items[j]) > dist(key) {
			items[j+1] = items[j]
			j--
		}
		items[j+1] = key
	}
}
