// README: Route matcher; on-route membership, direction ordering and candidate eligibility.
package matching

import (
	"context"
	"time"

	"tripshare/internal/geo"
	"tripshare/internal/modules/routing"
	"tripshare/internal/types"
)

type RouteSource interface {
	Route(ctx context.Context, origin, destination types.Point) (routing.Route, error)
}

// ToleranceMeters scales the on-route radius with the straight-line trip length.
func ToleranceMeters(origin, destination types.Point) float64 {
	total := geo.HaversineMeters(origin, destination)
	switch {
	case total > longTripLength:
		return longTripTolerance
	case total > mediumTripLength:
		return mediumTripTolerance
	default:
		return shortTripTolerance
	}
}

// CheckPoint finds the closest point of path to p and decides if p is on the
// trip's route. A path with fewer than two points is replaced by the straight
// origin-destination segment.
func CheckPoint(p types.Point, from, to types.Point, path []types.Point) PointMatch {
	if len(path) < 2 {
		path = []types.Point{from, to}
	}
	segments := float64(len(path) - 1)

	best := PointMatch{DistanceMeters: -1}
	for i := 0; i < len(path)-1; i++ {
		proj := geo.ClosestPointOnSegment(p, path[i], path[i+1])
		if best.DistanceMeters < 0 || proj.DistanceMeters < best.DistanceMeters {
			best.DistanceMeters = proj.DistanceMeters
			best.T = float64(i)/segments + proj.T/segments
		}
	}

	roadBearing := geo.BearingDegrees(from, to)
	pointBearing := geo.BearingDegrees(from, p)
	best.OnRoute = best.DistanceMeters <= ToleranceMeters(from, to) ||
		geo.BearingDiff(roadBearing, pointBearing) <= parallelMaxDiff
	return best
}

type Matcher struct {
	routes      RouteSource
	startWindow time.Duration
}

func NewMatcher(routes RouteSource, startWindow time.Duration) *Matcher {
	return &Matcher{routes: routes, startWindow: startWindow}
}

// Eligible runs the checks that need no route: status, seats, start window,
// membership and corridor direction.
func (m *Matcher) Eligible(c Candidate, req Request) bool {
	if !c.Open || c.AvailableSeats < req.Seats {
		return false
	}
	if d := c.StartTime.Sub(req.StartTime); d > m.startWindow || d < -m.startWindow {
		return false
	}
	if req.UserID != "" && c.hasMember(req.UserID) {
		return false
	}
	tripBearing := geo.BearingDegrees(c.From, c.To)
	reqBearing := geo.BearingDegrees(req.Pickup, req.Drop)
	return geo.BearingDiff(tripBearing, reqBearing) <= corridorMaxDiff
}

// Match reports whether req fits on candidate c. The returned error is only
// a routing failure; an ineligible candidate is (Match{}, false, nil).
func (m *Matcher) Match(ctx context.Context, c Candidate, req Request) (Match, bool, error) {
	if !m.Eligible(c, req) {
		return Match{}, false, nil
	}
	route, err := m.routes.Route(ctx, c.From, c.To)
	if err != nil {
		return Match{}, false, err
	}
	return matchOnPath(c, req, route.Path)
}

func matchOnPath(c Candidate, req Request, path []types.Point) (Match, bool, error) {
	pickup := CheckPoint(req.Pickup, c.From, c.To, path)
	if !pickup.OnRoute {
		return Match{}, false, nil
	}
	drop := CheckPoint(req.Drop, c.From, c.To, path)
	if !drop.OnRoute {
		return Match{}, false, nil
	}
	if pickup.T >= drop.T {
		return Match{}, false, nil
	}
	return Match{Candidate: c, Pickup: pickup, Drop: drop}, true, nil
}
