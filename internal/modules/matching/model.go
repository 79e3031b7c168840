// README: Candidate trips, match requests and per-point route results.
package matching

import (
	"time"

	"tripshare/internal/types"
)

// Candidate is the view of an existing trip the matcher needs.
type Candidate struct {
	TripID         types.ID
	From           types.Point
	To             types.Point
	StartTime      time.Time
	Open           bool
	AvailableSeats int
	MemberIDs      []types.ID
}

func (c Candidate) hasMember(userID types.ID) bool {
	for _, id := range c.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Request describes the passenger looking for a shared trip.
type Request struct {
	UserID    types.ID
	Pickup    types.Point
	Drop      types.Point
	Seats     int
	StartTime time.Time
}

type NearbyQuery struct {
	Request
	Skip int
	Take int
}

// PointMatch is the outcome of checking one point against a trip's route.
type PointMatch struct {
	OnRoute        bool
	DistanceMeters float64
	// T is the normalized position of the closest path point, 0 at the origin and 1 at the destination.
	T float64
}

type Match struct {
	Candidate Candidate
	Pickup    PointMatch
	Drop      PointMatch
}

const (
	// corridorMaxDiff rejects candidates heading in a different direction.
	corridorMaxDiff = 25.0
	// parallelMaxDiff accepts a point whose bearing from the trip origin runs
	// alongside the trip, regardless of its distance from the path.
	parallelMaxDiff = 20.0

	shortTripTolerance  = 40000.0
	mediumTripTolerance = 60000.0
	longTripTolerance   = 80000.0
	mediumTripLength    = 100000.0
	longTripLength      = 200000.0
)
