package matching

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripshare/internal/config"
	"tripshare/internal/modules/routing"
	"tripshare/internal/types"
)

type straightRoutes struct {
	mu    sync.Mutex
	fail  map[types.Point]error
	calls int
}

func (r *straightRoutes) Route(_ context.Context, origin, destination types.Point) (routing.Route, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if err, ok := r.fail[origin]; ok {
		return routing.Route{}, err
	}
	return routing.Route{Origin: origin, Destination: destination, Path: []types.Point{origin, destination}}, nil
}

type staticSource struct {
	candidates []Candidate
}

func (s staticSource) OpenCandidates(context.Context, time.Time, time.Time) ([]Candidate, error) {
	return s.candidates, nil
}

var start = time.Date(2026, 10, 20, 8, 0, 0, 0, time.UTC)

func northbound(id types.ID, lng float64) Candidate {
	return Candidate{
		TripID:         id,
		From:           types.Point{Lat: 30, Lng: lng},
		To:             types.Point{Lat: 31, Lng: lng},
		StartTime:      start,
		Open:           true,
		AvailableSeats: 2,
	}
}

func northRequest() Request {
	return Request{
		UserID:    "rider",
		Pickup:    types.Point{Lat: 30.5, Lng: 31},
		Drop:      types.Point{Lat: 30.9, Lng: 31},
		Seats:     1,
		StartTime: start,
	}
}

func testService(src CandidateSource, routes RouteSource) *Service {
	l := logrus.New()
	l.SetOutput(io.Discard)
	cfg := config.MatchingConfig{Concurrency: 4, StartWindow: 30 * time.Minute, PageSize: 10}
	return NewService(src, routes, cfg, l)
}

func TestToleranceMeters(t *testing.T) {
	origin := types.Point{Lat: 0, Lng: 0}
	cases := []struct {
		name string
		lat  float64
		want float64
	}{
		{"short", 0.45, 40000},  // ~50 km
		{"medium", 1.35, 60000}, // ~150 km
		{"long", 2.25, 80000},   // ~250 km
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ToleranceMeters(origin, types.Point{Lat: tc.lat, Lng: 0})
			if got != tc.want {
				t.Fatalf("tolerance: got %v want %v", got, tc.want)
			}
		})
	}
}

func TestCheckPoint_OnPathAcceptedRegardlessOfBearing(t *testing.T) {
	from := types.Point{Lat: 0, Lng: 0}
	to := types.Point{Lat: 1, Lng: 1}
	path := []types.Point{from, {Lat: 1, Lng: 0}, to}

	got := CheckPoint(types.Point{Lat: 0.5, Lng: 0}, from, to, path)
	if !got.OnRoute {
		t.Fatalf("expected point on the path to be accepted: %+v", got)
	}
	if got.DistanceMeters > 1e-6 {
		t.Fatalf("distance: got %v want 0", got.DistanceMeters)
	}
	if math.Abs(got.T-0.25) > 1e-9 {
		t.Fatalf("t: got %v want 0.25", got.T)
	}
}

func TestCheckPoint_PerpendicularBeyondToleranceRejected(t *testing.T) {
	from := types.Point{Lat: 0, Lng: 0}
	to := types.Point{Lat: 1, Lng: 0}

	got := CheckPoint(types.Point{Lat: 0, Lng: 1}, from, to, []types.Point{from, to})
	if got.OnRoute {
		t.Fatalf("expected rejection: %+v", got)
	}
}

// A far point bearing alongside the trip is still accepted.
func TestCheckPoint_NearParallelAcceptedBeyondTolerance(t *testing.T) {
	from := types.Point{Lat: 0, Lng: 0}
	to := types.Point{Lat: 1, Lng: 0}

	got := CheckPoint(types.Point{Lat: 2, Lng: 0.05}, from, to, []types.Point{from, to})
	if !got.OnRoute {
		t.Fatalf("expected near-parallel acceptance: %+v", got)
	}
	if got.DistanceMeters < ToleranceMeters(from, to) {
		t.Fatalf("point should lie beyond tolerance, got %v", got.DistanceMeters)
	}
}

func TestCheckPoint_ShortPathFallsBackToSegment(t *testing.T) {
	from := types.Point{Lat: 0, Lng: 0}
	to := types.Point{Lat: 1, Lng: 0}

	got := CheckPoint(types.Point{Lat: 0.5, Lng: 0}, from, to, nil)
	if !got.OnRoute || math.Abs(got.T-0.5) > 1e-9 {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestMatcher_MatchInOrder(t *testing.T) {
	m := NewMatcher(&straightRoutes{}, 30*time.Minute)
	c := northbound("trip-1", 31)

	match, ok, err := m.Match(context.Background(), c, northRequest())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Less(t, match.Pickup.T, match.Drop.T)
	assert.InDelta(t, 0.5, match.Pickup.T, 1e-9)
}

func TestMatcher_SwappedPickupAndDropFails(t *testing.T) {
	m := NewMatcher(&straightRoutes{}, 30*time.Minute)
	c := northbound("trip-1", 31)
	req := northRequest()
	req.Pickup, req.Drop = req.Drop, req.Pickup

	_, ok, err := m.Match(context.Background(), c, req)
	require.NoError(t, err)
	assert.False(t, ok)

	// Ordering alone rejects it even with the corridor check bypassed.
	_, ok, _ = matchOnPath(c, req, []types.Point{c.From, c.To})
	assert.False(t, ok)
}

func TestMatcher_Eligible(t *testing.T) {
	m := NewMatcher(&straightRoutes{}, 30*time.Minute)
	req := northRequest()

	cases := []struct {
		name   string
		mutate func(c *Candidate)
		want   bool
	}{
		{"eligible", func(*Candidate) {}, true},
		{"not open", func(c *Candidate) { c.Open = false }, false},
		{"no seats", func(c *Candidate) { c.AvailableSeats = 0 }, false},
		{"starts too late", func(c *Candidate) { c.StartTime = start.Add(31 * time.Minute) }, false},
		{"starts too early", func(c *Candidate) { c.StartTime = start.Add(-31 * time.Minute) }, false},
		{"edge of window", func(c *Candidate) { c.StartTime = start.Add(30 * time.Minute) }, true},
		{"already member", func(c *Candidate) { c.MemberIDs = []types.ID{"rider"} }, false},
		{"wrong corridor", func(c *Candidate) { c.To = types.Point{Lat: 30, Lng: 32} }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := northbound("trip-1", 31)
			tc.mutate(&c)
			assert.Equal(t, tc.want, m.Eligible(c, req))
		})
	}
}

func TestService_FindNearbySortsThenPages(t *testing.T) {
	src := staticSource{candidates: []Candidate{
		northbound("far", 31.2),
		northbound("exact", 31),
		northbound("near", 31.1),
	}}
	svc := testService(src, &straightRoutes{})

	got, err := svc.FindNearby(context.Background(), NearbyQuery{Request: northRequest()})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, types.ID("exact"), got[0].Candidate.TripID)
	assert.Equal(t, types.ID("near"), got[1].Candidate.TripID)
	assert.Equal(t, types.ID("far"), got[2].Candidate.TripID)

	paged, err := svc.FindNearby(context.Background(), NearbyQuery{Request: northRequest(), Skip: 1, Take: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, types.ID("near"), paged[0].Candidate.TripID)

	empty, err := svc.FindNearby(context.Background(), NearbyQuery{Request: northRequest(), Skip: 5})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestService_FindNearbySkipsFailedRoute(t *testing.T) {
	broken := northbound("broken", 31.1)
	routes := &straightRoutes{fail: map[types.Point]error{
		broken.From: &routing.ProviderError{Err: errors.New("quota")},
	}}
	svc := testService(staticSource{candidates: []Candidate{northbound("ok", 31), broken}}, routes)

	got, err := svc.FindNearby(context.Background(), NearbyQuery{Request: northRequest()})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, types.ID("ok"), got[0].Candidate.TripID)
}

func TestService_FindNearbyAllRoutesFail(t *testing.T) {
	broken := northbound("broken", 31)
	routes := &straightRoutes{fail: map[types.Point]error{
		broken.From: &routing.ProviderError{Err: errors.New("quota")},
	}}
	svc := testService(staticSource{candidates: []Candidate{broken}}, routes)

	_, err := svc.FindNearby(context.Background(), NearbyQuery{Request: northRequest()})
	var perr *routing.ProviderError
	require.ErrorAs(t, err, &perr)
}

func TestService_FindNearbyIneligibleSkipsRouting(t *testing.T) {
	closed := northbound("closed", 31)
	closed.Open = false
	routes := &straightRoutes{}
	svc := testService(staticSource{candidates: []Candidate{closed}}, routes)

	got, err := svc.FindNearby(context.Background(), NearbyQuery{Request: northRequest()})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, routes.calls)
}

func TestService_FindNearbyCancelled(t *testing.T) {
	svc := testService(staticSource{candidates: []Candidate{northbound("ok", 31)}}, &straightRoutes{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := svc.FindNearby(ctx, NearbyQuery{Request: northRequest()})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, got)
}
