// README: Nearby search; evaluates OPEN candidates concurrently and pages the sorted matches.
package matching

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"tripshare/internal/config"
	"tripshare/internal/geo"
)

// CandidateSource lists OPEN trips starting inside [from, to].
type CandidateSource interface {
	OpenCandidates(ctx context.Context, from, to time.Time) ([]Candidate, error)
}

type Service struct {
	source  CandidateSource
	matcher *Matcher
	cfg     config.MatchingConfig
	log     logrus.FieldLogger
}

func NewService(source CandidateSource, routes RouteSource, cfg config.MatchingConfig, log logrus.FieldLogger) *Service {
	return &Service{
		source:  source,
		matcher: NewMatcher(routes, cfg.StartWindow),
		cfg:     cfg,
		log:     log,
	}
}

// FindNearby returns the trips req can join, closest pickup first. A route
// failure drops only that candidate unless every routed candidate failed.
func (s *Service) FindNearby(ctx context.Context, q NearbyQuery) ([]Match, error) {
	candidates, err := s.source.OpenCandidates(ctx, q.StartTime.Add(-s.cfg.StartWindow), q.StartTime.Add(s.cfg.StartWindow))
	if err != nil {
		return nil, err
	}

	// Results are slotted by candidate index so ties keep the source order.
	slots := make([]*Match, len(candidates))
	var (
		mu       sync.Mutex
		routed   int
		failed   int
		firstErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, c := range candidates {
		if !s.matcher.Eligible(c, q.Request) {
			continue
		}
		routed++
		g.Go(func() error {
			m, ok, err := s.matcher.Match(gctx, c, q.Request)
			if err != nil {
				s.log.WithError(err).WithField("trip_id", c.TripID).Warn("matching: skip candidate, route unavailable")
				mu.Lock()
				failed++
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return nil
			}
			if ok {
				slots[i] = &m
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if routed > 0 && failed == routed {
		return nil, firstErr
	}

	matches := make([]Match, 0, len(slots))
	for _, m := range slots {
		if m != nil {
			matches = append(matches, *m)
		}
	}

	geo.SortByDistance(matches, func(m Match) float64 { return m.Pickup.DistanceMeters })
	return page(matches, q.Skip, q.Take, s.cfg.PageSize), nil
}

func page(matches []Match, skip, take, defaultTake int) []Match {
	if skip < 0 {
		skip = 0
	}
	if take <= 0 {
		take = defaultTake
	}
	if skip >= len(matches) {
		return []Match{}
	}
	end := skip + take
	if end > len(matches) {
		end = len(matches)
	}
	return matches[skip:end]
}
