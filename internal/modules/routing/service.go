// README: Routing service fronts the provider with a TTL cache and a bounded call timeout.
package routing

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"tripshare/internal/config"
	"tripshare/internal/types"
)

type Service struct {
	provider Provider
	cache    Cache
	cfg      config.RoutingConfig
	log      logrus.FieldLogger
}

func NewService(provider Provider, cache Cache, cfg config.RoutingConfig, log logrus.FieldLogger) *Service {
	return &Service{provider: provider, cache: cache, cfg: cfg, log: log}
}

// Route returns the cached route for the pair or fetches it from the provider.
// Cache failures fall through to the provider; provider failures surface as *ProviderError.
func (s *Service) Route(ctx context.Context, origin, destination types.Point) (Route, error) {
	key := CacheKey(origin, destination)
	r, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.WithError(err).WithField("key", key).Warn("route cache read failed")
	}
	if ok {
		return r, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	started := time.Now()
	r, err = s.provider.Directions(callCtx, origin, destination)
	if err != nil {
		return Route{}, &ProviderError{Err: err}
	}
	s.log.WithFields(logrus.Fields{
		"key":        key,
		"distance_m": r.DistanceMeters,
		"latency_ms": time.Since(started).Milliseconds(),
	}).Debug("route fetched")

	if err := s.cache.Set(ctx, key, r, s.cfg.CacheTTL); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("route cache write failed")
	}
	return r, nil
}
