package geo

import (
	"context"

	"github.com/sdko-org/edge-proxy/internal/metrics"
	"github.com/sirupsen/logrus"
)

type Resolver struct {
	cache     Cache
	providers []Provider
	log       *logrus.Entry
}

func NewResolver(logger *logrus.Logger, cache Cache, providers ...Provider) *Resolver {
	return &Resolver{
		cache:     cache,
		providers: providers,
		log:       logger.WithField("component", "geo_resolver"),
	}
}

// Resolve returns the location for ip, cache-first. The second return value
// is false only when every provider failed; callers then record the unknown
// location and carry on. Resolve never returns an error: geolocation is
// best-effort and must not gate the proxy path.
//
// Two concurrent resolutions of the same uncached IP make redundant
// provider calls and upsert twice; the upsert is idempotent per key, so
// last writer wins.
func (r *Resolver) Resolve(ctx context.Context, ip string) (Result, bool) {
	if res, ok := r.cache.Get(ctx, ip); ok {
		metrics.GeoCacheLookups.WithLabelValues("hit").Inc()
		return res, true
	}
	metrics.GeoCacheLookups.WithLabelValues("miss").Inc()

	for _, p := range r.providers {
		res, err := p.Resolve(ctx, ip)
		if err != nil {
			metrics.GeoProviderFailures.WithLabelValues(p.Name()).Inc()
			r.log.WithFields(logrus.Fields{
				"provider": p.Name(),
				"ip":       ip,
				"error":    err,
			}).Warn("Geo provider failed, trying next")
			continue
		}

		r.cache.Upsert(ctx, ip, res)
		return res, true
	}

	r.log.WithField("ip", ip).Warn("All geo providers failed")
	return Unknown(), false
}
