package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_proxy_requests_total",
		Help: "Proxied requests by route and status code",
	}, []string{"route", "status"})

	ProxyLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "edge_proxy_latency_seconds",
		Help:    "End-to-end proxy latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	GeoCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_proxy_geo_cache_lookups_total",
		Help: "Geolocation cache lookups by result (hit/miss)",
	}, []string{"result"})

	GeoProviderFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_proxy_geo_provider_failures_total",
		Help: "Failed geolocation provider calls by provider",
	}, []string{"provider"})

	EdgeCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_proxy_edge_cache_lookups_total",
		Help: "Edge content cache lookups by result (hit/miss/bypass)",
	}, []string{"result"})

	IngestRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_proxy_ingest_records_total",
		Help: "Analytics records by outcome (written/dropped/invalid)",
	}, []string{"outcome"})
)
