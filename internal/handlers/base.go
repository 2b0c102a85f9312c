package handlers

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sdko-org/edge-proxy/internal/analytics"
	"github.com/sdko-org/edge-proxy/internal/config"
	"github.com/sdko-org/edge-proxy/internal/device"
	"github.com/sdko-org/edge-proxy/internal/geo"
	"github.com/sdko-org/edge-proxy/internal/origin"
	"github.com/sdko-org/edge-proxy/internal/session"
	"github.com/sirupsen/logrus"
)

// Session correlation headers accepted on proxy requests.
const (
	headerSessionID     = "X-Session-ID"
	headerPrevSessionID = "X-Previous-Session-ID"
	headerEpisodeID     = "X-Episode-ID"
	headerContentID     = "X-Content-ID"
)

const enrichTimeout = 6 * time.Second

type ProxyHandler struct {
	cfg      *config.Config
	origin   *origin.Client
	resolver *geo.Resolver
	tracker  *session.Tracker
	pipeline *analytics.Pipeline
	edge     EdgeCache
	geoCache geo.Cache
	domains  DomainStore
	log      *logrus.Entry
}

// EdgeCache is the optional content cache consulted on /cdn paths.
type EdgeCache interface {
	Get(ctx context.Context, key string) ([]byte, string, error)
	Put(ctx context.Context, key string, content []byte, contentType string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

func NewProxyHandler(
	logger *logrus.Logger,
	cfg *config.Config,
	originClient *origin.Client,
	resolver *geo.Resolver,
	tracker *session.Tracker,
	pipeline *analytics.Pipeline,
	edge EdgeCache,
	geoCache geo.Cache,
	domains DomainStore,
) *ProxyHandler {
	return &ProxyHandler{
		cfg:      cfg,
		origin:   originClient,
		resolver: resolver,
		tracker:  tracker,
		pipeline: pipeline,
		edge:     edge,
		geoCache: geoCache,
		domains:  domains,
		log:      logger.WithField("component", "proxy_handler"),
	}
}

// enrichment is what the resolving phase produces for one request. Every
// field degrades independently; a missing geo result or tracker failure
// never blocks forwarding.
type enrichment struct {
	device device.Classification
	geo    geo.Result
	track  session.TrackResult
}

// resolve runs device classification, geolocation and continuity tracking
// concurrently and joins before forwarding proceeds.
func (h *ProxyHandler) resolve(ctx context.Context, clientIP string, r *http.Request) enrichment {
	ctx, cancel := context.WithTimeout(ctx, enrichTimeout)
	defer cancel()

	var e enrichment
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		e.device = device.Classify(r.UserAgent())
	}()

	go func() {
		defer wg.Done()
		e.geo, _ = h.resolver.Resolve(ctx, clientIP)
	}()

	go func() {
		defer wg.Done()
		e.track = h.tracker.Track(ctx, session.TrackInput{
			ClientIP:          clientIP,
			SessionID:         r.Header.Get(headerSessionID),
			PreviousSessionID: r.Header.Get(headerPrevSessionID),
			EpisodeID:         r.Header.Get(headerEpisodeID),
			ContentID:         r.Header.Get(headerContentID),
		})
	}()

	wg.Wait()
	return e
}

func getClientIP(r *http.Request) string {
	ip := r.Header.Get("X-Forwarded-For")
	if ip == "" {
		ip = r.Header.Get("X-Real-IP")
	}
	if ip == "" {
		var err error
		ip, _, err = net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
	}
	if strings.Contains(ip, ",") {
		parts := strings.Split(ip, ",")
		ip = strings.TrimSpace(parts[0])
	}
	return ip
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
