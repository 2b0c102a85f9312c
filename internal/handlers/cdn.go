package handlers

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sdko-org/edge-proxy/internal/metrics"
	"github.com/sdko-org/edge-proxy/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// HandleCDN serves configured-domain pass-through: the path after the
// domain segment is fetched from the domain's origin and streamed back.
// Cacheable objects are tee'd into the edge cache on the way through.
func (h *ProxyHandler) HandleCDN(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	vars := mux.Vars(r)
	domainName := vars["domain"]
	objectPath := vars["path"]

	if domainName == "" || strings.Contains(objectPath, "..") {
		writeJSONError(w, http.StatusBadRequest, "invalid path")
		return
	}

	domain, err := h.domains.FindByName(r.Context(), domainName)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSONError(w, http.StatusNotFound, "unknown domain")
			return
		}
		h.log.WithError(err).Error("Domain lookup failed")
		writeJSONError(w, http.StatusInternalServerError, "domain lookup failed")
		return
	}

	base, err := url.Parse(domain.OriginURL)
	if err != nil || base.Host == "" {
		h.log.WithFields(logrus.Fields{"domain": domainName, "origin": domain.OriginURL}).Error("Misconfigured origin URL")
		writeJSONError(w, http.StatusBadGateway, "misconfigured origin")
		return
	}
	target := *base
	target.Path = strings.TrimRight(base.Path, "/") + "/" + objectPath
	target.RawQuery = r.URL.RawQuery

	clientIP := getClientIP(r)
	e := h.resolve(r.Context(), clientIP, r)

	cacheable := domain.CacheEnabled && h.edge != nil && r.Method == http.MethodGet
	cacheKey := cdnCacheKey(domainName, objectPath)

	if cacheable {
		if content, contentType, err := h.edge.Get(r.Context(), cacheKey); err == nil {
			h.log.WithFields(logrus.Fields{"key": cacheKey, "source": "edge_cache"}).Debug("Serving object from edge cache")
			metrics.EdgeCacheLookups.WithLabelValues("hit").Inc()

			hdr := http.Header{}
			hdr.Set("Content-Type", contentType)
			normalizeResponseHeaders(w, hdr)
			w.Header().Set("X-Cache", "HIT")
			w.Header().Set("Content-Length", strconv.Itoa(len(content)))
			w.WriteHeader(http.StatusOK)
			n, _ := w.Write(content)

			elapsed := time.Since(start)
			metrics.RequestsTotal.WithLabelValues("cdn", "200").Inc()
			metrics.ProxyLatency.WithLabelValues("cdn").Observe(elapsed.Seconds())
			h.ingestCDN(r, domain, objectPath, http.StatusOK, clientIP, int64(n), elapsed, "HIT", e)
			return
		}
		metrics.EdgeCacheLookups.WithLabelValues("miss").Inc()
	} else {
		metrics.EdgeCacheLookups.WithLabelValues("bypass").Inc()
	}

	resp, err := h.origin.Fetch(r.Context(), r.Method, target.String(), r.Header, nil, clientIP)
	if err != nil {
		status := upstreamErrorStatus(err)
		writeJSONError(w, status, "origin fetch failed")
		h.ingestCDN(r, domain, objectPath, status, clientIP, 0, time.Since(start), "MISS", e)
		metrics.RequestsTotal.WithLabelValues("cdn", strconv.Itoa(status)).Inc()
		return
	}
	defer resp.Body.Close()

	cacheStatus := "BYPASS"
	var bytesSent int64

	if cacheable && resp.StatusCode == http.StatusOK && fitsEdgeCache(resp, h.cfg.EdgeCacheMaxBytes) {
		// Small object: buffer, store, relay.
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, h.cfg.EdgeCacheMaxBytes+1))
		if readErr != nil || int64(len(body)) > h.cfg.EdgeCacheMaxBytes {
			// Fall back to streaming what is left.
			normalizeResponseHeaders(w, resp.Header)
			w.Header().Set("X-Cache", "BYPASS")
			w.WriteHeader(resp.StatusCode)
			n, _ := w.Write(body)
			m, _ := io.Copy(w, resp.Body)
			bytesSent = int64(n) + m
		} else {
			contentType := resp.Header.Get("Content-Type")
			if err := h.edge.Put(r.Context(), cacheKey, body, contentType, h.cfg.EdgeCacheTTL); err != nil {
				h.log.WithError(err).Warn("Failed to store object in edge cache")
			}
			normalizeResponseHeaders(w, resp.Header)
			w.Header().Set("X-Cache", "MISS")
			w.Header().Set("Content-Length", strconv.Itoa(len(body)))
			w.WriteHeader(resp.StatusCode)
			n, _ := w.Write(body)
			bytesSent = int64(n)
			cacheStatus = "MISS"
		}
	} else {
		// Large or uncacheable: stream straight through.
		normalizeResponseHeaders(w, resp.Header)
		w.Header().Set("X-Cache", "BYPASS")
		w.Header().Del("Content-Length")
		w.WriteHeader(resp.StatusCode)
		bytesSent, _ = io.Copy(w, resp.Body)
	}

	elapsed := time.Since(start)
	metrics.RequestsTotal.WithLabelValues("cdn", strconv.Itoa(resp.StatusCode)).Inc()
	metrics.ProxyLatency.WithLabelValues("cdn").Observe(elapsed.Seconds())
	h.ingestCDN(r, domain, objectPath, resp.StatusCode, clientIP, bytesSent, elapsed, cacheStatus, e)
}

// fitsEdgeCache is a conservative pre-check: only objects with a declared
// length under the cap are buffered for caching, so streaming media never
// accumulates in memory.
func fitsEdgeCache(resp *http.Response, maxBytes int64) bool {
	cl := resp.Header.Get("Content-Length")
	if cl == "" {
		return false
	}
	n, err := strconv.ParseInt(cl, 10, 64)
	return err == nil && n > 0 && n <= maxBytes
}

func (h *ProxyHandler) ingestCDN(r *http.Request, domain *models.Domain, path string, status int, clientIP string, bytesSent int64, elapsed time.Duration, cacheStatus string, e enrichment) {
	rec := &models.AccessLog{
		Timestamp:      time.Now(),
		Domain:         domain.Name,
		DomainID:       &domain.ID,
		Path:           "/" + path,
		Method:         r.Method,
		Status:         status,
		ClientIP:       clientIP,
		UserAgent:      r.UserAgent(),
		Referer:        r.Referer(),
		DeviceType:     e.device.DeviceType,
		Country:        e.geo.Country,
		City:           e.geo.City,
		BytesSent:      bytesSent,
		ResponseTimeMs: elapsed.Milliseconds(),
		CacheStatus:    cacheStatus,
		SessionID:      strPtr(e.track.SessionID),
		EpisodeID:      strPtr(r.Header.Get(headerEpisodeID)),
		ChangeType:     strPtr(e.track.ChangeType),
	}

	if err := h.pipeline.Ingest(rec); err != nil {
		h.log.WithError(err).Warn("Access log record rejected")
	}
}
