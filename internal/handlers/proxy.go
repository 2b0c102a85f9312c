package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sdko-org/edge-proxy/internal/metrics"
	"github.com/sdko-org/edge-proxy/internal/models"
	"github.com/sdko-org/edge-proxy/internal/origin"
	"github.com/sdko-org/edge-proxy/internal/session"
	"github.com/sirupsen/logrus"
)

type proxyRequest struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// HandleProxy forwards a request in buffered mode: the origin body is read
// fully so Content-Length can be rewritten exactly.
func (h *ProxyHandler) HandleProxy(w http.ResponseWriter, r *http.Request) {
	h.handleProxy(w, r, false)
}

// HandleProxyStream forces the streamed mode: the body is piped through
// without full buffering, preserving chunked transfer for large media
// payloads.
func (h *ProxyHandler) HandleProxyStream(w http.ResponseWriter, r *http.Request) {
	h.handleProxy(w, r, true)
}

func (h *ProxyHandler) handleProxy(w http.ResponseWriter, r *http.Request, streamed bool) {
	route := "proxy"
	if streamed {
		route = "proxy_stream"
	}
	start := time.Now()

	var req proxyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Fast-fail before any cache or upstream work.
	target, err := origin.ValidateTarget(req.URL)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	clientIP := getClientIP(r)
	e := h.resolve(r.Context(), clientIP, r)

	outHeaders := http.Header{}
	for k, v := range req.Headers {
		outHeaders.Set(k, v)
	}
	if outHeaders.Get("User-Agent") == "" && r.UserAgent() != "" {
		outHeaders.Set("User-Agent", r.UserAgent())
	}

	var reqBody io.Reader
	if req.Body != "" {
		reqBody = bytes.NewReader([]byte(req.Body))
	}

	resp, err := h.origin.Fetch(r.Context(), method, target.String(), outHeaders, reqBody, clientIP)
	if err != nil {
		status := upstreamErrorStatus(err)
		writeJSONError(w, status, "origin fetch failed")
		h.ingest(r, target, method, status, clientIP, 0, time.Since(start), "BYPASS", e)
		metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		return
	}
	defer resp.Body.Close()

	var bytesSent int64
	var served int
	if streamed {
		bytesSent, served = h.relayStreamed(w, resp)
	} else {
		bytesSent, served = h.relayBuffered(w, resp)
	}

	elapsed := time.Since(start)
	metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(served)).Inc()
	metrics.ProxyLatency.WithLabelValues(route).Observe(elapsed.Seconds())

	h.ingest(r, target, method, served, clientIP, bytesSent, elapsed, "BYPASS", e)
}

// relayBuffered reads the origin body fully before relaying, so the
// Content-Length header is exact. It returns the status the client actually
// saw, which differs from the origin status when the body read fails.
func (h *ProxyHandler) relayBuffered(w http.ResponseWriter, resp *http.Response) (int64, int) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		h.log.WithError(err).Error("Failed to read origin body")
		writeJSONError(w, http.StatusBadGateway, "origin body read failed")
		return 0, http.StatusBadGateway
	}

	normalizeResponseHeaders(w, resp.Header)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(resp.StatusCode)
	n, _ := w.Write(body)
	return int64(n), resp.StatusCode
}

// relayStreamed pipes the body through without buffering it fully. A client
// disconnect cancels the upstream fetch through the request context.
func (h *ProxyHandler) relayStreamed(w http.ResponseWriter, resp *http.Response) (int64, int) {
	normalizeResponseHeaders(w, resp.Header)
	w.Header().Del("Content-Length")
	w.WriteHeader(resp.StatusCode)

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		h.log.WithError(err).Debug("Stream relay ended early")
	}
	return n, resp.StatusCode
}

func upstreamErrorStatus(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

// ingest hands the enriched record to the analytics pipeline after the
// response is complete. Fire-and-forget: failures are the pipeline's
// problem, never the client's.
func (h *ProxyHandler) ingest(r *http.Request, target *url.URL, method string, status int, clientIP string, bytesSent int64, elapsed time.Duration, cacheStatus string, e enrichment) {
	path := target.Path
	if path == "" {
		path = "/"
	}
	rec := &models.AccessLog{
		Timestamp:      time.Now(),
		Domain:         target.Host,
		Path:           path,
		Method:         method,
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

	if e.track.ChangeType == session.ChangeSessionChange {
		h.log.WithFields(logrus.Fields{
			"session_id":          e.track.SessionID,
			"previous_session_id": e.track.PreviousSessionID,
			"client_ip":           clientIP,
		}).Info("Session boundary crossed")
	}
}

func cdnCacheKey(domain, path string) string {
	return fmt.Sprintf("objects/%s/%s", domain, path)
}
