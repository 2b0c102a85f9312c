package origin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Hop-by-hop headers are stripped before forwarding in either direction.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

const defaultUserAgent = "EdgeProxy/1.0"

type Client struct {
	httpClient *http.Client
	log        *logrus.Entry
}

type loggingTransport struct {
	log *logrus.Entry
}

func NewClient(logger *logrus.Logger, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: &loggingTransport{log: logger.WithField("component", "origin_transport")},
		},
		log: logger.WithField("component", "origin_client"),
	}
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	log := t.log.WithFields(logrus.Fields{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := http.DefaultTransport.RoundTrip(req)
	if err != nil {
		log.WithError(err).Error("Origin request failed")
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"status_code": resp.StatusCode,
		"duration":    time.Since(start),
	}).Debug("Origin request completed")
	return resp, nil
}

// ValidateTarget parses the target and rejects anything that is not a
// well-formed absolute http(s) URL, before any upstream call is made.
func ValidateTarget(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("malformed target URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("target URL has no host")
	}
	return u, nil
}

// Fetch forwards a request to the origin. Inbound headers are copied with
// hop-by-hop headers stripped, the resolved client IP is injected as
// X-Forwarded-For / X-Real-IP, and User-Agent, Accept and Accept-Encoding
// get defaults when absent. The caller owns the response body.
func (c *Client) Fetch(ctx context.Context, method, target string, headers http.Header, body io.Reader, clientIP string) (*http.Response, error) {
	u, err := ValidateTarget(target)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("building origin request: %w", err)
	}

	for k, vals := range headers {
		if isHopByHop(k) || strings.EqualFold(k, "Host") {
			continue
		}
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	if clientIP != "" {
		req.Header.Set("X-Forwarded-For", clientIP)
		req.Header.Set("X-Real-IP", clientIP)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", defaultUserAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "*/*")
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "gzip, deflate")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	for _, h := range hopByHopHeaders {
		resp.Header.Del(h)
	}
	return resp, nil
}

func isHopByHop(name string) bool {
	for _, h := range hopByHopHeaders {
		if strings.EqualFold(name, h) {
			return true
		}
	}
	return false
}
