package origin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestValidateTarget(t *testing.T) {
	cases := []struct {
		raw string
		ok  bool
	}{
		{"https://origin.example.com/stream/e1.m3u8", true},
		{"http://origin.example.com", true},
		{"ftp://origin.example.com/file", false},
		{"://bad", false},
		{"/relative/path", false},
		{"", false},
	}

	for _, tc := range cases {
		_, err := ValidateTarget(tc.raw)
		if tc.ok {
			assert.NoError(t, err, tc.raw)
		} else {
			assert.Error(t, err, tc.raw)
		}
	}
}

func TestFetchRewritesHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(testLogger(), 5*time.Second)
	in := http.Header{}
	in.Set("Referer", "https://player.example.com")
	in.Set("Connection", "close")
	in.Set("Transfer-Encoding", "chunked")

	resp, err := c.Fetch(context.Background(), http.MethodGet, srv.URL, in, nil, "198.51.100.7")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "198.51.100.7", got.Get("X-Forwarded-For"))
	assert.Equal(t, "198.51.100.7", got.Get("X-Real-IP"))
	assert.Equal(t, defaultUserAgent, got.Get("User-Agent"))
	assert.Equal(t, "*/*", got.Get("Accept"))
	assert.Equal(t, "https://player.example.com", got.Get("Referer"))
	assert.Empty(t, got.Get("Transfer-Encoding"), "hop-by-hop headers must not be forwarded")

	assert.Empty(t, resp.Header.Get("Connection"), "hop-by-hop response headers must be stripped")
}

func TestFetchPreservesCallerUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.UserAgent()
	}))
	defer srv.Close()

	c := NewClient(testLogger(), 5*time.Second)
	in := http.Header{}
	in.Set("User-Agent", "Roku/DVP-12.0")

	resp, err := c.Fetch(context.Background(), http.MethodGet, srv.URL, in, nil, "")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Roku/DVP-12.0", got)
}

func TestFetchTimeoutCancelsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(testLogger(), 50*time.Millisecond)
	_, err := c.Fetch(context.Background(), http.MethodGet, srv.URL, nil, nil, "")
	assert.Error(t, err)
}
