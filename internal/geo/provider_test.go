package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPAPIProviderSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/json/192.0.2.1")
		assert.Contains(t, r.URL.RawQuery, "fields=")
		w.Write([]byte(`{"status":"success","country":"Germany","countryCode":"DE","regionName":"Berlin","city":"Berlin","lat":52.52,"lon":13.4,"timezone":"Europe/Berlin","isp":"Example ISP"}`))
	}))
	defer srv.Close()

	p := NewIPAPIProvider(testLogger(), time.Second)
	p.baseURL = srv.URL

	res, err := p.Resolve(context.Background(), "192.0.2.1")
	require.NoError(t, err)
	assert.Equal(t, "Germany", res.Country)
	assert.Equal(t, "DE", res.CountryCode)
	assert.Equal(t, "Europe/Berlin", res.Timezone)
	assert.Equal(t, "Example ISP", res.ISP)
}

func TestIPAPIProviderFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"fail","message":"private range"}`))
	}))
	defer srv.Close()

	p := NewIPAPIProvider(testLogger(), time.Second)
	p.baseURL = srv.URL

	_, err := p.Resolve(context.Background(), "10.0.0.1")
	assert.Error(t, err)
}

func TestIPAPIProviderMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	p := NewIPAPIProvider(testLogger(), time.Second)
	p.baseURL = srv.URL

	_, err := p.Resolve(context.Background(), "192.0.2.1")
	assert.Error(t, err)
}

func TestIPWhoisProviderSuccessDiscriminator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"country":"Japan","country_code":"JP","region":"Tokyo","city":"Tokyo","latitude":35.68,"longitude":139.69,"timezone":{"id":"Asia/Tokyo"},"connection":{"isp":"NTT"}}`))
	}))
	defer srv.Close()

	p := NewIPWhoisProvider(testLogger(), time.Second)
	p.baseURL = srv.URL

	res, err := p.Resolve(context.Background(), "192.0.2.2")
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", res.Timezone)
	assert.Equal(t, "NTT", res.ISP)
}

func TestIPAPICoProviderErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":true,"reason":"Reserved IP Address"}`))
	}))
	defer srv.Close()

	p := NewIPAPICoProvider(testLogger(), time.Second)
	p.baseURL = srv.URL

	_, err := p.Resolve(context.Background(), "240.0.0.1")
	assert.Error(t, err)
}

func TestProviderNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewIPAPIProvider(testLogger(), time.Second)
	p.baseURL = srv.URL

	_, err := p.Resolve(context.Background(), "192.0.2.3")
	assert.Error(t, err)
}
