package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Provider is one external geolocation service. Implementations return an
// error for anything short of a well-formed success response; the chain
// moves on to the next provider.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, ip string) (Result, error)
}

type loggingTransport struct {
	log *logrus.Entry
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	log := t.log.WithFields(logrus.Fields{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := http.DefaultTransport.RoundTrip(req)
	if err != nil {
		log.WithError(err).Error("HTTP request failed")
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"status_code": resp.StatusCode,
		"duration":    time.Since(start),
	}).Debug("HTTP request completed")
	return resp, nil
}

func newProviderClient(logger *logrus.Logger, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &loggingTransport{log: logger.WithField("component", "geo_transport")},
	}
}

// IPAPIProvider queries ip-api.com. Success is discriminated by the
// "status" field; the fields parameter trims the response to what we use.
type IPAPIProvider struct {
	httpClient *http.Client
	baseURL    string
}

func NewIPAPIProvider(logger *logrus.Logger, timeout time.Duration) *IPAPIProvider {
	return &IPAPIProvider{
		httpClient: newProviderClient(logger, timeout),
		baseURL:    "http://ip-api.com",
	}
}

func (p *IPAPIProvider) Name() string { return "ip-api" }

func (p *IPAPIProvider) Resolve(ctx context.Context, ip string) (Result, error) {
	url := fmt.Sprintf("%s/json/%s?fields=status,message,country,countryCode,regionName,city,lat,lon,timezone,isp", p.baseURL, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("ip-api returned status %d", resp.StatusCode)
	}

	var body struct {
		Status      string  `json:"status"`
		Message     string  `json:"message"`
		Country     string  `json:"country"`
		CountryCode string  `json:"countryCode"`
		RegionName  string  `json:"regionName"`
		City        string  `json:"city"`
		Lat         float64 `json:"lat"`
		Lon         float64 `json:"lon"`
		Timezone    string  `json:"timezone"`
		ISP         string  `json:"isp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, fmt.Errorf("ip-api response malformed: %w", err)
	}
	if body.Status != "success" {
		return Result{}, fmt.Errorf("ip-api resolution failed: %s", body.Message)
	}

	return Result{
		Country:     body.Country,
		CountryCode: body.CountryCode,
		Region:      body.RegionName,
		City:        body.City,
		Latitude:    body.Lat,
		Longitude:   body.Lon,
		Timezone:    body.Timezone,
		ISP:         body.ISP,
	}, nil
}

// IPWhoisProvider queries ipwho.is. Success is discriminated by the
// "success" boolean.
type IPWhoisProvider struct {
	httpClient *http.Client
	baseURL    string
}

func NewIPWhoisProvider(logger *logrus.Logger, timeout time.Duration) *IPWhoisProvider {
	return &IPWhoisProvider{
		httpClient: newProviderClient(logger, timeout),
		baseURL:    "https://ipwho.is",
	}
}

func (p *IPWhoisProvider) Name() string { return "ipwhois" }

func (p *IPWhoisProvider) Resolve(ctx context.Context, ip string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s", p.baseURL, ip), nil)
	if err != nil {
		return Result{}, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("ipwho.is returned status %d", resp.StatusCode)
	}

	var body struct {
		Success     bool    `json:"success"`
		Message     string  `json:"message"`
		Country     string  `json:"country"`
		CountryCode string  `json:"country_code"`
		Region      string  `json:"region"`
		City        string  `json:"city"`
		Latitude    float64 `json:"latitude"`
		Longitude   float64 `json:"longitude"`
		Timezone    struct {
			ID string `json:"id"`
		} `json:"timezone"`
		Connection struct {
			ISP string `json:"isp"`
		} `json:"connection"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, fmt.Errorf("ipwho.is response malformed: %w", err)
	}
	if !body.Success {
		return Result{}, fmt.Errorf("ipwho.is resolution failed: %s", body.Message)
	}

	return Result{
		Country:     body.Country,
		CountryCode: body.CountryCode,
		Region:      body.Region,
		City:        body.City,
		Latitude:    body.Latitude,
		Longitude:   body.Longitude,
		Timezone:    body.Timezone.ID,
		ISP:         body.Connection.ISP,
	}, nil
}

// IPAPICoProvider queries ipapi.co. Failure is discriminated by the
// presence of an "error" field.
type IPAPICoProvider struct {
	httpClient *http.Client
	baseURL    string
}

func NewIPAPICoProvider(logger *logrus.Logger, timeout time.Duration) *IPAPICoProvider {
	return &IPAPICoProvider{
		httpClient: newProviderClient(logger, timeout),
		baseURL:    "https://ipapi.co",
	}
}

func (p *IPAPICoProvider) Name() string { return "ipapi.co" }

func (p *IPAPICoProvider) Resolve(ctx context.Context, ip string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s/json/", p.baseURL, ip), nil)
	if err != nil {
		return Result{}, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("ipapi.co returned status %d", resp.StatusCode)
	}

	var body struct {
		Error       bool    `json:"error"`
		Reason      string  `json:"reason"`
		CountryName string  `json:"country_name"`
		CountryCode string  `json:"country_code"`
		Region      string  `json:"region"`
		City        string  `json:"city"`
		Latitude    float64 `json:"latitude"`
		Longitude   float64 `json:"longitude"`
		Timezone    string  `json:"timezone"`
		Org         string  `json:"org"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, fmt.Errorf("ipapi.co response malformed: %w", err)
	}
	if body.Error {
		return Result{}, fmt.Errorf("ipapi.co resolution failed: %s", body.Reason)
	}

	return Result{
		Country:     body.CountryName,
		CountryCode: body.CountryCode,
		Region:      body.Region,
		City:        body.City,
		Latitude:    body.Latitude,
		Longitude:   body.Longitude,
		Timezone:    body.Timezone,
		ISP:         body.Org,
	}, nil
}
