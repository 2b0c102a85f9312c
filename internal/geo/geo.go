// Package geo resolves client IPs to coarse locations, cache-first with an
// ordered fallback chain of external providers. Resolution is best-effort:
// the proxy path never blocks on it and never sees an error from it.
package geo

import (
	"time"
)

type Result struct {
	Country     string  `json:"country"`
	CountryCode string  `json:"country_code"`
	Region      string  `json:"region"`
	City        string  `json:"city"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Timezone    string  `json:"timezone"`
	ISP         string  `json:"isp"`
}

// Unknown is what callers get when every provider fails. The proxy still
// serves the request; records carry the unknown location.
func Unknown() Result {
	return Result{Country: "Unknown"}
}

type cachedResult struct {
	Result
	CreatedAt time.Time `json:"created_at"`
}
