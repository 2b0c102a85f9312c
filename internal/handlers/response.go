package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

const defaultCacheControl = "public, max-age=3600"

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// normalizeResponseHeaders copies origin headers onto the outbound
// response, then applies public-CDN semantics: wildcard CORS, origin
// validators passed through, and a default Cache-Control when the origin
// set none.
func normalizeResponseHeaders(w http.ResponseWriter, originHeader http.Header) {
	for k, vals := range originHeader {
		if strings.EqualFold(k, "Access-Control-Allow-Origin") {
			continue
		}
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, HEAD, OPTIONS")
	w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, ETag")

	if w.Header().Get("Cache-Control") == "" {
		w.Header().Set("Cache-Control", defaultCacheControl)
	}
}

func HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
