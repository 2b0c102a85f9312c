package handlers

import (
	"encoding/json"
	"net/http"
)

type invalidateRequest struct {
	Keys []string `json:"keys,omitempty"`
	IP   string   `json:"ip,omitempty"`
}

// InvalidateCache drops edge-cache objects by key and/or the geolocation
// entry for an IP, forcing re-resolution on next sight. The geo entry is
// removed through the same cache the resolver reads, whichever backend is
// configured.
func (h *ProxyHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Keys) == 0 && req.IP == "" {
		writeJSONError(w, http.StatusBadRequest, "nothing to invalidate")
		return
	}

	invalidated := 0
	for _, key := range req.Keys {
		if h.edge == nil {
			break
		}
		if err := h.edge.Delete(r.Context(), key); err != nil {
			h.log.WithError(err).WithField("key", key).Warn("Edge cache invalidation failed")
			continue
		}
		invalidated++
	}

	if req.IP != "" {
		if err := h.geoCache.Delete(r.Context(), req.IP); err != nil {
			h.log.WithError(err).WithField("ip", req.IP).Warn("Geo cache invalidation failed")
		} else {
			invalidated++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"invalidated": invalidated})
}
