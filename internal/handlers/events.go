package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sdko-org/edge-proxy/internal/models"
	"github.com/sdko-org/edge-proxy/internal/session"
)

type episodeEventRequest struct {
	Domain           string `json:"domain"`
	EpisodeID        string `json:"episode_id"`
	SessionID        string `json:"session_id"`
	ChangeType       string `json:"change_type,omitempty"`
	ContentID        string `json:"content_id,omitempty"`
	ClientIP         string `json:"client_ip"`
	DeviceType       string `json:"device_type,omitempty"`
	Country          string `json:"country,omitempty"`
	UserAgent        string `json:"user_agent,omitempty"`
	BytesTransferred int64  `json:"bytes_transferred,omitempty"`
	DurationSeconds  int64  `json:"duration_seconds,omitempty"`
	Quality          string `json:"quality,omitempty"`
}

type sessionEventRequest struct {
	SessionID         string `json:"session_id"`
	ClientIP          string `json:"client_ip"`
	PreviousSessionID string `json:"previous_session_id,omitempty"`
	ChangeReason      string `json:"change_reason"`
	Domain            string `json:"domain,omitempty"`
	EpisodeID         string `json:"episode_id,omitempty"`
	UserAgent         string `json:"user_agent,omitempty"`
}

// HandleEpisodeEvent ingests an explicit episode observation. The tracker
// is the change-type authority; a caller-supplied change_type is advisory
// and the tracker's classification is what gets recorded.
func (h *ProxyHandler) HandleEpisodeEvent(w http.ResponseWriter, r *http.Request) {
	var req episodeEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ClientIP == "" {
		writeJSONError(w, http.StatusBadRequest, "client_ip is required")
		return
	}
	if req.Domain == "" || req.EpisodeID == "" {
		writeJSONError(w, http.StatusBadRequest, "domain and episode_id are required")
		return
	}

	track := h.tracker.Track(r.Context(), session.TrackInput{
		ClientIP:  req.ClientIP,
		SessionID: req.SessionID,
		EpisodeID: req.EpisodeID,
		ContentID: req.ContentID,
	})

	rec := &models.AccessLog{
		Timestamp:      time.Now(),
		Domain:         req.Domain,
		Path:           "/events/episode",
		Method:         r.Method,
		Status:         http.StatusAccepted,
		ClientIP:       req.ClientIP,
		UserAgent:      req.UserAgent,
		DeviceType:     req.DeviceType,
		Country:        req.Country,
		BytesSent:      req.BytesTransferred,
		ResponseTimeMs: req.DurationSeconds * 1000,
		SessionID:      strPtr(track.SessionID),
		EpisodeID:      strPtr(req.EpisodeID),
		ChangeType:     strPtr(track.ChangeType),
	}

	if err := h.pipeline.Ingest(rec); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"session_id":  track.SessionID,
		"change_type": track.ChangeType,
	})
}

// HandleSessionEvent ingests an explicit session-boundary signal.
func (h *ProxyHandler) HandleSessionEvent(w http.ResponseWriter, r *http.Request) {
	var req sessionEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" || req.ClientIP == "" {
		writeJSONError(w, http.StatusBadRequest, "session_id and client_ip are required")
		return
	}

	track := h.tracker.Track(r.Context(), session.TrackInput{
		ClientIP:          req.ClientIP,
		SessionID:         req.SessionID,
		PreviousSessionID: req.PreviousSessionID,
		EpisodeID:         req.EpisodeID,
	})

	domain := req.Domain
	if domain == "" {
		domain = "unknown"
	}

	rec := &models.AccessLog{
		Timestamp:  time.Now(),
		Domain:     domain,
		Path:       "/events/session",
		Method:     r.Method,
		Status:     http.StatusAccepted,
		ClientIP:   req.ClientIP,
		UserAgent:  req.UserAgent,
		SessionID:  strPtr(track.SessionID),
		EpisodeID:  strPtr(req.EpisodeID),
		ChangeType: strPtr(track.ChangeType),
	}

	if err := h.pipeline.Ingest(rec); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"session_id":          track.SessionID,
		"previous_session_id": track.PreviousSessionID,
		"change_type":         track.ChangeType,
	})
}
