// Package session tracks viewing-session and episode continuity across
// otherwise-stateless requests, so analytics can reconstruct sessions.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Change types reported by Track, coarsest first.
const (
	ChangeSessionChange = "session_change"
	ChangeNewEpisode    = "new_episode"
	ChangeContinuation  = "continuation"
)

type TrackInput struct {
	ClientIP          string
	SessionID         string
	PreviousSessionID string
	EpisodeID         string
	ContentID         string
	Now               time.Time
}

type TrackResult struct {
	SessionID         string
	PreviousSessionID string
	ChangeType        string
}

type Tracker struct {
	history    HistoryStore
	inactivity time.Duration
	log        *logrus.Entry
}

func NewTracker(logger *logrus.Logger, history HistoryStore, inactivity time.Duration) *Tracker {
	return &Tracker{
		history:    history,
		inactivity: inactivity,
		log:        logger.WithField("component", "session_tracker"),
	}
}

// Track resolves the session for a request and classifies it against the
// most recent observation for that session.
//
// A caller-supplied session ID is trusted as the session key. Without one,
// the tracker reuses the IP's last session if it was seen within the
// inactivity window, otherwise it mints a new session.
//
// When both a session boundary and an episode change are detected at once,
// session_change wins: it is the coarser event and the episode change is
// implied by it.
func (t *Tracker) Track(ctx context.Context, in TrackInput) TrackResult {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	sessionID := in.SessionID
	if sessionID == "" {
		sessionID = t.resolveByIP(ctx, in.ClientIP, now)
	}

	res := TrackResult{SessionID: sessionID}

	sessionBoundary := in.PreviousSessionID != "" && in.PreviousSessionID != sessionID
	if sessionBoundary {
		res.PreviousSessionID = in.PreviousSessionID
	}

	prev, err := t.history.LastEpisode(ctx, sessionID)
	if err != nil {
		// Availability over strict accuracy: classify as a first
		// observation and move on.
		t.log.WithError(err).WithField("session_id", sessionID).Warn("Session history lookup failed")
		res.ChangeType = ChangeNewEpisode
		if sessionBoundary {
			res.ChangeType = ChangeSessionChange
		}
		t.record(ctx, sessionID, in, now)
		return res
	}

	switch {
	case sessionBoundary:
		res.ChangeType = ChangeSessionChange
	case prev == nil:
		res.ChangeType = ChangeNewEpisode
	case in.EpisodeID != "" && prev.EpisodeID != in.EpisodeID:
		// Episode advanced within the same session.
		res.ChangeType = ChangeNewEpisode
	default:
		res.ChangeType = ChangeContinuation
	}

	t.record(ctx, sessionID, in, now)
	return res
}

func (t *Tracker) resolveByIP(ctx context.Context, ip string, now time.Time) string {
	last, lastSeen, err := t.history.LastSessionForIP(ctx, ip)
	if err != nil {
		t.log.WithError(err).WithField("client_ip", ip).Warn("IP correlation lookup failed")
		return uuid.NewString()
	}
	if last != "" && now.Sub(lastSeen) < t.inactivity {
		return last
	}
	return uuid.NewString()
}

func (t *Tracker) record(ctx context.Context, sessionID string, in TrackInput, now time.Time) {
	if in.EpisodeID != "" {
		if err := t.history.Record(ctx, sessionID, EpisodeRecord{EpisodeID: in.EpisodeID, Timestamp: now}); err != nil {
			t.log.WithError(err).Warn("Failed to record episode observation")
		}
	}
	if in.ClientIP != "" {
		if err := t.history.TouchIP(ctx, in.ClientIP, sessionID, now); err != nil {
			t.log.WithError(err).Warn("Failed to refresh IP correlation")
		}
	}
}
