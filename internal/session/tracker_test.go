package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memHistory struct {
	mu       sync.Mutex
	episodes map[string]EpisodeRecord
	ips      map[string]struct {
		session  string
		lastSeen time.Time
	}
	failLookups bool
}

func newMemHistory() *memHistory {
	return &memHistory{
		episodes: make(map[string]EpisodeRecord),
		ips: make(map[string]struct {
			session  string
			lastSeen time.Time
		}),
	}
}

func (h *memHistory) LastEpisode(_ context.Context, key string) (*EpisodeRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failLookups {
		return nil, errors.New("history store down")
	}
	rec, ok := h.episodes[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (h *memHistory) Record(_ context.Context, key string, rec EpisodeRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.episodes[key] = rec
	return nil
}

func (h *memHistory) LastSessionForIP(_ context.Context, ip string) (string, time.Time, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failLookups {
		return "", time.Time{}, errors.New("history store down")
	}
	entry, ok := h.ips[ip]
	if !ok {
		return "", time.Time{}, nil
	}
	return entry.session, entry.lastSeen, nil
}

func (h *memHistory) TouchIP(_ context.Context, ip, key string, now time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ips[ip] = struct {
		session  string
		lastSeen time.Time
	}{key, now}
	return nil
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestTrackFirstObservationIsNewEpisode(t *testing.T) {
	tr := NewTracker(testLogger(), newMemHistory(), 30*time.Minute)

	res := tr.Track(context.Background(), TrackInput{
		ClientIP:  "203.0.113.1",
		SessionID: "S1",
		EpisodeID: "E1",
	})

	assert.Equal(t, "S1", res.SessionID)
	assert.Equal(t, ChangeNewEpisode, res.ChangeType)
	assert.Empty(t, res.PreviousSessionID)
}

func TestTrackSameEpisodeIsContinuation(t *testing.T) {
	h := newMemHistory()
	tr := NewTracker(testLogger(), h, 30*time.Minute)
	ctx := context.Background()

	tr.Track(ctx, TrackInput{ClientIP: "203.0.113.1", SessionID: "S1", EpisodeID: "E1"})
	res := tr.Track(ctx, TrackInput{ClientIP: "203.0.113.1", SessionID: "S1", EpisodeID: "E1"})

	assert.Equal(t, ChangeContinuation, res.ChangeType)
	assert.Equal(t, "S1", res.SessionID)
}

func TestTrackEpisodeAdvanceRetainsSession(t *testing.T) {
	h := newMemHistory()
	tr := NewTracker(testLogger(), h, 30*time.Minute)
	ctx := context.Background()

	tr.Track(ctx, TrackInput{ClientIP: "203.0.113.1", SessionID: "S1", EpisodeID: "E1"})
	res := tr.Track(ctx, TrackInput{ClientIP: "203.0.113.1", SessionID: "S1", EpisodeID: "E2"})

	assert.Equal(t, ChangeNewEpisode, res.ChangeType)
	assert.Equal(t, "S1", res.SessionID, "episode advance must not start a new session")
}

func TestTrackSessionBoundary(t *testing.T) {
	tr := NewTracker(testLogger(), newMemHistory(), 30*time.Minute)

	res := tr.Track(context.Background(), TrackInput{
		ClientIP:          "203.0.113.1",
		SessionID:         "S2",
		PreviousSessionID: "S1",
		EpisodeID:         "E1",
	})

	assert.Equal(t, ChangeSessionChange, res.ChangeType)
	assert.Equal(t, "S2", res.SessionID)
	assert.Equal(t, "S1", res.PreviousSessionID)
}

func TestTrackSessionChangeOutranksEpisodeChange(t *testing.T) {
	h := newMemHistory()
	tr := NewTracker(testLogger(), h, 30*time.Minute)
	ctx := context.Background()

	tr.Track(ctx, TrackInput{ClientIP: "203.0.113.1", SessionID: "S2", EpisodeID: "E1"})

	// Both the session and the episode differ; the coarser event wins.
	res := tr.Track(ctx, TrackInput{
		ClientIP:          "203.0.113.1",
		SessionID:         "S2",
		PreviousSessionID: "S1",
		EpisodeID:         "E2",
	})

	assert.Equal(t, ChangeSessionChange, res.ChangeType)
	assert.Equal(t, "S1", res.PreviousSessionID)
}

func TestTrackSynthesizesSessionFromIPRecency(t *testing.T) {
	h := newMemHistory()
	tr := NewTracker(testLogger(), h, 30*time.Minute)
	ctx := context.Background()

	first := tr.Track(ctx, TrackInput{ClientIP: "203.0.113.9", EpisodeID: "E1"})
	require.NotEmpty(t, first.SessionID)

	// Same IP within the inactivity window: session is reused.
	second := tr.Track(ctx, TrackInput{ClientIP: "203.0.113.9", EpisodeID: "E1"})
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, ChangeContinuation, second.ChangeType)
}

func TestTrackInactivityGapMintsNewSession(t *testing.T) {
	h := newMemHistory()
	tr := NewTracker(testLogger(), h, 30*time.Minute)
	ctx := context.Background()

	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	first := tr.Track(ctx, TrackInput{ClientIP: "203.0.113.9", EpisodeID: "E1", Now: base})

	later := tr.Track(ctx, TrackInput{ClientIP: "203.0.113.9", EpisodeID: "E1", Now: base.Add(45 * time.Minute)})
	assert.NotEqual(t, first.SessionID, later.SessionID, "gap past the inactivity threshold forces a new session")
}

func TestTrackHistoryFailureFallsBackToNewEpisode(t *testing.T) {
	h := newMemHistory()
	h.failLookups = true
	tr := NewTracker(testLogger(), h, 30*time.Minute)

	res := tr.Track(context.Background(), TrackInput{ClientIP: "203.0.113.1", EpisodeID: "E1"})

	assert.Equal(t, ChangeNewEpisode, res.ChangeType)
	assert.NotEmpty(t, res.SessionID, "a synthesized session is still minted")
}
