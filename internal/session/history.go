package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sdko-org/edge-proxy/internal/models"
	"gorm.io/gorm"
)

// EpisodeRecord is the last-observed episode for a session key.
type EpisodeRecord struct {
	EpisodeID string    `json:"episode_id"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryStore exposes the recent request history the tracker classifies
// against. Any backend can sit behind it; the engine treats a missing
// record as "first observation", never as an error.
type HistoryStore interface {
	// LastEpisode returns the most recent episode recorded for the
	// session key, or nil when the session has no history.
	LastEpisode(ctx context.Context, sessionKey string) (*EpisodeRecord, error)

	// Record persists the episode observation for the session key.
	Record(ctx context.Context, sessionKey string, rec EpisodeRecord) error

	// LastSessionForIP returns the session most recently correlated with
	// the client IP, with its last-seen time. Empty session means no
	// recent activity for the IP.
	LastSessionForIP(ctx context.Context, ip string) (string, time.Time, error)

	// TouchIP refreshes the IP-to-session correlation.
	TouchIP(ctx context.Context, ip, sessionKey string, now time.Time) error
}

// RedisHistory keeps session history in Redis with the inactivity window as
// the key TTL, so idle sessions age out on their own.
type RedisHistory struct {
	client     *redis.Client
	inactivity time.Duration
}

func NewRedisHistory(client *redis.Client, inactivity time.Duration) *RedisHistory {
	return &RedisHistory{client: client, inactivity: inactivity}
}

func sessionKey(key string) string {
	return "session:last:" + key
}

func ipKey(ip string) string {
	return "session:ip:" + ip
}

func (h *RedisHistory) LastEpisode(ctx context.Context, key string) (*EpisodeRecord, error) {
	raw, err := h.client.Get(ctx, sessionKey(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session history read failed: %w", err)
	}

	var rec EpisodeRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("corrupt session history entry: %w", err)
	}
	return &rec, nil
}

func (h *RedisHistory) Record(ctx context.Context, key string, rec EpisodeRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return h.client.Set(ctx, sessionKey(key), raw, h.inactivity).Err()
}

func (h *RedisHistory) LastSessionForIP(ctx context.Context, ip string) (string, time.Time, error) {
	pipe := h.client.Pipeline()
	sessCmd := pipe.Get(ctx, ipKey(ip))
	ttlCmd := pipe.TTL(ctx, ipKey(ip))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return "", time.Time{}, fmt.Errorf("ip correlation read failed: %w", err)
	}

	sess, err := sessCmd.Result()
	if err == redis.Nil {
		return "", time.Time{}, nil
	}
	if err != nil {
		return "", time.Time{}, err
	}

	// Reconstruct last-seen from the remaining TTL.
	lastSeen := time.Now()
	if ttl, err := ttlCmd.Result(); err == nil && ttl > 0 {
		lastSeen = time.Now().Add(ttl - h.inactivity)
	}
	return sess, lastSeen, nil
}

func (h *RedisHistory) TouchIP(ctx context.Context, ip, key string, _ time.Time) error {
	return h.client.Set(ctx, ipKey(ip), key, h.inactivity).Err()
}

// GormHistory derives session history from the access-log store itself:
// the most recent row for a session key (or client IP) is the last
// observation. Used when Redis is not configured.
type GormHistory struct {
	db *gorm.DB
}

func NewGormHistory(db *gorm.DB) *GormHistory {
	return &GormHistory{db: db}
}

func (h *GormHistory) LastEpisode(ctx context.Context, key string) (*EpisodeRecord, error) {
	var row models.AccessLog
	err := h.db.WithContext(ctx).
		Where("session_id = ? AND episode_id IS NOT NULL", key).
		Order("timestamp DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session history query failed: %w", err)
	}
	return &EpisodeRecord{EpisodeID: *row.EpisodeID, Timestamp: row.Timestamp}, nil
}

func (h *GormHistory) Record(context.Context, string, EpisodeRecord) error {
	// The ingest pipeline writes the access log that backs this store;
	// there is nothing extra to record.
	return nil
}

func (h *GormHistory) LastSessionForIP(ctx context.Context, ip string) (string, time.Time, error) {
	var row models.AccessLog
	err := h.db.WithContext(ctx).
		Where("client_ip = ? AND session_id IS NOT NULL", ip).
		Order("timestamp DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", time.Time{}, nil
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("ip correlation query failed: %w", err)
	}
	return *row.SessionID, row.Timestamp, nil
}

func (h *GormHistory) TouchIP(context.Context, string, string, time.Time) error {
	return nil
}
