package geo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sdko-org/edge-proxy/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Cache is the injectable store behind the resolver. Get reports a fresh
// entry only; stale or missing entries are a miss. Upsert overwrites any
// prior entry for the IP (last resolution wins). Delete drops the entry so
// the next lookup goes back to the providers.
type Cache interface {
	Get(ctx context.Context, ip string) (Result, bool)
	Upsert(ctx context.Context, ip string, res Result)
	Delete(ctx context.Context, ip string) error
}

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logrus.Entry
}

func NewRedisCache(logger *logrus.Logger, client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		ttl:    ttl,
		log:    logger.WithField("component", "geo_cache_redis"),
	}
}

func geoKey(ip string) string {
	return "geo:" + ip
}

func (c *RedisCache) Get(ctx context.Context, ip string) (Result, bool) {
	raw, err := c.client.Get(ctx, geoKey(ip)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.WithError(err).Warn("Geo cache read failed")
		}
		return Result{}, false
	}

	var entry cachedResult
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.log.WithError(err).Warn("Corrupt geo cache entry")
		return Result{}, false
	}

	// EXPIRE already bounds the key lifetime; the CreatedAt check guards
	// against entries written with a longer TTL before a config change.
	if time.Since(entry.CreatedAt) >= c.ttl {
		return Result{}, false
	}

	return entry.Result, true
}

func (c *RedisCache) Upsert(ctx context.Context, ip string, res Result) {
	raw, err := json.Marshal(cachedResult{Result: res, CreatedAt: time.Now()})
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, geoKey(ip), raw, c.ttl).Err(); err != nil {
		c.log.WithError(err).Warn("Geo cache write failed")
	}
}

func (c *RedisCache) Delete(ctx context.Context, ip string) error {
	return c.client.Del(ctx, geoKey(ip)).Err()
}

type GormCache struct {
	db  *gorm.DB
	ttl time.Duration
	log *logrus.Entry
}

func NewGormCache(logger *logrus.Logger, db *gorm.DB, ttl time.Duration) *GormCache {
	return &GormCache{
		db:  db,
		ttl: ttl,
		log: logger.WithField("component", "geo_cache_db"),
	}
}

func (c *GormCache) Get(ctx context.Context, ip string) (Result, bool) {
	var entry models.GeoCacheEntry
	if err := c.db.WithContext(ctx).Where("ip = ?", ip).First(&entry).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			c.log.WithError(err).Warn("Geo cache read failed")
		}
		return Result{}, false
	}

	if time.Since(entry.CreatedAt) >= c.ttl {
		return Result{}, false
	}

	return Result{
		Country:     entry.Country,
		CountryCode: entry.CountryCode,
		Region:      entry.Region,
		City:        entry.City,
		Latitude:    entry.Latitude,
		Longitude:   entry.Longitude,
		Timezone:    entry.Timezone,
		ISP:         entry.ISP,
	}, true
}

func (c *GormCache) Upsert(ctx context.Context, ip string, res Result) {
	entry := models.GeoCacheEntry{
		IP:          ip,
		Country:     res.Country,
		CountryCode: res.CountryCode,
		Region:      res.Region,
		City:        res.City,
		Latitude:    res.Latitude,
		Longitude:   res.Longitude,
		Timezone:    res.Timezone,
		ISP:         res.ISP,
		CreatedAt:   time.Now(),
	}

	err := c.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "ip"}},
			UpdateAll: true,
		}).
		Create(&entry).Error
	if err != nil {
		c.log.WithError(err).Warn("Geo cache write failed")
	}
}

func (c *GormCache) Delete(ctx context.Context, ip string) error {
	return c.db.WithContext(ctx).Where("ip = ?", ip).Delete(&models.GeoCacheEntry{}).Error
}
