package cache

import (
	"context"
	"time"

	"github.com/sdko-org/edge-proxy/internal/config"
	"github.com/sdko-org/edge-proxy/internal/models"
	"github.com/sdko-org/edge-proxy/internal/storage"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Purger removes expired edge-cache objects and stale geolocation rows on
// a fixed interval.
type Purger struct {
	logger  *logrus.Logger
	db      *gorm.DB
	storage storage.Storage
	cfg     *config.Config
}

func NewPurger(logger *logrus.Logger, db *gorm.DB, storage storage.Storage, cfg *config.Config) *Purger {
	return &Purger{
		logger:  logger,
		db:      db,
		storage: storage,
		cfg:     cfg,
	}
}

func (p *Purger) Start(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()

	logEntry := p.logger.WithField("component", "cache_purger")
	logEntry.Info("Starting cache purger")

	for {
		select {
		case <-ticker.C:
			p.purgeExpired(ctx, logEntry)
		case <-ctx.Done():
			logEntry.Info("Stopping cache purger")
			return
		}
	}
}

func (p *Purger) purgeExpired(ctx context.Context, log *logrus.Entry) {
	log = log.WithField("operation", "cache_purge")

	var edgeEntries []models.EdgeCacheEntry
	if err := p.db.WithContext(ctx).
		Where("expires_at < ? OR last_access < ?", time.Now(), time.Now().Add(-7*24*time.Hour)).
		Find(&edgeEntries).Error; err != nil {
		log.WithError(err).Error("Edge cache purge query failed")
	}

	for _, entry := range edgeEntries {
		if p.storage == nil {
			continue
		}
		if err := p.storage.Delete(ctx, entry.Key); err != nil {
			log.WithFields(logrus.Fields{"key": entry.Key, "error": err}).Error("Failed to delete edge cache entry")
		}
	}

	staleBefore := time.Now().Add(-p.cfg.GeoCacheTTL)
	result := p.db.WithContext(ctx).
		Where("created_at < ?", staleBefore).
		Delete(&models.GeoCacheEntry{})
	if result.Error != nil {
		log.WithError(result.Error).Error("Geo cache purge failed")
	}

	log.WithFields(logrus.Fields{
		"edge_entries": len(edgeEntries),
		"geo_rows":     result.RowsAffected,
	}).Info("Processed expired cache entries")
}
