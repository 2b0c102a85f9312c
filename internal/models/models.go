package models

import (
	"time"
)

// AccessLog is one row per proxied request, written append-only by the
// ingest pipeline after the response has been sent.
type AccessLog struct {
	ID             uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp      time.Time `gorm:"index;not null"`
	Domain         string    `gorm:"type:varchar(255);not null;index"`
	DomainID       *uint     `gorm:"index"`
	Path           string    `gorm:"type:text;not null;index:,length:256"`
	Method         string    `gorm:"type:varchar(10);not null"`
	Status         int       `gorm:"not null;index"`
	ClientIP       string    `gorm:"type:varchar(45);not null;index"`
	UserAgent      string    `gorm:"type:text"`
	Referer        string    `gorm:"type:text"`
	DeviceType     string    `gorm:"type:varchar(32)"`
	Country        string    `gorm:"type:varchar(64)"`
	City           string    `gorm:"type:varchar(128)"`
	BytesSent      int64     `gorm:"not null;default:0"`
	ResponseTimeMs int64     `gorm:"not null;default:0"`
	CacheStatus    string    `gorm:"type:varchar(16)"`
	SessionID      *string   `gorm:"type:varchar(64);index"`
	EpisodeID      *string   `gorm:"type:varchar(64);index"`
	ChangeType     *string   `gorm:"type:varchar(16)"`
}

// GeoCacheEntry caches one external geolocation resolution per client IP.
// Entries older than the configured TTL are treated as stale and resolved
// again; writes are upserts, last resolution wins.
type GeoCacheEntry struct {
	IP          string    `gorm:"primaryKey;type:varchar(45);not null"`
	Country     string    `gorm:"type:varchar(64)"`
	CountryCode string    `gorm:"type:varchar(2)"`
	Region      string    `gorm:"type:varchar(128)"`
	City        string    `gorm:"type:varchar(128)"`
	Latitude    float64
	Longitude   float64
	Timezone    string    `gorm:"type:varchar(64)"`
	ISP         string    `gorm:"type:varchar(255)"`
	CreatedAt   time.Time `gorm:"index;not null"`
}

// Domain maps a configured domain name to its origin. Rows are seeded by
// the admin surface; the proxy only reads them.
type Domain struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	Name         string `gorm:"type:varchar(255);not null;uniqueIndex"`
	OriginURL    string `gorm:"type:text;not null"`
	CacheEnabled bool   `gorm:"not null;default:false"`
}

// EdgeCacheEntry is the metadata row for an object held in the S3 edge
// content cache.
type EdgeCacheEntry struct {
	Key         string    `gorm:"primaryKey;type:varchar(512);not null"`
	ContentType string    `gorm:"type:varchar(128);not null"`
	StoredAt    time.Time `gorm:"index;not null"`
	ExpiresAt   time.Time `gorm:"index;not null"`
	LastAccess  time.Time `gorm:"index;not null"`
	SizeBytes   int64     `gorm:"not null;default:-1"`
}

func (AccessLog) TableName() string {
	return "access_logs"
}

func (GeoCacheEntry) TableName() string {
	return "geo_cache"
}

func (Domain) TableName() string {
	return "domains"
}

func (EdgeCacheEntry) TableName() string {
	return "edge_cache"
}
