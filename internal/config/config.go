package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	ListenAddr string
	TLSAddr    string
	LogLevel   string

	OriginTimeout      time.Duration
	GeoProviderTimeout time.Duration
	GeoCacheTTL        time.Duration
	SessionInactivity  time.Duration

	RateLimit       int
	RateLimitWindow time.Duration

	IngestBufferSize int

	EdgeCacheEnabled  bool
	EdgeCacheTTL      time.Duration
	EdgeCacheMaxBytes int64

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     string
	PostgresDatabase string
	PostgresSSLMode  string
}

// Load reads configuration from EDGE_-prefixed environment variables,
// e.g. EDGE_LISTEN_ADDR, EDGE_REDIS_ADDR, EDGE_S3_BUCKET.
func Load() *Config {
	v := viper.New()
	v.SetEnvPrefix("edge")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("tls_addr", ":8443")
	v.SetDefault("log_level", "info")
	v.SetDefault("origin_timeout", 30*time.Second)
	v.SetDefault("geo_provider_timeout", 5*time.Second)
	v.SetDefault("geo_cache_ttl", 24*time.Hour)
	v.SetDefault("session_inactivity", 30*time.Minute)
	v.SetDefault("rate_limit", 100)
	v.SetDefault("rate_limit_window", time.Minute)
	v.SetDefault("ingest_buffer_size", 1024)
	v.SetDefault("edge_cache_enabled", false)
	v.SetDefault("edge_cache_ttl", 12*time.Hour)
	v.SetDefault("edge_cache_max_bytes", int64(4<<20))
	v.SetDefault("s3_bucket", "edge-cache")
	v.SetDefault("s3_region", "us-east-1")
	v.SetDefault("s3_endpoint", "")
	v.SetDefault("s3_access_key", "")
	v.SetDefault("s3_secret_key", "")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("postgres_user", "edge")
	v.SetDefault("postgres_password", "password")
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", "5432")
	v.SetDefault("postgres_database", "edge_proxy")
	v.SetDefault("postgres_ssl_mode", "disable")

	cfg := &Config{
		ListenAddr:         v.GetString("listen_addr"),
		TLSAddr:            v.GetString("tls_addr"),
		LogLevel:           v.GetString("log_level"),
		OriginTimeout:      v.GetDuration("origin_timeout"),
		GeoProviderTimeout: v.GetDuration("geo_provider_timeout"),
		GeoCacheTTL:        v.GetDuration("geo_cache_ttl"),
		SessionInactivity:  v.GetDuration("session_inactivity"),
		RateLimit:          v.GetInt("rate_limit"),
		RateLimitWindow:    v.GetDuration("rate_limit_window"),
		IngestBufferSize:   v.GetInt("ingest_buffer_size"),
		EdgeCacheEnabled:   v.GetBool("edge_cache_enabled"),
		EdgeCacheTTL:       v.GetDuration("edge_cache_ttl"),
		EdgeCacheMaxBytes:  v.GetInt64("edge_cache_max_bytes"),
		S3Bucket:           v.GetString("s3_bucket"),
		S3Region:           v.GetString("s3_region"),
		S3Endpoint:         v.GetString("s3_endpoint"),
		S3AccessKey:        v.GetString("s3_access_key"),
		S3SecretKey:        v.GetString("s3_secret_key"),
		RedisAddr:          v.GetString("redis_addr"),
		RedisPassword:      v.GetString("redis_password"),
		RedisDB:            v.GetInt("redis_db"),
		PostgresUser:       v.GetString("postgres_user"),
		PostgresPassword:   v.GetString("postgres_password"),
		PostgresHost:       v.GetString("postgres_host"),
		PostgresPort:       v.GetString("postgres_port"),
		PostgresDatabase:   v.GetString("postgres_database"),
		PostgresSSLMode:    v.GetString("postgres_ssl_mode"),
	}

	if cfg.EdgeCacheEnabled && (cfg.S3AccessKey == "" || cfg.S3SecretKey == "" || cfg.S3Endpoint == "") {
		panic("edge cache enabled but S3 credentials are missing")
	}

	return cfg
}
