package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/sdko-org/edge-proxy/internal/analytics"
	"github.com/sdko-org/edge-proxy/internal/cache"
	"github.com/sdko-org/edge-proxy/internal/config"
	"github.com/sdko-org/edge-proxy/internal/database"
	"github.com/sdko-org/edge-proxy/internal/geo"
	"github.com/sdko-org/edge-proxy/internal/handlers"
	httpserver "github.com/sdko-org/edge-proxy/internal/http"
	"github.com/sdko-org/edge-proxy/internal/origin"
	"github.com/sdko-org/edge-proxy/internal/session"
	"github.com/sdko-org/edge-proxy/internal/storage"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	db, err := database.NewPostgresDB(logger, database.PostgresConfig{
		User:     cfg.PostgresUser,
		Password: cfg.PostgresPassword,
		Host:     cfg.PostgresHost,
		Port:     cfg.PostgresPort,
		DBName:   cfg.PostgresDatabase,
		SSLMode:  cfg.PostgresSSLMode,
	})
	if err != nil {
		logger.WithError(err).Fatal("Database initialization failed")
	}

	var geoCache geo.Cache
	var history session.HistoryStore
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.WithError(err).Fatal("Redis connection failed")
		}
		cancel()

		geoCache = geo.NewRedisCache(logger, rdb, cfg.GeoCacheTTL)
		history = session.NewRedisHistory(rdb, cfg.SessionInactivity)
		logger.Info("Using Redis for geo cache and session history")
	} else {
		geoCache = geo.NewGormCache(logger, db, cfg.GeoCacheTTL)
		history = session.NewGormHistory(db)
		logger.Info("Using Postgres for geo cache and session history")
	}

	resolver := geo.NewResolver(logger, geoCache,
		geo.NewIPAPIProvider(logger, cfg.GeoProviderTimeout),
		geo.NewIPWhoisProvider(logger, cfg.GeoProviderTimeout),
		geo.NewIPAPICoProvider(logger, cfg.GeoProviderTimeout),
	)

	tracker := session.NewTracker(logger, history, cfg.SessionInactivity)
	pipeline := analytics.NewPipeline(logger, analytics.NewGormStore(db), cfg.IngestBufferSize)
	originClient := origin.NewClient(logger, cfg.OriginTimeout)

	var edge handlers.EdgeCache
	var edgeStorage storage.Storage
	if cfg.EdgeCacheEnabled {
		s3Storage := storage.NewS3Storage(logger, cfg, db)
		edge = s3Storage
		edgeStorage = s3Storage
	}

	handler := handlers.NewProxyHandler(logger, cfg, originClient, resolver, tracker, pipeline, edge, geoCache, handlers.NewGormDomainStore(db))

	r := mux.NewRouter()
	r.Use(handlers.LoggingMiddleware(logger))
	r.Use(handlers.RateLimitMiddleware(cfg))
	handlers.RegisterRoutes(r, handler)

	purgerCtx, stopPurger := context.WithCancel(context.Background())
	purger := cache.NewPurger(logger, db, edgeStorage, cfg)
	go purger.Start(purgerCtx)

	server := httpserver.StartServers(logger, r, cfg.ListenAddr, cfg.TLSAddr)

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	<-sigint

	logger.Info("Shutting down")
	stopPurger()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server shutdown error")
	}

	pipeline.Close()
}
