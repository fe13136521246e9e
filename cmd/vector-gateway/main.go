package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/radiusdt/vector-gateway/internal/catalog"
	"github.com/radiusdt/vector-gateway/internal/config"
	"github.com/radiusdt/vector-gateway/internal/database"
	"github.com/radiusdt/vector-gateway/internal/httpserver"
	"github.com/radiusdt/vector-gateway/internal/metrics"
	"github.com/radiusdt/vector-gateway/internal/middleware"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := middleware.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("starting vector-gateway",
		zap.String("addr", cfg.Server.Addr),
		zap.String("env", cfg.Server.Env),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cat, err := catalog.Load(cfg.Catalog.OffersPath, cfg.Catalog.RotatorsPath)
	if err != nil {
		logger.Fatal("failed to load catalog", zap.Error(err))
	}
	logger.Info("catalog loaded",
		zap.Int("offers", len(cat.Offers())),
		zap.Int("rotators", len(cat.Rotators())),
	)

	var db *database.PostgresDB
	if cfg.Database.Enabled {
		db, err = database.NewPostgresDB(ctx, cfg.Database, logger)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer db.Close()
	} else {
		logger.Warn("database disabled, click and conversion events are kept in memory")
	}

	var redisDB *database.RedisDB
	if cfg.Redis.Enabled {
		redisDB, err = database.NewRedisDB(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		defer redisDB.Close()
	} else {
		logger.Warn("Redis disabled, rotator stats are kept in memory")
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics("vector_gateway")
	}

	handler := httpserver.NewServer(&httpserver.Dependencies{
		DB:      db,
		Redis:   redisDB,
		Catalog: cat,
		Config:  cfg,
		Logger:  logger,
		Metrics: m,
	})

	// Middleware chain, outermost first.
	handler = middleware.NewAuthMiddleware(cfg.Auth, logger).Handler(handler)
	if cfg.RateLimit.Enabled {
		handler = middleware.NewRateLimitMiddleware(cfg.RateLimit, logger).Handler(handler)
	}
	handler = middleware.NewLoggingMiddleware(logger).Handler(handler)
	handler = middleware.NewRecoveryMiddleware(logger).Handler(handler)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Fatal("HTTP server failed", zap.Error(err))
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	logger.Info("vector-gateway stopped")
}
