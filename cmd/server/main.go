// Command tl-server starts the task list HTTP backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/and161185/tasklist/internal/config"
	"github.com/and161185/tasklist/internal/limiter"
	"github.com/and161185/tasklist/internal/migrate"
	"github.com/and161185/tasklist/internal/repository/postgres"
	"github.com/and161185/tasklist/internal/server/httpapi"
	"github.com/and161185/tasklist/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, runs migrations and serves the HTTP API until signalled.
func main() {
	cfg, err := config.LoadServer(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, _ := zap.NewProduction()
	if cfg.Dev {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DSN); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}
	if v, err := migrate.Status(ctx, cfg.DSN); err == nil {
		logger.Info("schema", zap.Int64("version", v))
	}

	// DB pool
	db, err := postgres.New(ctx, cfg.DSN)
	if err != nil {
		logger.Fatal("pgxpool.New", zap.Error(err))
	}
	defer db.Close()

	// Repositories
	userRepo := postgres.NewUserRepo(db)
	tokenRepo := postgres.NewRefreshTokenRepo(db)
	profileRepo := postgres.NewProfileRepo(db)
	todoRepo := postgres.NewTodoRepo(db)

	lim, closeLim := newLimiter(ctx, cfg, db, logger)
	defer closeLim()

	// Services
	authSvc := service.NewAuthService(userRepo, tokenRepo, service.AuthConfig{
		SignKey:    []byte(cfg.JWTKey),
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	}, lim)
	tableSvc := service.NewTableService(profileRepo, todoRepo)

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if !cfg.Dev {
		gin.SetMode(gin.ReleaseMode)
	}
	router, _ := httpapi.New(httpapi.Deps{
		Auth:     authSvc,
		Tables:   tableSvc,
		DB:       db,
		Log:      logger,
		Metrics:  httpapi.NewMetrics(reg),
		Gatherer: reg,
		Version:  version,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown", zap.Error(err))
			_ = srv.Close()
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("shutdown complete")
}

// newLimiter picks Redis when configured, Postgres otherwise.
func newLimiter(ctx context.Context, cfg *config.Server, db *postgres.DB, logger *zap.Logger) (limiter.Limiter, func()) {
	if cfg.RedisAddr == "" {
		return limiter.NewPG(db.Pool, cfg.Limiter), func() {}
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, login limiter falls back to postgres", zap.Error(err))
		_ = rdb.Close()
		return limiter.NewPG(db.Pool, cfg.Limiter), func() {}
	}
	logger.Info("login limiter on redis", zap.String("addr", cfg.RedisAddr))
	return limiter.NewRedis(rdb, cfg.Limiter), func() { _ = rdb.Close() }
}
