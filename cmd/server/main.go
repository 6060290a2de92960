package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/systembank/internal/api"
	"github.com/example/systembank/internal/config"
	"github.com/example/systembank/internal/customers"
	"github.com/example/systembank/internal/ledger"
	"github.com/example/systembank/internal/security"
	"github.com/example/systembank/internal/standby"
	"github.com/example/systembank/internal/supervisor"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	var mirror *standby.Store
	if cfg.StandbyPath != "" {
		mirror, err = standby.Open(cfg.StandbyPath)
		if err != nil {
			logger.Error("failed to open standby mirror", "path", cfg.StandbyPath, "error", err)
			os.Exit(1)
		}
	}

	sup := supervisor.New(supervisor.Config{
		DatabaseURL: cfg.DatabaseURL,
		MaxAttempts: cfg.ConnectMaxAttempts,
		BaseBackoff: cfg.ConnectBackoff,
	}, logger, mirror)
	defer sup.Close()

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 2*time.Minute)
	if err := sup.Connect(connectCtx); err != nil {
		cancelConnect()
		logger.Error("could not reach primary store", "error", err)
		os.Exit(1)
	}
	cancelConnect()

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()
	go sup.Run(runCtx)

	store := ledger.NewPostgresStore(sup.Pool())
	store.LockTimeout = cfg.LockTimeout
	engine := ledger.NewService(store)
	customerStore := customers.NewStore(sup.Pool())

	var rateLimiter *security.RedisTokenBucket
	if cfg.RateLimitCapacity > 0 {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		rateLimiter = &security.RedisTokenBucket{
			Redis:      redisClient,
			Prefix:     "bank_api",
			Capacity:   cfg.RateLimitCapacity,
			RefillRate: cfg.RateLimitRefill,
		}
	}

	deps := api.Dependencies{
		Logger:       logger,
		Engine:       engine,
		Customers:    customerStore,
		Health:       sup,
		RateLimiter:  rateLimiter,
		MaxBodyBytes: cfg.MaxBodyBytes,
	}
	if mirror != nil {
		deps.Standby = mirror
	}

	router, err := api.NewRouter(deps)
	if err != nil {
		logger.Error("failed to build router", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	logger.Info("bank api listening", "addr", cfg.APIAddr, "env", cfg.Environment)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
