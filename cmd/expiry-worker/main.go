package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/umit144/license-sync/internal/config"
	"github.com/umit144/license-sync/internal/database"
	"github.com/umit144/license-sync/internal/logger"
	"github.com/umit144/license-sync/internal/repositories"
	"github.com/umit144/license-sync/internal/services"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadServer(".env")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	db, err := database.NewDatabase(cfg.DatabaseDSN)
	if err != nil {
		zl.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.DB.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := services.NewSubscriptionService(
		repositories.NewStore(db),
		services.NewRedisPublisher(rdb),
		zl.Named("expiry"),
		cfg.ExpiryNotice,
		cfg.ExpiryBatchLimit,
		nil,
	)

	n, err := svc.ProcessExpiringSubscriptions(ctx)
	if err != nil {
		zl.Fatal("failed to process expiring subscriptions", zap.Error(err))
	}
	zl.Info("expiry notifications published", zap.Int("count", n))
}
