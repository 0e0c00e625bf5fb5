package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/umit144/license-sync/internal/config"
	"github.com/umit144/license-sync/internal/database"
	"github.com/umit144/license-sync/internal/handlers"
	"github.com/umit144/license-sync/internal/logger"
	"github.com/umit144/license-sync/internal/plans"
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

	if cfg.MigrateOnStart {
		if err := database.MigrateUp(context.Background(), db); err != nil {
			zl.Fatal("failed to apply migrations", zap.Error(err))
		}
	}

	catalog, err := plans.Load(cfg.PlansFile)
	if err != nil {
		zl.Fatal("failed to load plan catalog", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	store := repositories.NewStore(db)

	var initiator services.PaymentInitiator
	if cfg.PaymentsEnabled {
		initiator = services.NewYooKassaClient(services.YooKassaConfig{
			ShopID:    cfg.YooKassa.ShopID,
			SecretKey: cfg.YooKassa.SecretKey,
			APIURL:    cfg.YooKassa.APIURL,
			Timeout:   cfg.YooKassa.Timeout,
		})
	} else {
		zl.Warn("payments disabled, payment endpoint will answer 503")
	}

	verifier := services.NewVerificationService(store, zl.Named("verify"), nil)
	payments := services.NewPaymentService(initiator, catalog, cfg.YooKassa.ReturnURL, zl.Named("payments"))
	reconciler := services.NewWebhookReconciler(store, zl.Named("webhook"),
		services.WithPublisher(services.NewRedisPublisher(rdb)))

	h := handlers.New(verifier, payments, reconciler, store, cfg.AdminAccessKey, zl)
	app := handlers.NewApp(h)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		zl.Info("license server listening", zap.String("addr", cfg.HTTPAddr), zap.String("env", cfg.Env))
		if err := app.Listen(cfg.HTTPAddr); err != nil {
			zl.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		zl.Error("graceful shutdown failed", zap.Error(err))
	}
}
