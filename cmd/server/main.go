package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"habittrack/config"
	"habittrack/internal/api"
	"habittrack/internal/db"
	"habittrack/internal/habit"
	"habittrack/internal/metrics"
	"habittrack/internal/mq"
	"habittrack/internal/mqhandler"
	redisclient "habittrack/internal/redis"
	"habittrack/internal/repository"
	"habittrack/internal/service"
	"habittrack/internal/util"
)

func main() {
	// 1. Load config
	cfg := config.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	catalog, err := habit.NewCatalog(cfg.Habits)
	if err != nil {
		logger.Fatal("Invalid habit catalog", zap.Error(err))
	}

	// 2. Init DB
	pool, err := db.NewConnection(cfg.DB, logger)
	if err != nil {
		logger.Fatal("DB initialization failed", zap.Error(err))
	}
	defer pool.Close()

	if err := db.EnsureSchema(context.Background(), pool); err != nil {
		logger.Fatal("Schema initialization failed", zap.Error(err))
	}

	// 3. Init Redis
	rdb := redisclient.NewClient(cfg.Redis)
	defer rdb.Close()

	deduper := util.NewDeduper(rdb, time.Hour)
	dayCache := service.NewRedisViewCache(rdb, logger)

	// 4. Init RabbitMQ producer
	producer, err := mq.NewProducer(cfg.MQ.URL)
	if err != nil {
		logger.Fatal("Failed to init producer", zap.Error(err))
	}
	defer producer.Close()

	// 5. Init metrics
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	// 6. Init repositories
	userRepo := repository.NewUserRepository(pool)
	progressRepo := repository.NewProgressRepository(pool, logger)

	// 7. Init services
	streaks := service.NewStreakEngine(logger, m)
	writer := service.NewProgressWriter(progressRepo, streaks, catalog, producer, dayCache, logger, m)
	view := service.NewAggregationView(progressRepo, catalog, dayCache, logger)
	fixer := service.NewConsistencyFixer(progressRepo, streaks, catalog, dayCache, logger, m)
	authService := service.NewAuthService(userRepo, producer, cfg.JWT.Secret, logger)

	// 8. Init consumers for onboarding backfill and queued recompute
	registeredHandler := mqhandler.NewUserRegisteredHandler(fixer, deduper, logger)
	consumerRegistered, err := mq.NewConsumer(cfg.MQ.URL, mq.RoutingKeyUserRegistered, logger)
	if err != nil {
		logger.Fatal("Failed to init user.registered consumer", zap.Error(err))
	}
	defer consumerRegistered.Close()
	consumerRegistered.SetHandler(registeredHandler.HandleUserRegistered)
	go func() {
		if err := consumerRegistered.StartConsuming(); err != nil {
			logger.Fatal("user.registered consumer failed", zap.Error(err))
		}
	}()

	recomputeHandler := mqhandler.NewProgressRecomputeHandler(fixer, logger)
	consumerRecompute, err := mq.NewConsumer(cfg.MQ.URL, mq.RoutingKeyProgressRecompute, logger)
	if err != nil {
		logger.Fatal("Failed to init progress.recompute consumer", zap.Error(err))
	}
	defer consumerRecompute.Close()
	consumerRecompute.SetHandler(recomputeHandler.HandleProgressRecompute)
	go func() {
		if err := consumerRecompute.StartConsuming(); err != nil {
			logger.Fatal("progress.recompute consumer failed", zap.Error(err))
		}
	}()

	// 9. Init handlers
	authHandler := api.NewAuthHandler(authService)
	progressHandler := api.NewProgressHandler(writer, view)
	maintenanceHandler := api.NewMaintenanceHandler(fixer, producer, logger)

	// 10. Init router and run
	router := api.NewRouter(authHandler, progressHandler, maintenanceHandler, pool, m, registry, cfg.JWT.Secret)

	if err := router.Run(cfg.Server.Port); err != nil {
		logger.Fatal("Server start failed", zap.Error(err))
	}
}
