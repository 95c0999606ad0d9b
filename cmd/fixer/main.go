// Command fixer runs the repair pass offline: backfill missing default
// rows and recompute every streak, for one user or for all of them.
package main

import (
	"context"
	"flag"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"habittrack/config"
	"habittrack/internal/db"
	"habittrack/internal/habit"
	"habittrack/internal/metrics"
	redisclient "habittrack/internal/redis"
	"habittrack/internal/repository"
	"habittrack/internal/service"
)

func main() {
	userID := flag.Int("user", 0, "user id to repair; 0 repairs every registered user")
	flag.Parse()

	cfg := config.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	catalog, err := habit.NewCatalog(cfg.Habits)
	if err != nil {
		logger.Fatal("Invalid habit catalog", zap.Error(err))
	}

	pool, err := db.NewConnection(cfg.DB, logger)
	if err != nil {
		logger.Fatal("DB initialization failed", zap.Error(err))
	}
	defer pool.Close()

	ctx := context.Background()
	if err := db.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal("Schema initialization failed", zap.Error(err))
	}

	// the server caches day views in redis; the repair must drop them
	// or readers keep seeing pre-repair streaks until the TTL runs out
	rdb := redisclient.NewClient(cfg.Redis)
	defer rdb.Close()
	dayCache := service.NewRedisViewCache(rdb, logger)

	m := metrics.New(prometheus.NewRegistry())
	userRepo := repository.NewUserRepository(pool)
	progressRepo := repository.NewProgressRepository(pool, logger)
	streaks := service.NewStreakEngine(logger, m)
	fixer := service.NewConsistencyFixer(progressRepo, streaks, catalog, dayCache, logger, m)

	ids := []int{*userID}
	if *userID == 0 {
		ids, err = userRepo.ListIDs(ctx)
		if err != nil {
			logger.Fatal("Failed to list users", zap.Error(err))
		}
	}

	failed := 0
	for _, id := range ids {
		logger.Info("Repairing user", zap.Int("user_id", id))
		if err := fixer.Backfill(ctx, id); err != nil {
			logger.Error("Repair failed", zap.Int("user_id", id), zap.Error(err))
			failed++
		}
	}

	logger.Info("Repair sweep finished",
		zap.Int("users", len(ids)),
		zap.Int("failed", failed),
	)
}
