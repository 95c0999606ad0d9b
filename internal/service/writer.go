package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"habittrack/internal/apperr"
	"habittrack/internal/habit"
	"habittrack/internal/metrics"
	"habittrack/internal/model"
	"habittrack/internal/mq"
)

// ProgressWriter applies status changes. Every write runs in one
// transaction: upsert the status rows, then recompute streaks for each
// habit touched, under a per-(user, habit) lock. A failure anywhere
// rolls the whole operation back.
type ProgressWriter struct {
	store    ProgressStore
	streaks  *StreakEngine
	catalog  *habit.Catalog
	producer EventPublisher // nil disables event publishing
	cache    ViewCache      // nil disables cache invalidation
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewProgressWriter(
	store ProgressStore,
	streaks *StreakEngine,
	catalog *habit.Catalog,
	producer EventPublisher,
	cache ViewCache,
	logger *zap.Logger,
	m *metrics.Metrics,
) *ProgressWriter {
	return &ProgressWriter{
		store:    store,
		streaks:  streaks,
		catalog:  catalog,
		producer: producer,
		cache:    cache,
		logger:   logger,
		metrics:  m,
	}
}

// UpdateSingle upserts one (user, date, habit) status and recomputes
// that habit's streak series. The returned record carries the freshly
// computed streak.
func (w *ProgressWriter) UpdateSingle(ctx context.Context, userID int, date time.Time, habitName string, status bool) (model.Progress, error) {
	day := dateOnly(date)
	if err := w.validate(day, habitName); err != nil {
		w.metrics.ObserveUpdate("single", "rejected")
		return model.Progress{}, err
	}

	var rec model.Progress
	err := w.store.InTx(ctx, func(tx ProgressTx) error {
		if err := tx.LockHabit(ctx, userID, habitName); err != nil {
			return err
		}
		if _, err := tx.Upsert(ctx, userID, day, habitName, status); err != nil {
			return err
		}
		if err := w.streaks.Recompute(ctx, tx, userID, habitName); err != nil {
			return err
		}
		var err error
		rec, err = tx.Get(ctx, userID, day, habitName)
		return err
	})
	if err != nil {
		w.metrics.ObserveUpdate("single", "failed")
		return model.Progress{}, err
	}

	w.metrics.ObserveUpdate("single", "ok")
	w.afterWrite(ctx, userID, day, []string{habitName})
	return rec, nil
}

// UpdateBulk applies several habit statuses for one date. The whole
// batch is validated before any row is touched, and either every status
// and its recomputed streaks land or none do.
func (w *ProgressWriter) UpdateBulk(ctx context.Context, userID int, date time.Time, updates map[string]bool) error {
	day := dateOnly(date)
	if len(updates) == 0 {
		return apperr.Validationf("bulk update contains no habits")
	}

	habits := make([]string, 0, len(updates))
	for name := range updates {
		habits = append(habits, name)
	}
	// locks must be taken in a stable order or two concurrent bulk
	// writers can deadlock
	sort.Strings(habits)

	for _, name := range habits {
		if err := w.validate(day, name); err != nil {
			w.metrics.ObserveUpdate("bulk", "rejected")
			return err
		}
	}

	err := w.store.InTx(ctx, func(tx ProgressTx) error {
		for _, name := range habits {
			if err := tx.LockHabit(ctx, userID, name); err != nil {
				return err
			}
		}
		for _, name := range habits {
			if _, err := tx.Upsert(ctx, userID, day, name, updates[name]); err != nil {
				return err
			}
		}
		for _, name := range habits {
			if err := w.streaks.Recompute(ctx, tx, userID, name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		w.metrics.ObserveUpdate("bulk", "failed")
		return err
	}

	w.metrics.ObserveUpdate("bulk", "ok")
	w.afterWrite(ctx, userID, day, habits)
	return nil
}

// UpdateByID flips the status of an existing record addressed by id.
// The record must belong to the calling user.
func (w *ProgressWriter) UpdateByID(ctx context.Context, userID, id int, status bool) (model.Progress, error) {
	var rec model.Progress
	err := w.store.InTx(ctx, func(tx ProgressTx) error {
		existing, err := tx.GetByID(ctx, id, userID)
		if err != nil {
			return err
		}
		if err := tx.LockHabit(ctx, userID, existing.Habit); err != nil {
			return err
		}
		if _, err := tx.UpdateStatusByID(ctx, id, userID, status); err != nil {
			return err
		}
		if err := w.streaks.Recompute(ctx, tx, userID, existing.Habit); err != nil {
			return err
		}
		rec, err = tx.GetByID(ctx, id, userID)
		return err
	})
	if err != nil {
		w.metrics.ObserveUpdate("by_id", "failed")
		return model.Progress{}, err
	}

	w.metrics.ObserveUpdate("by_id", "ok")
	w.afterWrite(ctx, userID, rec.Date, []string{rec.Habit})
	return rec, nil
}

func (w *ProgressWriter) validate(day time.Time, habitName string) error {
	if !w.catalog.Contains(habitName) {
		return apperr.Validationf("unknown habit: %q", habitName)
	}
	if day.After(today()) {
		return apperr.Validationf("date %s is in the future", day.Format("2006-01-02"))
	}
	return nil
}

// afterWrite runs once the transaction has committed: drop the cached
// day views and announce the change. Both are best-effort; a committed
// write is never undone because a side channel hiccupped.
//
// Recomputation shifts streaks on every date after the written one, so
// the invalidation covers the written date through today, not just the
// written date itself.
func (w *ProgressWriter) afterWrite(ctx context.Context, userID int, day time.Time, habits []string) {
	if w.cache != nil {
		w.cache.InvalidateRange(ctx, userID, day, today())
	}

	if w.producer != nil {
		payload := mq.ProgressUpdatedPayload{
			UserID:    userID,
			Date:      day,
			Habits:    habits,
			UpdatedAt: time.Now().UTC(),
		}
		if err := w.producer.Publish(mq.RoutingKeyProgressUpdated, payload); err != nil {
			w.logger.Warn("Failed to publish progress.updated",
				zap.Int("user_id", userID),
				zap.Error(err),
			)
		}
	}
}
