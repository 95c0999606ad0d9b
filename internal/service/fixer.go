package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"habittrack/internal/apperr"
	"habittrack/internal/habit"
	"habittrack/internal/metrics"
)

// ConsistencyFixer repairs gaps in historical data: it inserts default
// incomplete rows for every (date, habit) combination a user is missing
// and then rederives every streak from scratch. It runs on onboarding
// and as a maintenance operation, and is safe to run repeatedly.
type ConsistencyFixer struct {
	store   ProgressStore
	streaks *StreakEngine
	catalog *habit.Catalog
	cache   ViewCache // nil disables cache invalidation
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewConsistencyFixer(store ProgressStore, streaks *StreakEngine, catalog *habit.Catalog, cache ViewCache, logger *zap.Logger, m *metrics.Metrics) *ConsistencyFixer {
	return &ConsistencyFixer{
		store:   store,
		streaks: streaks,
		catalog: catalog,
		cache:   cache,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// sortedNames returns the catalog in lexicographic order. Every code
// path that locks more than one habit must lock in this order, or it
// can deadlock against a concurrent bulk write holding the same locks.
func (f *ConsistencyFixer) sortedNames() []string {
	names := append([]string(nil), f.catalog.Names()...)
	sort.Strings(names)
	return names
}

// Backfill fills every calendar date from the user's earliest record
// through today with default rows for habits that have none, then
// recomputes all streaks for the user. Running it twice leaves the
// stored state unchanged: inserts are insert-if-absent and the
// recomputation is idempotent.
func (f *ConsistencyFixer) Backfill(ctx context.Context, userID int) error {
	err := f.store.InTx(ctx, func(tx ProgressTx) error {
		// lock every pair up front: backfill walks all habits, and
		// holding the locks keeps concurrent writers out of the
		// recompute below
		names := f.sortedNames()
		for _, name := range names {
			if err := tx.LockHabit(ctx, userID, name); err != nil {
				return err
			}
		}

		end := dateOnly(f.now().UTC())
		start, found, err := tx.EarliestDate(ctx, userID)
		if err != nil {
			return err
		}
		if !found {
			start = end
		}

		inserted := 0
		for day := dateOnly(start); !day.After(end); day = day.AddDate(0, 0, 1) {
			for _, name := range names {
				ok, err := tx.InsertMissing(ctx, userID, day, name)
				if err != nil {
					// a concurrent insert of the same row is the benign
					// case the uniqueness constraint exists for
					if apperr.KindOf(err) == apperr.KindConflict {
						continue
					}
					return err
				}
				if ok {
					inserted++
				}
			}
		}
		f.metrics.AddBackfillInsertions(inserted)

		for _, name := range names {
			if err := f.streaks.Recompute(ctx, tx, userID, name); err != nil {
				return err
			}
		}

		f.logger.Info("Backfill completed",
			zap.Int("user_id", userID),
			zap.String("from", start.Format("2006-01-02")),
			zap.String("to", end.Format("2006-01-02")),
			zap.Int("rows_inserted", inserted),
		)
		return nil
	})
	if err != nil {
		return err
	}

	f.invalidate(ctx, userID)
	return nil
}

// RecomputeUser rederives every streak value for one user across the
// whole catalog.
func (f *ConsistencyFixer) RecomputeUser(ctx context.Context, userID int) error {
	err := f.store.InTx(ctx, func(tx ProgressTx) error {
		names := f.sortedNames()
		for _, name := range names {
			if err := tx.LockHabit(ctx, userID, name); err != nil {
				return err
			}
		}
		for _, name := range names {
			if err := f.streaks.Recompute(ctx, tx, userID, name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	f.invalidate(ctx, userID)
	return nil
}

// RecomputeAll sweeps every user that has progress rows. Failures are
// collected per user so one corrupt history does not stop the sweep;
// the operation is re-runnable.
func (f *ConsistencyFixer) RecomputeAll(ctx context.Context) error {
	var ids []int
	err := f.store.InTx(ctx, func(tx ProgressTx) error {
		var err error
		ids, err = tx.UserIDs(ctx)
		return err
	})
	if err != nil {
		return err
	}

	var errs []error
	for _, id := range ids {
		if err := f.RecomputeUser(ctx, id); err != nil {
			f.logger.Error("Recompute failed for user",
				zap.Int("user_id", id),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// invalidate runs after a committed repair. The repair may have touched
// any date in the user's history, so every cached day view goes.
func (f *ConsistencyFixer) invalidate(ctx context.Context, userID int) {
	if f.cache != nil {
		f.cache.InvalidateUser(ctx, userID)
	}
}
