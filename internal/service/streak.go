package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"habittrack/internal/apperr"
	"habittrack/internal/metrics"
	"habittrack/internal/model"
)

// StreakEngine derives streak values from the ordered history of one
// (user, habit) pair.
//
// The streak definition is calendar-continuous: a streak is the count
// of consecutive calendar days, ending at a given date, on which the
// habit was completed. Any false status and any missing calendar day
// break the chain.
type StreakEngine struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewStreakEngine(logger *zap.Logger, m *metrics.Metrics) *StreakEngine {
	return &StreakEngine{
		logger:  logger,
		metrics: m,
	}
}

// ComputeStreaks makes one ascending pass over a habit history and
// returns the streak values that differ from what is stored.
//
// history must be ordered by date ascending and contain one row per
// date; anything else means the store's uniqueness invariant is broken,
// and it is reported rather than papered over with wrong streaks.
func ComputeStreaks(history []model.Progress) ([]StreakUpdate, error) {
	var updates []StreakUpdate

	counter := 0
	var prev time.Time
	havePrev := false

	for _, rec := range history {
		if havePrev && !rec.Date.After(prev) {
			return nil, apperr.Consistencyf(
				"habit history out of order: %s is not after %s",
				rec.Date.Format("2006-01-02"), prev.Format("2006-01-02"),
			)
		}

		switch {
		case !rec.Status:
			counter = 0
		case !havePrev || !rec.Date.Equal(prev.AddDate(0, 0, 1)):
			// first record, or the previous calendar day is missing:
			// the chain restarts at one
			counter = 1
		default:
			counter++
		}

		if rec.Streak != counter {
			updates = append(updates, StreakUpdate{ID: rec.ID, Streak: counter})
		}

		prev = rec.Date
		havePrev = true
	}

	return updates, nil
}

// Recompute rederives every streak value of one (user, habit) pair and
// persists the changed ones in a batch.
//
// It always recomputes the whole series: editing one record can shift
// the streak of every later record, and a full pass is the only variant
// whose post-state is easy to reason about. It is idempotent; a second
// run persists nothing.
func (e *StreakEngine) Recompute(ctx context.Context, tx ProgressTx, userID int, habit string) error {
	start := time.Now()

	history, err := tx.History(ctx, userID, habit)
	if err != nil {
		return err
	}

	updates, err := ComputeStreaks(history)
	if err != nil {
		e.logger.Error("Streak recomputation aborted on malformed history",
			zap.Int("user_id", userID),
			zap.String("habit", habit),
			zap.Error(err),
		)
		return err
	}

	if err := tx.SetStreaks(ctx, updates); err != nil {
		return err
	}

	e.metrics.ObserveRecompute(time.Since(start))
	e.logger.Debug("Recomputed streaks",
		zap.Int("user_id", userID),
		zap.String("habit", habit),
		zap.Int("history_len", len(history)),
		zap.Int("changed", len(updates)),
	)
	return nil
}
