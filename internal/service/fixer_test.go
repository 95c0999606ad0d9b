package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"habittrack/internal/habit"
	"habittrack/internal/metrics"
)

func newTestFixer(t *testing.T, store *fakeStore, now string) *ConsistencyFixer {
	t.Helper()
	return newTestFixerWithCache(t, store, nil, now)
}

func newTestFixerWithCache(t *testing.T, store *fakeStore, cache ViewCache, now string) *ConsistencyFixer {
	t.Helper()
	catalog, err := habit.NewCatalog([]string{"Workout", "Read"})
	require.NoError(t, err)

	m := metrics.New(prometheus.NewRegistry())
	engine := NewStreakEngine(zap.NewNop(), m)
	fixer := NewConsistencyFixer(store, engine, catalog, cache, zap.NewNop(), m)

	fixed := mustDate(t, now)
	fixer.now = func() time.Time { return fixed }
	return fixer
}

func TestBackfillFillsEveryMissingDateHabitPair(t *testing.T) {
	store := newFakeStore()
	fixer := newTestFixer(t, store, "2025-01-05")
	jan1 := mustDate(t, "2025-01-01")
	store.seed(1, jan1, "Workout", true, 0)
	store.seed(1, mustDate(t, "2025-01-03"), "Workout", true, 0)

	require.NoError(t, fixer.Backfill(context.Background(), 1))

	// 5 dates x 2 habits
	assert.Len(t, store.rows, 10)

	for i := 0; i < 5; i++ {
		day := jan1.AddDate(0, 0, i)
		store.find(t, 1, day, "Workout")
		read := store.find(t, 1, day, "Read")
		assert.False(t, read.Status, "backfilled rows default to incomplete")
		assert.Zero(t, read.Streak)
	}

	// streaks recomputed over the repaired series: Jan 2 was filled with
	// a false default, so Jan 3 restarts at one
	assert.Equal(t, 1, store.find(t, 1, jan1, "Workout").Streak)
	assert.Equal(t, 1, store.find(t, 1, mustDate(t, "2025-01-03"), "Workout").Streak)
	assert.Equal(t, 0, store.find(t, 1, mustDate(t, "2025-01-02"), "Workout").Streak)
}

func TestBackfillIsIdempotent(t *testing.T) {
	store := newFakeStore()
	fixer := newTestFixer(t, store, "2025-01-04")
	store.seed(1, mustDate(t, "2025-01-01"), "Workout", true, 0)
	store.seed(1, mustDate(t, "2025-01-02"), "Workout", true, 0)

	require.NoError(t, fixer.Backfill(context.Background(), 1))
	rowCount := len(store.rows)
	streaks := snapshotStreaks(store)

	require.NoError(t, fixer.Backfill(context.Background(), 1))

	assert.Equal(t, rowCount, len(store.rows), "second run inserts nothing")
	assert.Equal(t, streaks, snapshotStreaks(store), "second run drifts no streak")
}

func TestBackfillWithNoHistoryCoversOnlyToday(t *testing.T) {
	store := newFakeStore()
	fixer := newTestFixer(t, store, "2025-06-01")

	require.NoError(t, fixer.Backfill(context.Background(), 1))

	assert.Len(t, store.rows, 2, "one default row per habit, today only")
	for _, rec := range store.rows {
		assert.True(t, rec.Date.Equal(mustDate(t, "2025-06-01")))
		assert.False(t, rec.Status)
	}
}

func TestBackfillDoesNotTouchOtherUsers(t *testing.T) {
	store := newFakeStore()
	fixer := newTestFixer(t, store, "2025-01-02")
	other := store.seed(2, mustDate(t, "2024-12-01"), "Workout", true, 1)

	require.NoError(t, fixer.Backfill(context.Background(), 1))

	assert.Equal(t, other, store.rows[other.ID])
	for _, rec := range store.rows {
		if rec.ID == other.ID {
			continue
		}
		assert.Equal(t, 1, rec.UserID)
	}
}

func TestRecomputeAllSweepsEveryUser(t *testing.T) {
	store := newFakeStore()
	fixer := newTestFixer(t, store, "2025-01-03")
	store.seed(1, mustDate(t, "2025-01-01"), "Workout", true, 0)
	store.seed(1, mustDate(t, "2025-01-02"), "Workout", true, 0)
	store.seed(2, mustDate(t, "2025-01-02"), "Read", true, 5)

	require.NoError(t, fixer.RecomputeAll(context.Background()))

	assert.Equal(t, 2, store.find(t, 1, mustDate(t, "2025-01-02"), "Workout").Streak)
	assert.Equal(t, 1, store.find(t, 2, mustDate(t, "2025-01-02"), "Read").Streak)
}

func TestBackfillLocksHabitsInSortedOrder(t *testing.T) {
	store := newFakeStore()
	// catalog declares Workout before Read; locks must still follow
	// lexicographic order so the repair cannot deadlock a bulk writer
	// holding the same locks
	fixer := newTestFixer(t, store, "2025-01-03")

	require.NoError(t, fixer.Backfill(context.Background(), 1))

	assert.Equal(t, []string{"Read", "Workout"}, store.lockOrder)
}

func TestRecomputeUserLocksHabitsInSortedOrder(t *testing.T) {
	store := newFakeStore()
	fixer := newTestFixer(t, store, "2025-01-03")
	store.seed(1, mustDate(t, "2025-01-01"), "Workout", true, 0)

	require.NoError(t, fixer.RecomputeUser(context.Background(), 1))

	assert.Equal(t, []string{"Read", "Workout"}, store.lockOrder)
}

func TestBackfillDropsUserCachedViews(t *testing.T) {
	store := newFakeStore()
	cache := &fakeViewCache{}
	fixer := newTestFixerWithCache(t, store, cache, "2025-01-03")
	store.seed(1, mustDate(t, "2025-01-01"), "Workout", true, 0)

	require.NoError(t, fixer.Backfill(context.Background(), 1))

	assert.Equal(t, []int{1}, cache.users, "repaired history invalidates every cached day view of the user")
}

func TestFailedBackfillLeavesCacheAlone(t *testing.T) {
	store := newFakeStore()
	store.setStreaksErr = assert.AnError
	cache := &fakeViewCache{}
	fixer := newTestFixerWithCache(t, store, cache, "2025-01-03")
	store.seed(1, mustDate(t, "2025-01-01"), "Workout", true, 0)

	require.Error(t, fixer.Backfill(context.Background(), 1))

	assert.Empty(t, cache.users, "a rolled back repair drops nothing")
}

func TestRecomputeAllDropsCachedViewsPerUser(t *testing.T) {
	store := newFakeStore()
	cache := &fakeViewCache{}
	fixer := newTestFixerWithCache(t, store, cache, "2025-01-03")
	store.seed(1, mustDate(t, "2025-01-02"), "Workout", true, 0)
	store.seed(2, mustDate(t, "2025-01-02"), "Read", true, 0)

	require.NoError(t, fixer.RecomputeAll(context.Background()))

	assert.Equal(t, []int{1, 2}, cache.users)
}
