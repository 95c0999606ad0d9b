package service

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"habittrack/internal/apperr"
	"habittrack/internal/habit"
	"habittrack/internal/metrics"
)

func newTestWriter(t *testing.T, store *fakeStore) *ProgressWriter {
	t.Helper()
	return newTestWriterWithCache(t, store, nil)
}

func newTestWriterWithCache(t *testing.T, store *fakeStore, cache ViewCache) *ProgressWriter {
	t.Helper()
	catalog, err := habit.NewCatalog([]string{"Workout", "Read"})
	require.NoError(t, err)

	m := metrics.New(prometheus.NewRegistry())
	engine := NewStreakEngine(zap.NewNop(), m)
	return NewProgressWriter(store, engine, catalog, nil, cache, zap.NewNop(), m)
}

func TestUpdateSingleRejectsUnknownHabitBeforeStorage(t *testing.T) {
	store := newFakeStore()
	writer := newTestWriter(t, store)

	_, err := writer.UpdateSingle(context.Background(), 1, mustDate(t, "2025-01-01"), "Juggling", true)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Zero(t, store.txCount, "validation must fail before any storage round trip")
}

func TestUpdateSingleRejectsFutureDate(t *testing.T) {
	store := newFakeStore()
	writer := newTestWriter(t, store)

	future := today().AddDate(0, 0, 2)
	_, err := writer.UpdateSingle(context.Background(), 1, future, "Workout", true)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Zero(t, store.txCount)
}

func TestUpdateSingleExtendsStreak(t *testing.T) {
	store := newFakeStore()
	writer := newTestWriter(t, store)
	jan1 := mustDate(t, "2025-01-01")
	store.seed(1, jan1, "Workout", true, 1)

	rec, err := writer.UpdateSingle(context.Background(), 1, jan1.AddDate(0, 0, 1), "Workout", true)
	require.NoError(t, err)
	assert.True(t, rec.Status)
	assert.Equal(t, 2, rec.Streak, "calendar-adjacent completion continues the chain")
}

func TestUpdateSingleFalseZeroesStreakAndShiftsLaterDays(t *testing.T) {
	store := newFakeStore()
	writer := newTestWriter(t, store)
	jan1 := mustDate(t, "2025-01-01")
	store.seed(1, jan1, "Workout", true, 1)
	store.seed(1, jan1.AddDate(0, 0, 1), "Workout", true, 2)

	rec, err := writer.UpdateSingle(context.Background(), 1, jan1, "Workout", false)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Streak)

	// the later day lost its predecessor and restarts at one
	assert.Equal(t, 1, store.find(t, 1, jan1.AddDate(0, 0, 1), "Workout").Streak)
}

func TestUpdateBulkRejectsWholeBatchOnOneInvalidHabit(t *testing.T) {
	store := newFakeStore()
	writer := newTestWriter(t, store)
	jan1 := mustDate(t, "2025-01-01")
	seeded := store.seed(1, jan1, "Workout", false, 0)

	err := writer.UpdateBulk(context.Background(), 1, jan1, map[string]bool{
		"Workout":  true,
		"Juggling": true,
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Zero(t, store.txCount)
	assert.Equal(t, seeded, store.rows[seeded.ID], "no record in the batch's date may be mutated")
}

func TestUpdateBulkRollsBackOnMidBatchFailure(t *testing.T) {
	store := newFakeStore()
	writer := newTestWriter(t, store)
	jan1 := mustDate(t, "2025-01-01")
	store.upsertErr = errors.New("connection reset")
	store.upsertErrHabit = "Workout" // sorted after "Read", so "Read" lands first, then fails

	err := writer.UpdateBulk(context.Background(), 1, jan1, map[string]bool{
		"Read":    true,
		"Workout": true,
	})
	require.Error(t, err)
	assert.Empty(t, store.rows, "either the whole batch lands or none of it does")
}

func TestUpdateBulkRecomputesOncePerHabit(t *testing.T) {
	store := newFakeStore()
	writer := newTestWriter(t, store)
	jan1 := mustDate(t, "2025-01-01")
	store.seed(1, jan1, "Read", true, 1)

	err := writer.UpdateBulk(context.Background(), 1, jan1.AddDate(0, 0, 1), map[string]bool{
		"Workout": true,
		"Read":    true,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, store.find(t, 1, jan1.AddDate(0, 0, 1), "Read").Streak)
	assert.Equal(t, 1, store.find(t, 1, jan1.AddDate(0, 0, 1), "Workout").Streak)
	assert.Equal(t, []string{"Read", "Workout"}, store.lockOrder, "locks taken in sorted habit order")
}

func TestUpdateByIDUnknownRecord(t *testing.T) {
	store := newFakeStore()
	writer := newTestWriter(t, store)

	_, err := writer.UpdateByID(context.Background(), 1, 42, true)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestUpdateByIDOtherUsersRecord(t *testing.T) {
	store := newFakeStore()
	writer := newTestWriter(t, store)
	rec := store.seed(2, mustDate(t, "2025-01-01"), "Workout", true, 1)

	_, err := writer.UpdateByID(context.Background(), 1, rec.ID, false)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.True(t, store.rows[rec.ID].Status, "other user's row stays untouched")
}

func TestUpdateByIDRecomputesHabitSeries(t *testing.T) {
	store := newFakeStore()
	writer := newTestWriter(t, store)
	jan1 := mustDate(t, "2025-01-01")
	first := store.seed(1, jan1, "Workout", true, 1)
	store.seed(1, jan1.AddDate(0, 0, 1), "Workout", true, 2)

	rec, err := writer.UpdateByID(context.Background(), 1, first.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Streak)
	assert.Equal(t, 1, store.find(t, 1, jan1.AddDate(0, 0, 1), "Workout").Streak)
}

func TestUpdateSingleInvalidatesWrittenDateThroughToday(t *testing.T) {
	store := newFakeStore()
	cache := &fakeViewCache{}
	writer := newTestWriterWithCache(t, store, cache)

	// recomputation shifted the streaks of every later date too, so the
	// cached views between the written date and today are all stale
	day := today().AddDate(0, 0, -3)
	_, err := writer.UpdateSingle(context.Background(), 1, day, "Workout", true)
	require.NoError(t, err)

	require.Len(t, cache.ranges, 1)
	assert.Equal(t, 1, cache.ranges[0].userID)
	assert.True(t, cache.ranges[0].from.Equal(day))
	assert.True(t, cache.ranges[0].to.Equal(today()))
}

func TestUpdateBulkInvalidatesWrittenDateThroughToday(t *testing.T) {
	store := newFakeStore()
	cache := &fakeViewCache{}
	writer := newTestWriterWithCache(t, store, cache)

	day := today().AddDate(0, 0, -1)
	err := writer.UpdateBulk(context.Background(), 1, day, map[string]bool{"Workout": true, "Read": false})
	require.NoError(t, err)

	require.Len(t, cache.ranges, 1)
	assert.True(t, cache.ranges[0].from.Equal(day))
	assert.True(t, cache.ranges[0].to.Equal(today()))
}

func TestFailedUpdateLeavesCacheAlone(t *testing.T) {
	store := newFakeStore()
	store.upsertErr = assert.AnError
	cache := &fakeViewCache{}
	writer := newTestWriterWithCache(t, store, cache)

	_, err := writer.UpdateSingle(context.Background(), 1, today(), "Workout", true)
	require.Error(t, err)

	assert.Empty(t, cache.ranges, "a rolled back write drops nothing")
}
