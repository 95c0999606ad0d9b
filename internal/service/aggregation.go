package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"habittrack/internal/habit"
	"habittrack/internal/model"
)

// AggregationView assembles complete per-date views across the full
// habit catalog. Dates or habits that were never written are filled
// with synthetic defaults in memory; the view never writes to storage.
type AggregationView struct {
	store   ProgressStore
	catalog *habit.Catalog
	cache   ViewCache // nil disables caching
	logger  *zap.Logger
	now     func() time.Time
}

func NewAggregationView(store ProgressStore, catalog *habit.Catalog, cache ViewCache, logger *zap.Logger) *AggregationView {
	return &AggregationView{
		store:   store,
		catalog: catalog,
		cache:   cache,
		logger:  logger,
		now:     time.Now,
	}
}

// Day returns one record per catalog habit for the given date, in
// catalog declaration order. Missing combinations come back as
// {id: 0, status: false, streak: 0}.
func (v *AggregationView) Day(ctx context.Context, userID int, date time.Time) ([]model.Progress, error) {
	day := dateOnly(date)

	if v.cache != nil {
		if cached, ok := v.cache.GetDay(ctx, userID, day); ok {
			return cached, nil
		}
	}

	stored, err := v.store.Range(ctx, userID, day, day)
	if err != nil {
		return nil, err
	}

	byHabit := make(map[string]model.Progress, len(stored))
	for _, rec := range stored {
		byHabit[rec.Habit] = rec
	}

	out := make([]model.Progress, 0, v.catalog.Len())
	for _, name := range v.catalog.Names() {
		out = append(out, rowOrDefault(byHabit, userID, day, name))
	}

	if v.cache != nil {
		v.cache.SetDay(ctx, userID, day, out)
	}
	return out, nil
}

// Week returns 7 consecutive days times every catalog habit, ordered by
// date ascending then catalog order. start defaults to six days before
// today, so the window ends on the current date.
func (v *AggregationView) Week(ctx context.Context, userID int, start *time.Time) ([]model.Progress, error) {
	var from time.Time
	if start != nil {
		from = dateOnly(*start)
	} else {
		from = dateOnly(v.now().UTC()).AddDate(0, 0, -6)
	}
	to := from.AddDate(0, 0, 6)

	stored, err := v.store.Range(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	type key struct {
		date  time.Time
		habit string
	}
	byKey := make(map[key]model.Progress, len(stored))
	for _, rec := range stored {
		byKey[key{dateOnly(rec.Date), rec.Habit}] = rec
	}

	out := make([]model.Progress, 0, 7*v.catalog.Len())
	for i := 0; i < 7; i++ {
		day := from.AddDate(0, 0, i)
		for _, name := range v.catalog.Names() {
			if rec, ok := byKey[key{day, name}]; ok {
				out = append(out, rec)
			} else {
				out = append(out, syntheticRow(userID, day, name))
			}
		}
	}
	return out, nil
}

func rowOrDefault(byHabit map[string]model.Progress, userID int, day time.Time, name string) model.Progress {
	if rec, ok := byHabit[name]; ok {
		return rec
	}
	return syntheticRow(userID, day, name)
}

func syntheticRow(userID int, day time.Time, name string) model.Progress {
	return model.Progress{
		ID:     0,
		UserID: userID,
		Date:   day,
		Habit:  name,
		Status: false,
		Streak: 0,
	}
}
