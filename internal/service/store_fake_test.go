package service

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"habittrack/internal/apperr"
	"habittrack/internal/model"
)

// fakeStore is an in-memory ProgressStore with real rollback semantics:
// InTx snapshots the rows and restores them when fn fails.
type fakeStore struct {
	rows   map[int]model.Progress
	nextID int

	txCount    int
	writeCount int
	lockOrder  []string

	upsertErr      error
	upsertErrHabit string
	setStreaksErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rows:   make(map[int]model.Progress),
		nextID: 1,
	}
}

func (s *fakeStore) seed(userID int, date time.Time, habit string, status bool, streak int) model.Progress {
	rec := model.Progress{
		ID:     s.nextID,
		UserID: userID,
		Date:   date,
		Habit:  habit,
		Status: status,
		Streak: streak,
	}
	s.rows[rec.ID] = rec
	s.nextID++
	return rec
}

func (s *fakeStore) snapshot() map[int]model.Progress {
	copied := make(map[int]model.Progress, len(s.rows))
	for id, rec := range s.rows {
		copied[id] = rec
	}
	return copied
}

func (s *fakeStore) InTx(ctx context.Context, fn func(ProgressTx) error) error {
	s.txCount++
	before := s.snapshot()
	beforeNextID := s.nextID

	if err := fn(s); err != nil {
		s.rows = before
		s.nextID = beforeNextID
		return err
	}
	return nil
}

func (s *fakeStore) Range(ctx context.Context, userID int, from, to time.Time) ([]model.Progress, error) {
	var out []model.Progress
	for _, rec := range s.rows {
		if rec.UserID == userID && !rec.Date.Before(from) && !rec.Date.After(to) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Habit < out[j].Habit
	})
	return out, nil
}

func (s *fakeStore) LockHabit(ctx context.Context, userID int, habit string) error {
	s.lockOrder = append(s.lockOrder, habit)
	return nil
}

func (s *fakeStore) Get(ctx context.Context, userID int, date time.Time, habit string) (model.Progress, error) {
	for _, rec := range s.rows {
		if rec.UserID == userID && rec.Date.Equal(date) && rec.Habit == habit {
			return rec, nil
		}
	}
	return model.Progress{}, apperr.NotFoundf("no progress for %s", habit)
}

func (s *fakeStore) GetByID(ctx context.Context, id, userID int) (model.Progress, error) {
	rec, ok := s.rows[id]
	if !ok || rec.UserID != userID {
		return model.Progress{}, apperr.NotFoundf("progress record %d not found", id)
	}
	return rec, nil
}

func (s *fakeStore) History(ctx context.Context, userID int, habit string) ([]model.Progress, error) {
	var out []model.Progress
	for _, rec := range s.rows {
		if rec.UserID == userID && rec.Habit == habit {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *fakeStore) Upsert(ctx context.Context, userID int, date time.Time, habit string, status bool) (model.Progress, error) {
	if s.upsertErr != nil && (s.upsertErrHabit == "" || s.upsertErrHabit == habit) {
		return model.Progress{}, s.upsertErr
	}

	s.writeCount++
	for id, rec := range s.rows {
		if rec.UserID == userID && rec.Date.Equal(date) && rec.Habit == habit {
			rec.Status = status
			s.rows[id] = rec
			return rec, nil
		}
	}
	return s.seed(userID, date, habit, status, 0), nil
}

func (s *fakeStore) UpdateStatusByID(ctx context.Context, id, userID int, status bool) (model.Progress, error) {
	rec, ok := s.rows[id]
	if !ok || rec.UserID != userID {
		return model.Progress{}, apperr.NotFoundf("progress record %d not found", id)
	}
	s.writeCount++
	rec.Status = status
	s.rows[id] = rec
	return rec, nil
}

func (s *fakeStore) SetStreaks(ctx context.Context, updates []StreakUpdate) error {
	if s.setStreaksErr != nil {
		return s.setStreaksErr
	}
	for _, u := range updates {
		rec, ok := s.rows[u.ID]
		if !ok {
			return apperr.Storage("streak update for unknown row", nil)
		}
		s.writeCount++
		rec.Streak = u.Streak
		s.rows[u.ID] = rec
	}
	return nil
}

func (s *fakeStore) InsertMissing(ctx context.Context, userID int, date time.Time, habit string) (bool, error) {
	for _, rec := range s.rows {
		if rec.UserID == userID && rec.Date.Equal(date) && rec.Habit == habit {
			return false, nil
		}
	}
	s.writeCount++
	s.seed(userID, date, habit, false, 0)
	return true, nil
}

func (s *fakeStore) EarliestDate(ctx context.Context, userID int) (time.Time, bool, error) {
	var earliest time.Time
	found := false
	for _, rec := range s.rows {
		if rec.UserID != userID {
			continue
		}
		if !found || rec.Date.Before(earliest) {
			earliest = rec.Date
			found = true
		}
	}
	return earliest, found, nil
}

func (s *fakeStore) UserIDs(ctx context.Context) ([]int, error) {
	seen := make(map[int]bool)
	for _, rec := range s.rows {
		seen[rec.UserID] = true
	}
	var ids []int
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

// find returns the stored row for a key, failing the test if absent.
func (s *fakeStore) find(t *testing.T, userID int, date time.Time, habit string) model.Progress {
	t.Helper()
	rec, err := s.Get(context.Background(), userID, date, habit)
	if err != nil {
		t.Fatalf("expected row for %s on %s: %v", habit, date.Format("2006-01-02"), err)
	}
	return rec
}

// fakeViewCache stores day views in memory and records invalidation
// calls so tests can assert which cached views a write or repair drops.
type fakeViewCache struct {
	days   map[string][]model.Progress
	ranges []invalidatedRange
	users  []int
}

type invalidatedRange struct {
	userID   int
	from, to time.Time
}

func (c *fakeViewCache) key(userID int, day time.Time) string {
	return fmt.Sprintf("%d/%s", userID, day.Format("2006-01-02"))
}

func (c *fakeViewCache) GetDay(ctx context.Context, userID int, day time.Time) ([]model.Progress, bool) {
	records, ok := c.days[c.key(userID, day)]
	return records, ok
}

func (c *fakeViewCache) SetDay(ctx context.Context, userID int, day time.Time, records []model.Progress) {
	if c.days == nil {
		c.days = make(map[string][]model.Progress)
	}
	c.days[c.key(userID, day)] = records
}

func (c *fakeViewCache) InvalidateRange(ctx context.Context, userID int, from, to time.Time) {
	c.ranges = append(c.ranges, invalidatedRange{userID: userID, from: from, to: to})
}

func (c *fakeViewCache) InvalidateUser(ctx context.Context, userID int) {
	c.users = append(c.users, userID)
}

func mustDate(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", value)
	if err != nil {
		t.Fatalf("bad date %q: %v", value, err)
	}
	return d
}
