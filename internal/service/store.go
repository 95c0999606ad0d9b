package service

import (
	"context"
	"time"

	"habittrack/internal/model"
)

// StreakUpdate is one recomputed streak value to persist.
type StreakUpdate struct {
	ID     int
	Streak int
}

// ProgressTx is the transactional surface of the progress store. Every
// write path runs against it so that status changes and the streak
// values derived from them commit or roll back together.
type ProgressTx interface {
	// LockHabit serializes writers of one (user, habit) pair for the
	// rest of the transaction.
	LockHabit(ctx context.Context, userID int, habit string) error
	Get(ctx context.Context, userID int, date time.Time, habit string) (model.Progress, error)
	GetByID(ctx context.Context, id, userID int) (model.Progress, error)
	History(ctx context.Context, userID int, habit string) ([]model.Progress, error)
	Upsert(ctx context.Context, userID int, date time.Time, habit string, status bool) (model.Progress, error)
	UpdateStatusByID(ctx context.Context, id, userID int, status bool) (model.Progress, error)
	SetStreaks(ctx context.Context, updates []StreakUpdate) error
	InsertMissing(ctx context.Context, userID int, date time.Time, habit string) (bool, error)
	EarliestDate(ctx context.Context, userID int) (time.Time, bool, error)
	UserIDs(ctx context.Context) ([]int, error)
}

// ProgressStore is what the progress services need from persistence.
type ProgressStore interface {
	InTx(ctx context.Context, fn func(ProgressTx) error) error
	// Range is the read-only path for the aggregation views.
	Range(ctx context.Context, userID int, from, to time.Time) ([]model.Progress, error)
}

// EventPublisher is the slice of the MQ producer the services use.
type EventPublisher interface {
	Publish(routingKey string, payload any) error
}

// dateOnly truncates a timestamp to its UTC calendar date, the
// granularity every progress row is keyed on.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func today() time.Time {
	return dateOnly(time.Now().UTC())
}
