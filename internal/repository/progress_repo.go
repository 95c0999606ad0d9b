package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"habittrack/internal/apperr"
	"habittrack/internal/model"
	"habittrack/internal/service"
)

const progressColumns = "id, user_id, date, habit, status, streak"

// ProgressRepository persists progress rows. All mutations run through
// InTx so that status writes and streak recomputation commit together.
type ProgressRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewProgressRepository(db *pgxpool.Pool, logger *zap.Logger) *ProgressRepository {
	return &ProgressRepository{
		db:     db,
		logger: logger,
	}
}

// InTx runs fn inside a transaction. Any error from fn rolls the whole
// transaction back, so callers never observe a status written without
// its recomputed streaks.
func (r *ProgressRepository) InTx(ctx context.Context, fn func(service.ProgressTx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return apperr.Storage("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&progressTx{tx: tx, logger: r.logger}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Storage("failed to commit transaction", err)
	}
	return nil
}

// Range returns stored rows for one user between from and to inclusive,
// ordered by date then habit. It is the read path for the aggregation
// views and never writes.
func (r *ProgressRepository) Range(ctx context.Context, userID int, from, to time.Time) ([]model.Progress, error) {
	query := `
        SELECT ` + progressColumns + `
        FROM progress
        WHERE user_id = $1 AND date BETWEEN $2 AND $3
        ORDER BY date ASC, habit ASC
    `

	rows, err := r.db.Query(ctx, query, userID, from, to)
	if err != nil {
		r.logger.Error("Failed to query progress range", zap.Int("user_id", userID), zap.Error(err))
		return nil, apperr.Storage("failed to query progress range", err)
	}
	defer rows.Close()

	return scanProgressRows(rows)
}

type progressTx struct {
	tx     pgx.Tx
	logger *zap.Logger
}

// LockHabit serializes writers of one (user, habit) pair for the rest
// of the transaction. The lock is released on commit or rollback.
func (t *progressTx) LockHabit(ctx context.Context, userID int, habit string) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1, hashtext($2))`, userID, habit)
	if err != nil {
		return apperr.Storage("failed to acquire habit lock", err)
	}
	return nil
}

func (t *progressTx) Get(ctx context.Context, userID int, date time.Time, habit string) (model.Progress, error) {
	query := `
        SELECT ` + progressColumns + `
        FROM progress
        WHERE user_id = $1 AND date = $2 AND habit = $3
    `

	var p model.Progress
	err := t.tx.QueryRow(ctx, query, userID, date, habit).Scan(
		&p.ID, &p.UserID, &p.Date, &p.Habit, &p.Status, &p.Streak,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Progress{}, apperr.NotFoundf("no progress for %s on %s", habit, date.Format("2006-01-02"))
	}
	if err != nil {
		return model.Progress{}, apperr.Storage("failed to fetch progress", err)
	}
	return p, nil
}

func (t *progressTx) GetByID(ctx context.Context, id, userID int) (model.Progress, error) {
	query := `
        SELECT ` + progressColumns + `
        FROM progress
        WHERE id = $1 AND user_id = $2
    `

	var p model.Progress
	err := t.tx.QueryRow(ctx, query, id, userID).Scan(
		&p.ID, &p.UserID, &p.Date, &p.Habit, &p.Status, &p.Streak,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Progress{}, apperr.NotFoundf("progress record %d not found", id)
	}
	if err != nil {
		return model.Progress{}, apperr.Storage("failed to fetch progress by id", err)
	}
	return p, nil
}

// History returns the full ordered history of one (user, habit) pair,
// the unit the streak pass operates on.
func (t *progressTx) History(ctx context.Context, userID int, habit string) ([]model.Progress, error) {
	query := `
        SELECT ` + progressColumns + `
        FROM progress
        WHERE user_id = $1 AND habit = $2
        ORDER BY date ASC
    `

	rows, err := t.tx.Query(ctx, query, userID, habit)
	if err != nil {
		return nil, apperr.Storage("failed to query habit history", err)
	}
	defer rows.Close()

	return scanProgressRows(rows)
}

// Upsert inserts the row or updates its status, atomically, keyed on
// the (user_id, date, habit) uniqueness constraint.
func (t *progressTx) Upsert(ctx context.Context, userID int, date time.Time, habit string, status bool) (model.Progress, error) {
	query := `
        INSERT INTO progress (user_id, date, habit, status, streak)
        VALUES ($1, $2, $3, $4, 0)
        ON CONFLICT (user_id, date, habit)
        DO UPDATE SET status = EXCLUDED.status
        RETURNING ` + progressColumns

	var p model.Progress
	err := t.tx.QueryRow(ctx, query, userID, date, habit, status).Scan(
		&p.ID, &p.UserID, &p.Date, &p.Habit, &p.Status, &p.Streak,
	)
	if err != nil {
		t.logger.Error("Failed to upsert progress",
			zap.Int("user_id", userID),
			zap.String("habit", habit),
			zap.Error(err),
		)
		return model.Progress{}, apperr.Storage("failed to upsert progress", err)
	}
	return p, nil
}

func (t *progressTx) UpdateStatusByID(ctx context.Context, id, userID int, status bool) (model.Progress, error) {
	query := `
        UPDATE progress
        SET status = $3
        WHERE id = $1 AND user_id = $2
        RETURNING ` + progressColumns

	var p model.Progress
	err := t.tx.QueryRow(ctx, query, id, userID, status).Scan(
		&p.ID, &p.UserID, &p.Date, &p.Habit, &p.Status, &p.Streak,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Progress{}, apperr.NotFoundf("progress record %d not found", id)
	}
	if err != nil {
		return model.Progress{}, apperr.Storage("failed to update progress status", err)
	}
	return p, nil
}

// SetStreaks persists recomputed streak values in one batch round trip.
func (t *progressTx) SetStreaks(ctx context.Context, updates []service.StreakUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, u := range updates {
		batch.Queue(`UPDATE progress SET streak = $2 WHERE id = $1`, u.ID, u.Streak)
	}

	results := t.tx.SendBatch(ctx, batch)
	defer results.Close()

	for range updates {
		if _, err := results.Exec(); err != nil {
			return apperr.Storage("failed to persist streak values", err)
		}
	}
	return nil
}

// InsertMissing inserts a default incomplete row unless one already
// exists. A uniqueness conflict means another writer got there first;
// that is the expected benign case during backfill, so it is absorbed
// by DO NOTHING rather than surfaced.
func (t *progressTx) InsertMissing(ctx context.Context, userID int, date time.Time, habit string) (bool, error) {
	query := `
        INSERT INTO progress (user_id, date, habit, status, streak)
        VALUES ($1, $2, $3, FALSE, 0)
        ON CONFLICT (user_id, date, habit) DO NOTHING
    `

	tag, err := t.tx.Exec(ctx, query, userID, date, habit)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return false, apperr.Conflict("progress row already exists", err)
		}
		return false, apperr.Storage("failed to insert default progress", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (t *progressTx) EarliestDate(ctx context.Context, userID int) (time.Time, bool, error) {
	var earliest *time.Time
	err := t.tx.QueryRow(ctx,
		`SELECT MIN(date) FROM progress WHERE user_id = $1`, userID,
	).Scan(&earliest)
	if err != nil {
		return time.Time{}, false, apperr.Storage("failed to find earliest progress date", err)
	}
	if earliest == nil {
		return time.Time{}, false, nil
	}
	return *earliest, true, nil
}

func (t *progressTx) UserIDs(ctx context.Context) ([]int, error) {
	rows, err := t.tx.Query(ctx, `SELECT DISTINCT user_id FROM progress ORDER BY user_id`)
	if err != nil {
		return nil, apperr.Storage("failed to list users with progress", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Storage("failed to scan user id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanProgressRows(rows pgx.Rows) ([]model.Progress, error) {
	var records []model.Progress
	for rows.Next() {
		var p model.Progress
		if err := rows.Scan(&p.ID, &p.UserID, &p.Date, &p.Habit, &p.Status, &p.Streak); err != nil {
			return nil, apperr.Storage("failed to scan progress row", err)
		}
		records = append(records, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(fmt.Sprintf("progress rows iteration failed after %d rows", len(records)), err)
	}
	return records, nil
}
