package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the tables and indexes if they do not exist.
//
// The unique constraint on (user_id, date, habit) is load-bearing: the
// upsert and backfill paths rely on it to make concurrent inserts of
// the same row collapse into one.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS progress (
		id SERIAL PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		date DATE NOT NULL,
		habit TEXT NOT NULL,
		status BOOLEAN NOT NULL DEFAULT FALSE,
		streak INTEGER NOT NULL DEFAULT 0,
		UNIQUE (user_id, date, habit)
	);

	CREATE INDEX IF NOT EXISTS idx_progress_user_date ON progress(user_id, date);
	CREATE INDEX IF NOT EXISTS idx_progress_user_habit_date ON progress(user_id, habit, date);
	`

	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
