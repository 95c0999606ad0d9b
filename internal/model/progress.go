package model

import "time"

// Progress is one row of the progress table: whether a habit was
// completed by a user on a calendar date, and the length of the run of
// consecutive completed days ending at that date.
//
// At most one row exists per (user_id, date, habit). Synthetic rows
// returned by the read views carry ID 0 and are never persisted.
type Progress struct {
	ID     int       `json:"id"`
	UserID int       `json:"user_id"`
	Date   time.Time `json:"date"`
	Habit  string    `json:"habit"`
	Status bool      `json:"status"`
	Streak int       `json:"streak"`
}
