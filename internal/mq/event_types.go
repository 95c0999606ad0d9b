package mq

import "time"

// Routing keys on the events exchange.
const (
	RoutingKeyProgressUpdated   = "progress.updated"
	RoutingKeyUserRegistered    = "user.registered"
	RoutingKeyProgressRecompute = "progress.recompute"
)

// ProgressUpdatedPayload is published after a status write commits.
type ProgressUpdatedPayload struct {
	UserID    int       `json:"user_id"`
	Date      time.Time `json:"date"`
	Habits    []string  `json:"habits"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserRegisteredPayload is published on signup; it drives the
// onboarding backfill.
type UserRegisteredPayload struct {
	UserID int    `json:"user_id"`
	Email  string `json:"email"`
}

// ProgressRecomputePayload asks for a maintenance recomputation.
// UserID 0 means all users.
type ProgressRecomputePayload struct {
	UserID int `json:"user_id"`
}
