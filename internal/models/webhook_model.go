package models

import "time"

type WebhookSubscription struct {
	ID                  int64     `db:"id" json:"id"`
	UserID              int64     `db:"user_id" json:"user_id"`
	URL                 string    `db:"url" json:"url"`
	Events              string    `db:"events" json:"events"` // comma-separated event names
	Secret              string    `db:"secret" json:"-"`
	ConsecutiveFailures int       `db:"consecutive_failures" json:"consecutive_failures"`
	Enabled             bool      `db:"enabled" json:"enabled"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}
