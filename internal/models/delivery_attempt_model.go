package models

import "time"

// DeliveryAttempt is one try to publish one post to one account. At most one
// attempt per (post, account) may be pending at any instant.
type DeliveryAttempt struct {
	ID               int64     `db:"id" json:"id"`
	PostID           int64     `db:"post_id" json:"post_id"`
	AccountID        int64     `db:"account_id" json:"account_id"`
	AttemptNumber    int       `db:"attempt_number" json:"attempt_number"`
	Status           string    `db:"status" json:"status"`
	ErrorKind        string    `db:"error_kind" json:"error_kind,omitempty"`
	ErrorMessage     string    `db:"error_message" json:"error_message,omitempty"`
	ScheduledRetryAt time.Time `db:"scheduled_retry_at" json:"scheduled_retry_at,omitempty"`
	PlatformPostID   string    `db:"platform_post_id" json:"platform_post_id,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

const (
	AttemptPending         = "pending"
	AttemptSucceeded       = "succeeded"
	AttemptFailedRetryable = "failed_retryable"
	AttemptFailedTerminal  = "failed_terminal"
)

// IsTerminalAttemptStatus reports whether an attempt settles its target.
func IsTerminalAttemptStatus(status string) bool {
	return status == AttemptSucceeded || status == AttemptFailedTerminal
}
