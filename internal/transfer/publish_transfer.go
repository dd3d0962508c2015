package transfer

import "time"

type PostCreation struct {
	Caption          string
	Title            string
	ScheduledTime    string
	SelectedAccounts string
}

// TargetResult is the per-account outcome exposed on post status queries and
// in webhook event payloads.
type TargetResult struct {
	AccountID      int64     `json:"account_id"`
	Status         string    `json:"status"`
	AttemptNumber  int       `json:"attempt_number,omitempty"`
	ErrorKind      string    `json:"error_kind,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	PlatformPostID string    `json:"platform_post_id,omitempty"`
	NextRetryAt    time.Time `json:"next_retry_at,omitempty"`
}

type PostEventData struct {
	PostID  int64          `json:"post_id"`
	Status  string         `json:"status"`
	Results []TargetResult `json:"results"`
}

type PostStatusResponse struct {
	PostID        int64          `json:"post_id"`
	Status        string         `json:"status"`
	ScheduledTime time.Time      `json:"scheduled_time,omitempty"`
	Results       []TargetResult `json:"results"`
}
