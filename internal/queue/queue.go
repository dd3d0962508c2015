package queue

import (
	"encoding/json"
)

const (
	TaskTypeFirePost       = "publish:fire"
	TaskTypeRetryAttempt   = "publish:retry"
	TaskTypeDeliverWebhook = "webhook:deliver"
)

type FirePostPayload struct {
	PostID int64 `json:"post_id"`
}

type RetryAttemptPayload struct {
	AttemptID int64 `json:"attempt_id"`
}

type DeliverWebhookPayload struct {
	SubscriptionID int64           `json:"subscription_id"`
	Event          string          `json:"event"`
	Data           json.RawMessage `json:"data"`
}
