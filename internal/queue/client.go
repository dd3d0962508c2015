package queue

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Client is the asynq-backed implementation of publisher.Enqueuer and
// webhook.Enqueuer. All deferred orchestrator work flows through here.
type Client struct {
	asynq *asynq.Client
}

func NewClient(asynqClient *asynq.Client) *Client {
	return &Client{asynq: asynqClient}
}

func (c *Client) EnqueueFire(postID int64, delay time.Duration) error {
	return c.enqueue(TaskTypeFirePost, FirePostPayload{PostID: postID}, delay)
}

func (c *Client) EnqueueRetry(attemptID int64, delay time.Duration) error {
	return c.enqueue(TaskTypeRetryAttempt, RetryAttemptPayload{AttemptID: attemptID}, delay)
}

func (c *Client) EnqueueDelivery(subscriptionID int64, event string, data json.RawMessage) error {
	return c.enqueue(TaskTypeDeliverWebhook, DeliverWebhookPayload{
		SubscriptionID: subscriptionID,
		Event:          event,
		Data:           data,
	}, 0)
}

func (c *Client) enqueue(taskType string, payload any, delay time.Duration) error {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(taskType, taskPayload)

	// Orchestrator retries are managed by the Retry Manager, not asynq.
	_, err = c.asynq.Enqueue(task, asynq.ProcessIn(delay), asynq.MaxRetry(0))
	if err != nil {
		return err
	}

	slog.Info("task scheduled: " + taskType)
	return nil
}
