package queue

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postpilot/internal/publisher"
	"github.com/maheshrc27/postpilot/internal/webhook"
)

// Worker maps queue tasks onto the orchestrator components.
type Worker struct {
	scheduler  *publisher.Scheduler
	dispatcher *publisher.Dispatcher
	notifier   *webhook.Notifier
}

func NewWorker(scheduler *publisher.Scheduler, dispatcher *publisher.Dispatcher, notifier *webhook.Notifier) *Worker {
	return &Worker{
		scheduler:  scheduler,
		dispatcher: dispatcher,
		notifier:   notifier,
	}
}

func (w *Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskTypeFirePost, w.HandleFirePost)
	mux.HandleFunc(TaskTypeRetryAttempt, w.HandleRetryAttempt)
	mux.HandleFunc(TaskTypeDeliverWebhook, w.HandleDeliverWebhook)
}

func (w *Worker) HandleFirePost(ctx context.Context, task *asynq.Task) error {
	var payload FirePostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	return w.scheduler.FireDue(ctx, payload.PostID)
}

func (w *Worker) HandleRetryAttempt(ctx context.Context, task *asynq.Task) error {
	var payload RetryAttemptPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	return w.dispatcher.Redispatch(ctx, payload.AttemptID)
}

func (w *Worker) HandleDeliverWebhook(ctx context.Context, task *asynq.Task) error {
	var payload DeliverWebhookPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	return w.notifier.Deliver(ctx, payload.SubscriptionID, payload.Event, payload.Data)
}
