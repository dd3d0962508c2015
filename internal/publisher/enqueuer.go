package publisher

import (
	"context"
	"time"
)

// Enqueuer schedules deferred orchestrator work. The production
// implementation sits on asynq; tests use a synchronous fake.
type Enqueuer interface {
	EnqueueFire(postID int64, delay time.Duration) error
	EnqueueRetry(attemptID int64, delay time.Duration) error
}

// EventSink receives post lifecycle events. Implemented by the webhook
// notifier.
type EventSink interface {
	Emit(ctx context.Context, event string, data any) error
}
