package publisher

import (
	"context"
	"math/rand"
	"time"

	"github.com/maheshrc27/postpilot/internal/models"
	"github.com/maheshrc27/postpilot/internal/platform"
	"github.com/maheshrc27/postpilot/internal/repository"
)

// RetryManager classifies failed delivery attempts and re-arms retryable ones
// with exponential backoff. Re-arming hands the single (post, account) target
// back through the queue; the rest of the post is untouched.
type RetryManager struct {
	attempts    repository.DeliveryAttemptRepository
	enqueuer    Enqueuer
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	jitter      float64
	now         func() time.Time
}

func NewRetryManager(attempts repository.DeliveryAttemptRepository, enqueuer Enqueuer, maxAttempts int, baseDelay, maxDelay time.Duration, jitter float64) *RetryManager {
	if maxAttempts <= 0 {
		maxAttempts = 4
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if maxDelay <= 0 {
		maxDelay = 60 * time.Second
	}
	return &RetryManager{
		attempts:    attempts,
		enqueuer:    enqueuer,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		jitter:      jitter,
		now:         time.Now,
	}
}

// Handle records the failure on the attempt and either re-arms it or converts
// it to failed_terminal when the kind is not retryable or the attempt cap is
// reached.
func (m *RetryManager) Handle(ctx context.Context, attempt *models.DeliveryAttempt, perr *platform.PublishError) error {
	attempt.ErrorKind = string(perr.Kind)
	attempt.ErrorMessage = perr.Message

	if !perr.Kind.Retryable() || attempt.AttemptNumber >= m.maxAttempts {
		attempt.Status = models.AttemptFailedTerminal
		attempt.ScheduledRetryAt = time.Time{}
		return m.attempts.UpdateResult(ctx, attempt)
	}

	delay := m.Backoff(attempt.AttemptNumber, perr.RetryAfter)
	attempt.Status = models.AttemptFailedRetryable
	attempt.ScheduledRetryAt = m.now().Add(delay)
	if err := m.attempts.UpdateResult(ctx, attempt); err != nil {
		return err
	}

	return m.enqueuer.EnqueueRetry(attempt.ID, delay)
}

// Backoff returns the delay before the next attempt: base doubled per prior
// attempt, capped, jittered so many posts retrying against the same platform
// do not fire together. A platform retry-after hint replaces the computed
// delay but is still capped and jittered.
func (m *RetryManager) Backoff(attemptNumber int, hint time.Duration) time.Duration {
	delay := m.baseDelay
	for i := 1; i < attemptNumber; i++ {
		delay *= 2
		if delay >= m.maxDelay {
			break
		}
	}
	if hint > 0 {
		delay = hint
	}
	if delay > m.maxDelay {
		delay = m.maxDelay
	}

	if m.jitter > 0 {
		spread := 1 + m.jitter*(2*rand.Float64()-1)
		delay = time.Duration(float64(delay) * spread)
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}
