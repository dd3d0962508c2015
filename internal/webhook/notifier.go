package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/maheshrc27/postpilot/internal/repository"
	"golang.org/x/time/rate"
)

// Enqueuer defers a single subscription delivery onto the task queue so event
// emission never blocks on subscriber endpoints.
type Enqueuer interface {
	EnqueueDelivery(subscriptionID int64, event string, data json.RawMessage) error
}

// Payload is the body POSTed to subscribers. Timestamp is the send time of
// the current attempt, not the event's occurrence time: subscribers reject
// timestamps outside their replay window, so every retry is restamped.
type Payload struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// Notifier delivers signed event notifications to subscriber URLs. Its retry
// policy is independent of publishing retries, and repeated exhausted
// deliveries auto-disable the subscription.
type Notifier struct {
	subs             repository.WebhookSubscriptionRepository
	enqueuer         Enqueuer
	client           *http.Client
	limiter          *rate.Limiter
	maxAttempts      int
	backoffBase      time.Duration
	disableThreshold int
	now              func() time.Time
	sleep            func(time.Duration)
}

func NewNotifier(subs repository.WebhookSubscriptionRepository, enqueuer Enqueuer, maxAttempts int, backoffBase time.Duration, disableThreshold int, ratePerSec int) *Notifier {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoffBase <= 0 {
		backoffBase = time.Second
	}
	if disableThreshold <= 0 {
		disableThreshold = 3
	}
	if ratePerSec <= 0 {
		ratePerSec = 20
	}
	return &Notifier{
		subs:             subs,
		enqueuer:         enqueuer,
		client:           &http.Client{Timeout: 10 * time.Second},
		limiter:          rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		maxAttempts:      maxAttempts,
		backoffBase:      backoffBase,
		disableThreshold: disableThreshold,
		now:              time.Now,
		sleep:            time.Sleep,
	}
}

// Emit fans an event out to every enabled subscription covering it. Delivery
// itself happens on the queue.
func (n *Notifier) Emit(ctx context.Context, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}

	subs, err := n.subs.ListEnabledForEvent(ctx, event)
	if err != nil {
		return err
	}

	for _, sub := range subs {
		if err := n.enqueuer.EnqueueDelivery(sub.ID, event, raw); err != nil {
			slog.Info(err.Error())
		}
	}
	return nil
}

// Deliver runs one delivery sequence (initial attempt plus retries) for one
// subscription. An exhausted sequence counts one consecutive failure; the
// threshold force-disables the subscription until an owner re-enables it.
func (n *Notifier) Deliver(ctx context.Context, subscriptionID int64, event string, data json.RawMessage) error {
	sub, err := n.subs.GetByID(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub == nil || !sub.Enabled {
		return nil
	}

	eventID := uuid.NewString()

	var lastErr error
	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		if attempt > 1 {
			n.sleep(n.backoffBase << (attempt - 2))
		}

		lastErr = n.send(ctx, sub.URL, sub.Secret, eventID, event, data)
		if lastErr == nil {
			if err := n.subs.ResetFailures(ctx, subscriptionID); err != nil {
				slog.Info(err.Error())
			}
			return nil
		}
		slog.Info(lastErr.Error())
	}

	disabled, err := n.subs.RecordFailure(ctx, subscriptionID, n.disableThreshold)
	if err != nil {
		slog.Info(err.Error())
	}
	if disabled {
		slog.Info(fmt.Sprintf("webhook subscription %d disabled after %d consecutive failed deliveries", subscriptionID, n.disableThreshold))
	}
	return lastErr
}

func (n *Notifier) send(ctx context.Context, url, secret, eventID, event string, data json.RawMessage) error {
	// Stamped per attempt so retries stay inside the subscriber's replay window.
	timestamp := n.now().UTC().Format(time.RFC3339)

	body, err := json.Marshal(Payload{
		ID:        eventID,
		Event:     event,
		Data:      data,
		Timestamp: timestamp,
	})
	if err != nil {
		return err
	}

	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", Sign(secret, body, timestamp))

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook endpoint %s returned status %d", url, resp.StatusCode)
	}
	return nil
}

// Sign computes the hex HMAC-SHA256 of body||timestamp under the
// subscription secret.
func Sign(secret string, body []byte, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	mac.Write([]byte(timestamp))
	return hex.EncodeToString(mac.Sum(nil))
}
