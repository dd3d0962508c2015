package publisher

import (
	"time"

	"github.com/maheshrc27/postpilot/internal/models"
)

// DeriveStatus computes a post's status from the latest delivery attempt per
// target account. It is the only place post status is decided:
//
//   - every target's last attempt succeeded        -> published
//   - every target's last attempt failed_terminal  -> failed
//   - any failure recorded, targets still open     -> partially_failed
//   - attempts issued, none failed yet             -> publishing
//   - nothing issued, scheduled_time in the future -> scheduled
//   - nothing issued, due                          -> publishing
//
// A mix of succeeded and failed_terminal targets settles as partially_failed.
func DeriveStatus(targets []int64, latest map[int64]*models.DeliveryAttempt, scheduledTime, now time.Time) string {
	if len(latest) == 0 {
		if !scheduledTime.IsZero() && scheduledTime.After(now) {
			return models.PostStatusScheduled
		}
		return models.PostStatusPublishing
	}

	succeeded := 0
	terminalFailed := 0
	anyFailure := false

	for _, accountID := range targets {
		a, ok := latest[accountID]
		if !ok {
			continue
		}
		switch a.Status {
		case models.AttemptSucceeded:
			succeeded++
		case models.AttemptFailedTerminal:
			terminalFailed++
			anyFailure = true
		case models.AttemptFailedRetryable:
			anyFailure = true
		}
	}

	switch {
	case succeeded == len(targets):
		return models.PostStatusPublished
	case terminalFailed == len(targets):
		return models.PostStatusFailed
	case anyFailure:
		return models.PostStatusPartiallyFailed
	default:
		return models.PostStatusPublishing
	}
}

// Settled reports whether every target has reached a terminal attempt status,
// meaning the retry loop has nothing left to do for this post.
func Settled(targets []int64, latest map[int64]*models.DeliveryAttempt) bool {
	for _, accountID := range targets {
		a, ok := latest[accountID]
		if !ok || !models.IsTerminalAttemptStatus(a.Status) {
			return false
		}
	}
	return len(targets) > 0
}
