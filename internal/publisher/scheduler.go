package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/postpilot/internal/models"
	"github.com/maheshrc27/postpilot/internal/repository"
)

// ErrNotCancellable is returned when cancellation is requested after the post
// left the draft/scheduled states. Attempts already dispatched cannot be
// recalled; this is a documented limitation.
var ErrNotCancellable = errors.New("post can only be cancelled while draft or scheduled")

// Scheduler owns the post lifecycle up to the hand-off into the Dispatcher:
// it queues future posts behind a due-time timer, fires them when due and
// applies cancellation. It never blocks on network I/O itself.
type Scheduler struct {
	pr        repository.PostRepository
	sa        repository.SelectedAccountRepository
	at        repository.DeliveryAttemptRepository
	conflicts *ConflictDetector
	disp      *Dispatcher
	enqueuer  Enqueuer
	now       func() time.Time
}

func NewScheduler(
	pr repository.PostRepository,
	sa repository.SelectedAccountRepository,
	at repository.DeliveryAttemptRepository,
	conflicts *ConflictDetector,
	disp *Dispatcher,
	enqueuer Enqueuer) *Scheduler {
	return &Scheduler{
		pr:        pr,
		sa:        sa,
		at:        at,
		conflicts: conflicts,
		disp:      disp,
		enqueuer:  enqueuer,
		now:       time.Now,
	}
}

// Submit queues a post for publication. A post with no scheduled time, or one
// whose time has already passed, goes straight to publishing; otherwise it
// waits behind a timer keyed by its scheduled time.
func (s *Scheduler) Submit(ctx context.Context, postID int64) error {
	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil {
		return fmt.Errorf("post %d not found", postID)
	}
	if post.Status != models.PostStatusDraft && post.Status != models.PostStatusScheduled {
		return fmt.Errorf("post %d cannot be submitted from status %s", postID, post.Status)
	}

	delay := time.Duration(0)
	if !post.ScheduledTime.IsZero() {
		delay = post.ScheduledTime.Sub(s.now())
	}

	if delay > 0 {
		if err := s.pr.UpdatePostStatus(ctx, models.PostStatusScheduled, postID); err != nil {
			return err
		}
		return s.enqueuer.EnqueueFire(postID, delay)
	}

	if err := s.pr.UpdatePostStatus(ctx, models.PostStatusPublishing, postID); err != nil {
		return err
	}
	return s.enqueuer.EnqueueFire(postID, 0)
}

// FireDue transitions a due post to publishing and hands it to the
// Dispatcher. Safe to call more than once for the same post: already-settled
// or cancelled posts are skipped, and the Dispatcher ignores targets that
// have attempts.
func (s *Scheduler) FireDue(ctx context.Context, postID int64) error {
	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil {
		return nil
	}

	switch post.Status {
	case models.PostStatusScheduled:
		if err := s.pr.UpdatePostStatus(ctx, models.PostStatusPublishing, postID); err != nil {
			return err
		}
		post.Status = models.PostStatusPublishing
	case models.PostStatusPublishing:
		// direct submit path, already transitioned
	default:
		return nil
	}

	s.logConflicts(ctx, post)

	return s.disp.Dispatch(ctx, post)
}

// logConflicts records collisions at fire time. Informational only: conflicts
// were surfaced to the caller at submission, never enforced here.
func (s *Scheduler) logConflicts(ctx context.Context, post *models.Post) {
	if post.ScheduledTime.IsZero() {
		return
	}
	selected, err := s.sa.ListByPostID(ctx, post.ID)
	if err != nil {
		return
	}
	accountIDs := make([]int64, 0, len(selected))
	for _, acc := range selected {
		accountIDs = append(accountIDs, acc.AccountID)
	}
	conflicts, err := s.conflicts.Check(ctx, accountIDs, post.ScheduledTime, 0)
	if err != nil {
		return
	}
	for _, other := range conflicts {
		if other.ID == post.ID {
			continue
		}
		slog.Info(fmt.Sprintf("post %d fires within the conflict window of post %d", post.ID, other.ID))
	}
}

// Tick fires every scheduled post whose time has elapsed. It backs up the
// per-post timers so a post is dispatched on the next tick even if its queue
// task was lost; a scheduled_time equal to now counts as due.
func (s *Scheduler) Tick(ctx context.Context) error {
	due, err := s.pr.ListDueScheduled(ctx, s.now())
	if err != nil {
		return err
	}

	for _, post := range due {
		if err := s.FireDue(ctx, post.ID); err != nil {
			slog.Info(err.Error())
		}
	}
	return nil
}

// Cancel stops a post that has not started publishing. Cancelling an
// already-cancelled post is a no-op.
func (s *Scheduler) Cancel(ctx context.Context, postID int64) error {
	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil {
		return fmt.Errorf("post %d not found", postID)
	}

	switch post.Status {
	case models.PostStatusCancelled:
		return nil
	case models.PostStatusDraft, models.PostStatusScheduled:
		return s.pr.UpdatePostStatus(ctx, models.PostStatusCancelled, postID)
	default:
		return ErrNotCancellable
	}
}

// RetryFailed re-enters the retry path for every terminally failed target of
// the user's failed posts. Each target is re-dispatched individually; targets
// that already succeeded are left alone.
func (s *Scheduler) RetryFailed(ctx context.Context, userID int64) (int, error) {
	retried := 0
	for _, status := range []string{models.PostStatusFailed, models.PostStatusPartiallyFailed} {
		posts, err := s.pr.ListByStatusAndUser(ctx, status, userID)
		if err != nil {
			return retried, err
		}
		for _, post := range posts {
			latest, err := s.at.LatestPerTarget(ctx, post.ID)
			if err != nil {
				return retried, err
			}
			for _, attempt := range latest {
				if attempt.Status != models.AttemptFailedTerminal {
					continue
				}
				if err := s.enqueuer.EnqueueRetry(attempt.ID, 0); err != nil {
					return retried, err
				}
				retried++
			}
		}
	}
	return retried, nil
}
