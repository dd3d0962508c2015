package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/postpilot/internal/models"
	"github.com/maheshrc27/postpilot/internal/platform"
	"github.com/maheshrc27/postpilot/internal/repository"
	"github.com/maheshrc27/postpilot/internal/transfer"
	"github.com/maheshrc27/postpilot/internal/webhook"
)

// Dispatcher fans a post out into per-account delivery attempts and runs them
// concurrently. One target's failure never cancels or delays the others; the
// post's aggregate status is recomputed after each individual result lands.
type Dispatcher struct {
	pr       repository.PostRepository
	sa       repository.SelectedAccountRepository
	ac       repository.SocialAccountRepository
	pm       repository.PostMediaRepository
	ma       repository.MediaAssetRepository
	at       repository.DeliveryAttemptRepository
	registry *platform.Registry
	tokens   *TokenManager
	retry    *RetryManager
	sink     EventSink

	slots   chan struct{} // global bound across all posts
	locks   targetLocks
	postMu  targetLocks // serializes status recomputation per post
	emitted sync.Map    // post IDs whose settle event already went out; in-process state, so across a restart event delivery is at-least-once
	timeout time.Duration
	now     func() time.Time
}

func NewDispatcher(
	pr repository.PostRepository,
	sa repository.SelectedAccountRepository,
	ac repository.SocialAccountRepository,
	pm repository.PostMediaRepository,
	ma repository.MediaAssetRepository,
	at repository.DeliveryAttemptRepository,
	registry *platform.Registry,
	tokens *TokenManager,
	retry *RetryManager,
	sink EventSink,
	workerSlots int,
	timeout time.Duration) *Dispatcher {
	if workerSlots <= 0 {
		workerSlots = 10
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		pr:       pr,
		sa:       sa,
		ac:       ac,
		pm:       pm,
		ma:       ma,
		at:       at,
		registry: registry,
		tokens:   tokens,
		retry:    retry,
		sink:     sink,
		slots:    make(chan struct{}, workerSlots),
		timeout:  timeout,
		now:      time.Now,
	}
}

// Dispatch issues a first delivery attempt for every target that has none
// yet. It blocks until all launched targets have reported, but results are
// recorded (and the post status updated) as each one lands.
func (d *Dispatcher) Dispatch(ctx context.Context, post *models.Post) error {
	selected, err := d.sa.ListByPostID(ctx, post.ID)
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		return errors.New("no accounts selected for publishing")
	}

	latest, err := d.at.LatestPerTarget(ctx, post.ID)
	if err != nil {
		return err
	}

	content, err := d.buildContent(ctx, post)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup

	for _, acc := range selected {
		if _, issued := latest[acc.AccountID]; issued {
			continue
		}

		// Cooperative cancellation: checked before each not-yet-started
		// attempt. Attempts already launched run to completion.
		current, err := d.pr.GetByID(ctx, post.ID)
		if err != nil {
			return err
		}
		if current == nil || current.Status == models.PostStatusCancelled {
			break
		}

		wg.Add(1)
		d.slots <- struct{}{}
		go func(accountID int64) {
			defer wg.Done()
			defer func() { <-d.slots }()

			if err := d.publishOne(ctx, post, content, accountID, 0); err != nil {
				slog.Info(err.Error())
			}
		}(acc.AccountID)
	}

	wg.Wait()
	return nil
}

// Redispatch re-runs a single (post, account) target after a retryable
// failure or a manual retry trigger. The prior attempt number anchors the new
// attempt so a duplicate or stale task becomes a no-op.
func (d *Dispatcher) Redispatch(ctx context.Context, attemptID int64) error {
	prev, err := d.at.GetByID(ctx, attemptID)
	if err != nil {
		return err
	}
	if prev == nil {
		return nil
	}
	if prev.Status != models.AttemptFailedRetryable && prev.Status != models.AttemptFailedTerminal {
		return nil
	}

	post, err := d.pr.GetByID(ctx, prev.PostID)
	if err != nil {
		return err
	}
	if post == nil || post.Status == models.PostStatusCancelled {
		return nil
	}

	content, err := d.buildContent(ctx, post)
	if err != nil {
		return err
	}

	d.slots <- struct{}{}
	defer func() { <-d.slots }()

	return d.publishOne(ctx, post, content, prev.AccountID, prev.AttemptNumber)
}

// publishOne performs one delivery attempt under the (post, account) lock so
// at most one attempt per pair is ever in flight. expectedPrior is the number
// of attempts that must already exist; a mismatch means another worker got
// here first.
func (d *Dispatcher) publishOne(ctx context.Context, post *models.Post, content *platform.Content, accountID int64, expectedPrior int) error {
	unlock := d.locks.lock(post.ID, accountID)
	defer unlock()

	pending, err := d.at.HasPending(ctx, post.ID, accountID)
	if err != nil {
		return err
	}
	if pending {
		return nil
	}

	count, err := d.at.CountForTarget(ctx, post.ID, accountID)
	if err != nil {
		return err
	}
	if count != expectedPrior {
		return nil
	}

	attempt := &models.DeliveryAttempt{
		PostID:        post.ID,
		AccountID:     accountID,
		AttemptNumber: count + 1,
		Status:        models.AttemptPending,
	}
	attempt.ID, err = d.at.Create(ctx, attempt)
	if err != nil {
		return err
	}

	// A fresh attempt reopens the post. Clear the settle marker so a post
	// that settled once (say failed) and settles again after a manual retry
	// emits a second lifecycle event for the new outcome.
	d.emitted.Delete(post.ID)

	d.runAttempt(ctx, content, attempt)
	return d.finalize(ctx, post.ID)
}

// runAttempt executes the platform call and records the result on the
// attempt row.
func (d *Dispatcher) runAttempt(ctx context.Context, content *platform.Content, attempt *models.DeliveryAttempt) {
	account, err := d.ac.GetByID(ctx, attempt.AccountID)
	if err != nil || account == nil {
		d.failAttempt(ctx, attempt, platform.NewPublishError(platform.KindNotFound, "account %d no longer exists", attempt.AccountID))
		return
	}

	adapter, err := d.registry.Get(account.Platform)
	if err != nil {
		d.failAttempt(ctx, attempt, platform.NewPublishError(platform.KindNotFound, "%v", err))
		return
	}

	accessToken, err := d.tokens.EnsureValid(ctx, attempt.AccountID)
	if err != nil {
		// Credential failures go straight to failed_terminal: a token the
		// lifecycle manager could not fix will not fix itself on retry.
		d.failAttempt(ctx, attempt, platform.Classify(err))
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	platformPostID, err := adapter.Publish(pubCtx, content, accessToken)
	if err != nil {
		perr := platform.Classify(err)
		if pubCtx.Err() != nil && errors.Is(pubCtx.Err(), context.DeadlineExceeded) {
			perr = &platform.PublishError{Kind: platform.KindNetworkTimeout, Message: err.Error()}
		}
		d.failAttempt(ctx, attempt, perr)
		return
	}

	attempt.Status = models.AttemptSucceeded
	attempt.PlatformPostID = platformPostID
	if err := d.at.UpdateResult(ctx, attempt); err != nil {
		slog.Info(err.Error())
	}
}

func (d *Dispatcher) failAttempt(ctx context.Context, attempt *models.DeliveryAttempt, perr *platform.PublishError) {
	if perr.Kind.Retryable() {
		if err := d.retry.Handle(ctx, attempt, perr); err != nil {
			slog.Info(err.Error())
		}
		return
	}

	attempt.Status = models.AttemptFailedTerminal
	attempt.ErrorKind = string(perr.Kind)
	attempt.ErrorMessage = perr.Message
	if err := d.at.UpdateResult(ctx, attempt); err != nil {
		slog.Info(err.Error())
	}
}

// finalize re-derives the post status from the latest attempt per target and
// emits a lifecycle event when the post settles. Serialized per post so two
// targets finishing together cannot double-emit.
func (d *Dispatcher) finalize(ctx context.Context, postID int64) error {
	unlock := d.postMu.lock(postID, 0)
	defer unlock()

	post, err := d.pr.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil || post.Status == models.PostStatusCancelled {
		return nil
	}

	selected, err := d.sa.ListByPostID(ctx, postID)
	if err != nil {
		return err
	}
	targets := make([]int64, 0, len(selected))
	for _, acc := range selected {
		targets = append(targets, acc.AccountID)
	}

	latest, err := d.at.LatestPerTarget(ctx, postID)
	if err != nil {
		return err
	}

	status := DeriveStatus(targets, latest, post.ScheduledTime, d.now())
	if status != post.Status {
		if err := d.pr.UpdatePostStatus(ctx, status, postID); err != nil {
			return err
		}
	}

	// A post can sit in partially_failed both while retries are pending and
	// once settled, so the status alone cannot tell first settle from a later
	// recomputation. The emitted set does; a manual retry reopens it.
	if !Settled(targets, latest) {
		d.emitted.Delete(postID)
		return nil
	}
	if _, done := d.emitted.LoadOrStore(postID, struct{}{}); done {
		return nil
	}

	event := webhook.EventPostFailed
	if status == models.PostStatusPublished {
		event = webhook.EventPostPublished
	}
	data := transfer.PostEventData{
		PostID:  postID,
		Status:  status,
		Results: TargetResults(targets, latest),
	}
	if err := d.sink.Emit(ctx, event, data); err != nil {
		slog.Info(err.Error())
	}
	return nil
}

// TargetResults flattens the latest attempt per target into the transfer
// shape shared by status queries and webhook payloads.
func TargetResults(targets []int64, latest map[int64]*models.DeliveryAttempt) []transfer.TargetResult {
	results := make([]transfer.TargetResult, 0, len(targets))
	for _, accountID := range targets {
		a, ok := latest[accountID]
		if !ok {
			results = append(results, transfer.TargetResult{AccountID: accountID, Status: models.AttemptPending})
			continue
		}
		results = append(results, transfer.TargetResult{
			AccountID:      accountID,
			Status:         a.Status,
			AttemptNumber:  a.AttemptNumber,
			ErrorKind:      a.ErrorKind,
			ErrorMessage:   a.ErrorMessage,
			PlatformPostID: a.PlatformPostID,
			NextRetryAt:    a.ScheduledRetryAt,
		})
	}
	return results
}

func (d *Dispatcher) buildContent(ctx context.Context, post *models.Post) (*platform.Content, error) {
	media, err := d.pm.ListByPostID(ctx, post.ID)
	if err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(media))
	for _, pm := range media {
		asset, err := d.ma.GetByID(ctx, pm.AssetID)
		if err != nil {
			return nil, err
		}
		if asset == nil {
			continue
		}
		urls = append(urls, asset.FileURL)
	}

	return &platform.Content{
		Caption:   post.Caption,
		Title:     post.Title,
		PostType:  post.PostType,
		MediaURLs: urls,
	}, nil
}
