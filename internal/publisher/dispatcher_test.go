package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/maheshrc27/postpilot/internal/models"
	"github.com/maheshrc27/postpilot/internal/platform"
	"github.com/maheshrc27/postpilot/internal/webhook"
	"github.com/maheshrc27/postpilot/pkg/utils"
)

type testEnv struct {
	posts    *fakePostRepo
	selected *fakeSelectedRepo
	accounts *fakeAccountRepo
	creds    *fakeCredentialRepo
	attempts *fakeAttemptRepo
	adapter  *fakeAdapter
	enqueuer *fakeEnqueuer
	sink     *fakeSink
	tokens   *TokenManager
	disp     *Dispatcher
	sched    *Scheduler
	now      time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	selected := newFakeSelectedRepo()
	posts := newFakePostRepo(selected)
	accounts := newFakeAccountRepo()
	creds := newFakeCredentialRepo()
	attempts := newFakeAttemptRepo()
	adapter := newFakeAdapter()
	enqueuer := &fakeEnqueuer{}
	sink := &fakeSink{}

	registry := platform.NewRegistry()
	registry.Register("fake", adapter)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tokens := NewTokenManager(creds, accounts, registry, testKey, 24*time.Hour, 2*time.Hour)
	tokens.now = func() time.Time { return now }

	retry := NewRetryManager(attempts, enqueuer, 4, time.Second, 60*time.Second, 0)
	retry.now = func() time.Time { return now }

	conflicts := NewConflictDetector(posts, 60*time.Second)
	conflicts.now = func() time.Time { return now }

	disp := NewDispatcher(posts, selected, accounts, fakePostMediaRepo{}, fakeAssetRepo{},
		attempts, registry, tokens, retry, sink, 4, time.Second)
	disp.now = func() time.Time { return now }

	sched := NewScheduler(posts, selected, attempts, conflicts, disp, enqueuer)
	sched.now = func() time.Time { return now }

	return &testEnv{
		posts:    posts,
		selected: selected,
		accounts: accounts,
		creds:    creds,
		attempts: attempts,
		adapter:  adapter,
		enqueuer: enqueuer,
		sink:     sink,
		tokens:   tokens,
		disp:     disp,
		sched:    sched,
		now:      now,
	}
}

// addAccount registers an enabled account with a healthy, never-expiring
// credential whose decrypted access token equals accessToken.
func (e *testEnv) addAccount(t *testing.T, id int64, accessToken string) {
	t.Helper()

	e.accounts.Create(context.Background(), nil, &models.SocialAccount{
		ID:       id,
		UserID:   1,
		Platform: "fake",
		Enabled:  true,
	})

	encrypted, err := utils.Encrypt([]byte(accessToken), testKey)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	e.creds.Create(context.Background(), nil, &models.Credential{
		AccountID:   id,
		AccessToken: encrypted,
	})
}

func (e *testEnv) addPost(status string, scheduledTime time.Time, accountIDs ...int64) *models.Post {
	post := &models.Post{
		UserID:        1,
		Caption:       "hello",
		Status:        status,
		ScheduledTime: scheduledTime,
	}
	e.posts.add(post)
	for _, accountID := range accountIDs {
		e.selected.Create(context.Background(), nil, &models.SelectedAccount{PostID: post.ID, AccountID: accountID})
	}
	return post
}

// drainRetries re-dispatches every enqueued retry until the queue is empty,
// standing in for the asynq worker loop.
func (e *testEnv) drainRetries(t *testing.T) {
	t.Helper()
	for i := 0; i < 20; i++ {
		retries := e.enqueuer.drainRetries()
		if len(retries) == 0 {
			return
		}
		for _, task := range retries {
			if err := e.disp.Redispatch(context.Background(), task.attemptID); err != nil {
				t.Fatalf("Redispatch(%d): %v", task.attemptID, err)
			}
		}
	}
	t.Fatal("retry queue never drained")
}

func TestDispatchRetriesRateLimitedTarget(t *testing.T) {
	env := newTestEnv(t)
	env.addAccount(t, 1, "tok1")
	env.addAccount(t, 2, "tok2")

	// Account 2 is rate limited on its first call and succeeds on the second.
	env.adapter.publish = func(token string, call int) (string, error) {
		if token == "tok2" && call == 1 {
			return "", &platform.PublishError{Kind: platform.KindRateLimited, Message: "slow down", RetryAfter: 5 * time.Second}
		}
		return "pp-" + token, nil
	}

	post := env.addPost(models.PostStatusPublishing, time.Time{}, 1, 2)
	if err := env.disp.Dispatch(context.Background(), post); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	// Account 1 settled, account 2 re-armed: post is partially failed but open.
	current, _ := env.posts.GetByID(context.Background(), post.ID)
	if current.Status != models.PostStatusPartiallyFailed {
		t.Fatalf("status after first pass = %q, want %q", current.Status, models.PostStatusPartiallyFailed)
	}
	if len(env.sink.events) != 0 {
		t.Fatalf("no event may be emitted before the post settles, got %d", len(env.sink.events))
	}

	env.drainRetries(t)

	current, _ = env.posts.GetByID(context.Background(), post.ID)
	if current.Status != models.PostStatusPublished {
		t.Fatalf("final status = %q, want %q", current.Status, models.PostStatusPublished)
	}

	latest, _ := env.attempts.LatestPerTarget(context.Background(), post.ID)
	if got := latest[1].AttemptNumber; got != 1 {
		t.Errorf("account 1 attempts = %d, want 1", got)
	}
	if got := latest[2].AttemptNumber; got != 2 {
		t.Errorf("account 2 attempts = %d, want 2", got)
	}
	if latest[2].PlatformPostID != "pp-tok2" {
		t.Errorf("account 2 platform post id = %q", latest[2].PlatformPostID)
	}

	if len(env.sink.events) != 1 {
		t.Fatalf("emitted %d events, want exactly 1", len(env.sink.events))
	}
	if env.sink.events[0].event != webhook.EventPostPublished {
		t.Errorf("event = %q, want %q", env.sink.events[0].event, webhook.EventPostPublished)
	}
}

func TestExpiredCredentialFailsOnlyItsTarget(t *testing.T) {
	env := newTestEnv(t)
	env.addAccount(t, 1, "tok1")

	// Account 2: token expired an hour ago, nothing to refresh with.
	env.accounts.Create(context.Background(), nil, &models.SocialAccount{
		ID: 2, UserID: 1, Platform: "fake", Enabled: true,
	})
	encrypted, _ := utils.Encrypt([]byte("stale"), testKey)
	env.creds.Create(context.Background(), nil, &models.Credential{
		AccountID:   2,
		AccessToken: encrypted,
		ExpiresAt:   env.now.Add(-time.Hour),
	})

	post := env.addPost(models.PostStatusPublishing, time.Time{}, 1, 2)
	if err := env.disp.Dispatch(context.Background(), post); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	latest, _ := env.attempts.LatestPerTarget(context.Background(), post.ID)
	if latest[1].Status != models.AttemptSucceeded {
		t.Errorf("account 1 status = %q, want %q", latest[1].Status, models.AttemptSucceeded)
	}
	if latest[2].Status != models.AttemptFailedTerminal {
		t.Errorf("account 2 status = %q, want %q", latest[2].Status, models.AttemptFailedTerminal)
	}
	if latest[2].ErrorKind != string(platform.KindCredential) {
		t.Errorf("account 2 error kind = %q, want %q", latest[2].ErrorKind, platform.KindCredential)
	}
	if latest[2].AttemptNumber != 1 {
		t.Errorf("credential failure must not retry, got %d attempts", latest[2].AttemptNumber)
	}
	if len(env.enqueuer.drainRetries()) != 0 {
		t.Error("credential failure must not enqueue a retry")
	}

	current, _ := env.posts.GetByID(context.Background(), post.ID)
	if current.Status != models.PostStatusPartiallyFailed {
		t.Fatalf("final status = %q, want %q", current.Status, models.PostStatusPartiallyFailed)
	}

	if len(env.sink.events) != 1 {
		t.Fatalf("emitted %d events, want 1", len(env.sink.events))
	}
	if env.sink.events[0].event != webhook.EventPostFailed {
		t.Errorf("event = %q, want %q", env.sink.events[0].event, webhook.EventPostFailed)
	}
}

func TestDispatchIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.addAccount(t, 1, "tok1")
	env.addAccount(t, 2, "tok2")

	post := env.addPost(models.PostStatusPublishing, time.Time{}, 1, 2)
	if err := env.disp.Dispatch(context.Background(), post); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if err := env.disp.Dispatch(context.Background(), post); err != nil {
		t.Fatalf("second Dispatch() error = %v", err)
	}

	for _, accountID := range []int64{1, 2} {
		count, _ := env.attempts.CountForTarget(context.Background(), post.ID, accountID)
		if count != 1 {
			t.Errorf("account %d has %d attempts after double dispatch, want 1", accountID, count)
		}
	}
}

func TestRedispatchIgnoresStaleTask(t *testing.T) {
	env := newTestEnv(t)
	env.addAccount(t, 1, "tok1")

	env.adapter.publish = func(token string, call int) (string, error) {
		if call == 1 {
			return "", platform.NewPublishError(platform.KindServer, "boom")
		}
		return "pp", nil
	}

	post := env.addPost(models.PostStatusPublishing, time.Time{}, 1)
	if err := env.disp.Dispatch(context.Background(), post); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	retries := env.enqueuer.drainRetries()
	if len(retries) != 1 {
		t.Fatalf("enqueued %d retries, want 1", len(retries))
	}

	// Deliver the same retry task twice; the duplicate must be a no-op.
	for i := 0; i < 2; i++ {
		if err := env.disp.Redispatch(context.Background(), retries[0].attemptID); err != nil {
			t.Fatalf("Redispatch() error = %v", err)
		}
	}

	count, _ := env.attempts.CountForTarget(context.Background(), post.ID, 1)
	if count != 2 {
		t.Fatalf("attempt count = %d after duplicate redispatch, want 2", count)
	}
}

func TestManualRetryEmitsFreshSettleEvent(t *testing.T) {
	env := newTestEnv(t)
	env.addAccount(t, 1, "tok1")

	env.adapter.publish = func(token string, call int) (string, error) {
		if call == 1 {
			return "", platform.NewPublishError(platform.KindValidation, "caption rejected")
		}
		return "pp", nil
	}

	post := env.addPost(models.PostStatusPublishing, time.Time{}, 1)
	if err := env.disp.Dispatch(context.Background(), post); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	current, _ := env.posts.GetByID(context.Background(), post.ID)
	if current.Status != models.PostStatusFailed {
		t.Fatalf("status after terminal failure = %q, want %q", current.Status, models.PostStatusFailed)
	}
	if len(env.sink.events) != 1 || env.sink.events[0].event != webhook.EventPostFailed {
		t.Fatalf("got %d events after first settle, want one %q", len(env.sink.events), webhook.EventPostFailed)
	}

	retried, err := env.sched.RetryFailed(context.Background(), 1)
	if err != nil {
		t.Fatalf("RetryFailed() error = %v", err)
	}
	if retried != 1 {
		t.Fatalf("retried %d targets, want 1", retried)
	}
	env.drainRetries(t)

	current, _ = env.posts.GetByID(context.Background(), post.ID)
	if current.Status != models.PostStatusPublished {
		t.Fatalf("status after manual retry = %q, want %q", current.Status, models.PostStatusPublished)
	}

	// The post settled twice; each settle gets its own lifecycle event.
	if len(env.sink.events) != 2 {
		t.Fatalf("emitted %d events across two settles, want 2", len(env.sink.events))
	}
	if env.sink.events[1].event != webhook.EventPostPublished {
		t.Errorf("second event = %q, want %q", env.sink.events[1].event, webhook.EventPostPublished)
	}
}

func TestDispatchStopsAfterCancellation(t *testing.T) {
	env := newTestEnv(t)
	env.addAccount(t, 1, "tok1")

	post := env.addPost(models.PostStatusCancelled, time.Time{}, 1)
	if err := env.disp.Dispatch(context.Background(), post); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	count, _ := env.attempts.CountForTarget(context.Background(), post.ID, 1)
	if count != 0 {
		t.Fatalf("cancelled post got %d attempts, want 0", count)
	}
}
