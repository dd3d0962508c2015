package publisher

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/maheshrc27/postpilot/internal/models"
	"github.com/maheshrc27/postpilot/internal/platform"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

type fakePostRepo struct {
	mu       sync.Mutex
	nextID   int64
	posts    map[int64]*models.Post
	selected *fakeSelectedRepo
}

func newFakePostRepo(selected *fakeSelectedRepo) *fakePostRepo {
	return &fakePostRepo{posts: make(map[int64]*models.Post), selected: selected}
}

func (r *fakePostRepo) add(post *models.Post) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	post.ID = r.nextID
	copied := *post
	r.posts[post.ID] = &copied
	return post.ID
}

func (r *fakePostRepo) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	return r.add(post), nil
}

func (r *fakePostRepo) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.posts[id]
	if !ok {
		return nil, nil
	}
	copied := *post
	return &copied, nil
}

func (r *fakePostRepo) GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var posts []*models.Post
	for _, post := range r.posts {
		if post.UserID == userID {
			copied := *post
			posts = append(posts, &copied)
		}
	}
	return posts, nil
}

func (r *fakePostRepo) UpdatePostStatus(ctx context.Context, status string, postID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.posts[postID]
	if !ok {
		return errors.New("post not found")
	}
	post.Status = status
	return nil
}

func (r *fakePostRepo) ListDueScheduled(ctx context.Context, before time.Time) ([]*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*models.Post
	for _, post := range r.posts {
		if post.Status == models.PostStatusScheduled && !post.ScheduledTime.After(before) {
			copied := *post
			due = append(due, &copied)
		}
	}
	return due, nil
}

func (r *fakePostRepo) ListScheduledForAccounts(ctx context.Context, accountIDs []int64, from, to time.Time) ([]*models.Post, error) {
	wanted := make(map[int64]bool, len(accountIDs))
	for _, id := range accountIDs {
		wanted[id] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	var posts []*models.Post
	for _, post := range r.posts {
		if post.Status != models.PostStatusScheduled {
			continue
		}
		if !post.ScheduledTime.After(from) || !post.ScheduledTime.Before(to) {
			continue
		}
		for _, accountID := range r.selected.accounts(post.ID) {
			if wanted[accountID] {
				copied := *post
				posts = append(posts, &copied)
				break
			}
		}
	}
	return posts, nil
}

func (r *fakePostRepo) ListByStatusAndUser(ctx context.Context, status string, userID int64) ([]*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var posts []*models.Post
	for _, post := range r.posts {
		if post.Status == status && post.UserID == userID {
			copied := *post
			posts = append(posts, &copied)
		}
	}
	return posts, nil
}

func (r *fakePostRepo) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.posts[postID]
	return ok && post.UserID == userID, nil
}

func (r *fakePostRepo) Remove(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.posts, id)
	return nil
}

type fakeSelectedRepo struct {
	mu     sync.Mutex
	byPost map[int64][]int64
}

func newFakeSelectedRepo() *fakeSelectedRepo {
	return &fakeSelectedRepo{byPost: make(map[int64][]int64)}
}

func (r *fakeSelectedRepo) accounts(postID int64) []int64 {
	return r.byPost[postID]
}

func (r *fakeSelectedRepo) Create(ctx context.Context, tx *sql.Tx, sa *models.SelectedAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byPost[sa.PostID] = append(r.byPost[sa.PostID], sa.AccountID)
	return nil
}

func (r *fakeSelectedRepo) ListByPostID(ctx context.Context, postID int64) ([]*models.SelectedAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var selected []*models.SelectedAccount
	for _, accountID := range r.byPost[postID] {
		selected = append(selected, &models.SelectedAccount{PostID: postID, AccountID: accountID})
	}
	return selected, nil
}

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[int64]*models.SocialAccount
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: make(map[int64]*models.SocialAccount)}
}

func (r *fakeAccountRepo) Create(ctx context.Context, tx *sql.Tx, sa *models.SocialAccount) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[sa.ID] = sa
	return sa.ID, nil
}

func (r *fakeAccountRepo) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	copied := *account
	return &copied, nil
}

func (r *fakeAccountRepo) ListInfoByUserID(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	return nil, nil
}

func (r *fakeAccountRepo) CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[accountID]
	return ok && account.UserID == userID, nil
}

func (r *fakeAccountRepo) Remove(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.accounts, id)
	return nil
}

type fakeCredentialRepo struct {
	mu    sync.Mutex
	creds map[int64]*models.Credential
}

func newFakeCredentialRepo() *fakeCredentialRepo {
	return &fakeCredentialRepo{creds: make(map[int64]*models.Credential)}
}

func (r *fakeCredentialRepo) Create(ctx context.Context, tx *sql.Tx, c *models.Credential) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creds[c.AccountID] = c
	return c.AccountID, nil
}

func (r *fakeCredentialRepo) GetByAccountID(ctx context.Context, accountID int64) (*models.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.creds[accountID]
	if !ok {
		return nil, nil
	}
	copied := *cred
	return &copied, nil
}

func (r *fakeCredentialRepo) SetToken(ctx context.Context, accountID int64, c *models.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.creds[accountID]
	if !ok {
		return errors.New("credential not found")
	}
	cred.AccessToken = c.AccessToken
	if c.RefreshToken != "" {
		cred.RefreshToken = c.RefreshToken
	}
	cred.ExpiresAt = c.ExpiresAt
	return nil
}

func (r *fakeCredentialRepo) MarkValidated(ctx context.Context, accountID int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cred, ok := r.creds[accountID]; ok {
		cred.LastValidatedAt = at
	}
	return nil
}

func (r *fakeCredentialRepo) ListExpiringBefore(ctx context.Context, t time.Time) ([]*models.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var creds []*models.Credential
	for _, cred := range r.creds {
		if !cred.ExpiresAt.IsZero() && cred.ExpiresAt.Before(t) {
			copied := *cred
			creds = append(creds, &copied)
		}
	}
	return creds, nil
}

func (r *fakeCredentialRepo) Remove(ctx context.Context, accountID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.creds, accountID)
	return nil
}

type fakeAttemptRepo struct {
	mu       sync.Mutex
	nextID   int64
	attempts map[int64]*models.DeliveryAttempt
}

func newFakeAttemptRepo() *fakeAttemptRepo {
	return &fakeAttemptRepo{attempts: make(map[int64]*models.DeliveryAttempt)}
}

func (r *fakeAttemptRepo) Create(ctx context.Context, a *models.DeliveryAttempt) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	copied := *a
	copied.ID = r.nextID
	r.attempts[copied.ID] = &copied
	return copied.ID, nil
}

func (r *fakeAttemptRepo) GetByID(ctx context.Context, id int64) (*models.DeliveryAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	attempt, ok := r.attempts[id]
	if !ok {
		return nil, nil
	}
	copied := *attempt
	return &copied, nil
}

func (r *fakeAttemptRepo) UpdateResult(ctx context.Context, a *models.DeliveryAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	attempt, ok := r.attempts[a.ID]
	if !ok {
		return errors.New("attempt not found")
	}
	attempt.Status = a.Status
	attempt.ErrorKind = a.ErrorKind
	attempt.ErrorMessage = a.ErrorMessage
	attempt.ScheduledRetryAt = a.ScheduledRetryAt
	attempt.PlatformPostID = a.PlatformPostID
	return nil
}

func (r *fakeAttemptRepo) LatestPerTarget(ctx context.Context, postID int64) (map[int64]*models.DeliveryAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	latest := make(map[int64]*models.DeliveryAttempt)
	for _, attempt := range r.attempts {
		if attempt.PostID != postID {
			continue
		}
		current, ok := latest[attempt.AccountID]
		if !ok || attempt.AttemptNumber > current.AttemptNumber {
			copied := *attempt
			latest[attempt.AccountID] = &copied
		}
	}
	return latest, nil
}

func (r *fakeAttemptRepo) HasPending(ctx context.Context, postID, accountID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, attempt := range r.attempts {
		if attempt.PostID == postID && attempt.AccountID == accountID && attempt.Status == models.AttemptPending {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeAttemptRepo) CountForTarget(ctx context.Context, postID, accountID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, attempt := range r.attempts {
		if attempt.PostID == postID && attempt.AccountID == accountID {
			count++
		}
	}
	return count, nil
}

type fakePostMediaRepo struct{}

func (fakePostMediaRepo) Create(ctx context.Context, tx *sql.Tx, pm *models.PostMedia) error {
	return nil
}

func (fakePostMediaRepo) ListByPostID(ctx context.Context, postID int64) ([]*models.PostMedia, error) {
	return nil, nil
}

type fakeAssetRepo struct{}

func (fakeAssetRepo) Create(ctx context.Context, tx *sql.Tx, ma *models.MediaAsset) (int64, error) {
	return 0, nil
}

func (fakeAssetRepo) GetByID(ctx context.Context, id int64) (*models.MediaAsset, error) {
	return nil, nil
}

func (fakeAssetRepo) Remove(ctx context.Context, id int64) error {
	return nil
}

// fakeAdapter scripts per-token behavior. publish is consulted on every call;
// calls are counted per access token.
type fakeAdapter struct {
	mu      sync.Mutex
	calls   map[string]int
	publish func(token string, call int) (string, error)
	refresh func(refreshToken string) (*platform.Token, error)
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{calls: make(map[string]int)}
}

func (a *fakeAdapter) Validate(ctx context.Context, content *platform.Content) error {
	return nil
}

func (a *fakeAdapter) Publish(ctx context.Context, content *platform.Content, accessToken string) (string, error) {
	a.mu.Lock()
	a.calls[accessToken]++
	call := a.calls[accessToken]
	a.mu.Unlock()

	if a.publish == nil {
		return "platform-post-1", nil
	}
	return a.publish(accessToken, call)
}

func (a *fakeAdapter) Refresh(ctx context.Context, refreshToken string) (*platform.Token, error) {
	if a.refresh == nil {
		return nil, errors.New("refresh not scripted")
	}
	return a.refresh(refreshToken)
}

type firedTask struct {
	postID int64
	delay  time.Duration
}

type retryTask struct {
	attemptID int64
	delay     time.Duration
}

// fakeEnqueuer records deferred work instead of executing it. Tests drain the
// recorded tasks explicitly to advance the pipeline.
type fakeEnqueuer struct {
	mu      sync.Mutex
	fires   []firedTask
	retries []retryTask
}

func (e *fakeEnqueuer) EnqueueFire(postID int64, delay time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fires = append(e.fires, firedTask{postID: postID, delay: delay})
	return nil
}

func (e *fakeEnqueuer) EnqueueRetry(attemptID int64, delay time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.retries = append(e.retries, retryTask{attemptID: attemptID, delay: delay})
	return nil
}

func (e *fakeEnqueuer) drainRetries() []retryTask {
	e.mu.Lock()
	defer e.mu.Unlock()
	retries := e.retries
	e.retries = nil
	return retries
}

type emittedEvent struct {
	event string
	data  json.RawMessage
}

type fakeSink struct {
	mu     sync.Mutex
	events []emittedEvent
}

func (s *fakeSink) Emit(ctx context.Context, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, emittedEvent{event: event, data: raw})
	return nil
}
