package publisher

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/maheshrc27/postpilot/internal/models"
	"github.com/maheshrc27/postpilot/internal/platform"
	"github.com/maheshrc27/postpilot/internal/repository"
	"github.com/maheshrc27/postpilot/pkg/utils"
	"golang.org/x/sync/singleflight"
)

// TokenManager owns the credential lifecycle: health classification,
// publish-time token acquisition and the proactive refresh sweep. Refresh for
// a given account is single-flighted so concurrent dispatches never issue two
// simultaneous refresh calls.
type TokenManager struct {
	creds        repository.CredentialRepository
	accounts     repository.SocialAccountRepository
	registry     *platform.Registry
	secret       []byte
	group        singleflight.Group
	expiringSoon time.Duration
	refreshLead  time.Duration
	now          func() time.Time
}

func NewTokenManager(
	creds repository.CredentialRepository,
	accounts repository.SocialAccountRepository,
	registry *platform.Registry,
	secret []byte,
	expiringSoon, refreshLead time.Duration) *TokenManager {
	if expiringSoon <= 0 {
		expiringSoon = 24 * time.Hour
	}
	if refreshLead <= 0 {
		refreshLead = 2 * time.Hour
	}
	return &TokenManager{
		creds:        creds,
		accounts:     accounts,
		registry:     registry,
		secret:       secret,
		expiringSoon: expiringSoon,
		refreshLead:  refreshLead,
		now:          time.Now,
	}
}

// Health classifies an account's credential without touching the network.
func (m *TokenManager) Health(ctx context.Context, accountID int64) (string, error) {
	account, err := m.accounts.GetByID(ctx, accountID)
	if err != nil {
		return "", err
	}
	if account == nil || !account.Enabled {
		return models.CredentialUnhealthy, nil
	}

	cred, err := m.creds.GetByAccountID(ctx, accountID)
	if err != nil {
		return "", err
	}
	if cred == nil {
		return models.CredentialUnhealthy, nil
	}

	now := m.now()
	switch {
	case cred.ExpiresAt.IsZero():
		return models.CredentialHealthy, nil
	case !cred.ExpiresAt.After(now):
		return models.CredentialExpired, nil
	case cred.ExpiresAt.Before(now.Add(m.expiringSoon)):
		return models.CredentialExpiringSoon, nil
	default:
		return models.CredentialHealthy, nil
	}
}

// EnsureValid returns a decrypted access token usable right now. Healthy
// tokens are returned immediately; expiring or expired tokens are refreshed
// through the platform adapter first. A credential that cannot be refreshed
// yields a non-retryable credential error.
func (m *TokenManager) EnsureValid(ctx context.Context, accountID int64) (string, error) {
	account, err := m.accounts.GetByID(ctx, accountID)
	if err != nil {
		return "", err
	}
	if account == nil {
		return "", platform.NewPublishError(platform.KindNotFound, "account %d no longer exists", accountID)
	}
	if !account.Enabled {
		return "", platform.NewPublishError(platform.KindCredential, "account %d is disabled", accountID)
	}

	cred, err := m.creds.GetByAccountID(ctx, accountID)
	if err != nil {
		return "", err
	}
	if cred == nil {
		return "", platform.NewPublishError(platform.KindCredential, "account %d has no stored credential", accountID)
	}

	now := m.now()
	if cred.ExpiresAt.IsZero() || !cred.ExpiresAt.Before(now.Add(m.expiringSoon)) {
		return utils.Decrypt(cred.AccessToken, m.secret)
	}

	if cred.RefreshToken == "" {
		return "", platform.NewPublishError(platform.KindCredential,
			"token for account %d expires at %s and no refresh token is stored", accountID, cred.ExpiresAt.Format(time.RFC3339))
	}

	token, err, _ := m.group.Do(strconv.FormatInt(accountID, 10), func() (interface{}, error) {
		return m.refresh(ctx, account.Platform, cred)
	})
	if err != nil {
		return "", platform.NewPublishError(platform.KindCredential, "refresh failed for account %d: %v", accountID, err)
	}

	return token.(string), nil
}

// refresh performs the platform refresh exchange and persists the
// re-encrypted result. The new expiry must be strictly later than the old
// one, otherwise the refresh is reported as failed.
func (m *TokenManager) refresh(ctx context.Context, platformName string, cred *models.Credential) (string, error) {
	adapter, err := m.registry.Get(platformName)
	if err != nil {
		return "", err
	}

	refreshToken, err := utils.Decrypt(cred.RefreshToken, m.secret)
	if err != nil {
		return "", err
	}

	token, err := adapter.Refresh(ctx, refreshToken)
	if err != nil {
		return "", err
	}
	if !token.ExpiresAt.After(cred.ExpiresAt) {
		return "", platform.NewPublishError(platform.KindCredential,
			"refresh for account %d did not extend token expiry", cred.AccountID)
	}

	encryptedAccess, err := utils.Encrypt([]byte(token.AccessToken), m.secret)
	if err != nil {
		return "", err
	}
	encryptedRefresh := ""
	if token.RefreshToken != "" {
		encryptedRefresh, err = utils.Encrypt([]byte(token.RefreshToken), m.secret)
		if err != nil {
			return "", err
		}
	}

	err = m.creds.SetToken(ctx, cred.AccountID, &models.Credential{
		AccessToken:  encryptedAccess,
		RefreshToken: encryptedRefresh,
		ExpiresAt:    token.ExpiresAt,
	})
	if err != nil {
		return "", err
	}

	return token.AccessToken, nil
}

// SweepExpiring proactively refreshes every credential expiring within the
// configured lead time, so publish-time latency does not usually pay for a
// refresh exchange. Runs on a cron interval, independent of any in-flight
// publish.
func (m *TokenManager) SweepExpiring(ctx context.Context) {
	creds, err := m.creds.ListExpiringBefore(ctx, m.now().Add(m.refreshLead))
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, cred := range creds {
		if cred.RefreshToken == "" {
			continue
		}

		wg.Add(1)
		semaphore <- struct{}{}

		go func(cred *models.Credential) {
			defer wg.Done()
			defer func() { <-semaphore }()

			account, err := m.accounts.GetByID(ctx, cred.AccountID)
			if err != nil || account == nil {
				return
			}

			_, err, _ = m.group.Do(strconv.FormatInt(cred.AccountID, 10), func() (interface{}, error) {
				return m.refresh(ctx, account.Platform, cred)
			})
			if err != nil {
				slog.Info("unable to refresh token for account " + strconv.FormatInt(cred.AccountID, 10))
			}
		}(cred)
	}

	wg.Wait()
}
