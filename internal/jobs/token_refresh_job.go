package job

import (
	"context"

	"github.com/maheshrc27/postpilot/internal/publisher"
)

// TokenRefreshJob drives the proactive credential refresh sweep on a cron
// interval so publish-time calls rarely pay for a refresh exchange.
type TokenRefreshJob struct {
	tokens *publisher.TokenManager
}

func NewTokenRefreshJob(tokens *publisher.TokenManager) *TokenRefreshJob {
	return &TokenRefreshJob{tokens: tokens}
}

func (j *TokenRefreshJob) RefreshTokens() {
	j.tokens.SweepExpiring(context.Background())
}
