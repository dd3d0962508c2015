package platform

import (
	"context"
	"time"
)

// Content is the platform-neutral shape of a post handed to an adapter. The
// orchestrator never inspects platform payloads beyond this.
type Content struct {
	Caption   string
	Title     string
	PostType  string
	MediaURLs []string
}

// Token is the result of a refresh exchange.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Adapter is implemented once per platform and registered in a Registry.
// Implementations speak the platform wire protocol; failures are reported as
// *PublishError so retryability is decided once, by error kind.
type Adapter interface {
	Validate(ctx context.Context, content *Content) error
	Publish(ctx context.Context, content *Content, accessToken string) (string, error)
	Refresh(ctx context.Context, refreshToken string) (*Token, error)
}
