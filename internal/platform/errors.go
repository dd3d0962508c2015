package platform

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindCredential     ErrorKind = "credential"
	KindRateLimited    ErrorKind = "rate_limited"
	KindNetwork        ErrorKind = "network"
	KindNetworkTimeout ErrorKind = "network_timeout"
	KindServer         ErrorKind = "server"
	KindPermission     ErrorKind = "permission"
	KindNotFound       ErrorKind = "not_found"
)

// Retryable reports whether a failure of this kind is expected to be
// transient. Credential, validation, permission and not-found failures cannot
// be fixed by retrying.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimited, KindNetwork, KindNetworkTimeout, KindServer:
		return true
	}
	return false
}

// PublishError carries the failure kind from an adapter call. RetryAfter is a
// platform-supplied hint (HTTP 429 Retry-After) and may be zero.
type PublishError struct {
	Kind       ErrorKind
	Message    string
	RetryAfter time.Duration
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func NewPublishError(kind ErrorKind, format string, args ...any) *PublishError {
	return &PublishError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Classify maps any adapter error onto a PublishError. Context deadline
// expiry becomes a network timeout; unknown errors are treated as transient
// network failures so they stay visible through the retry loop instead of
// being dropped.
func Classify(err error) *PublishError {
	var perr *PublishError
	if errors.As(err, &perr) {
		return perr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &PublishError{Kind: KindNetworkTimeout, Message: err.Error()}
	}
	return &PublishError{Kind: KindNetwork, Message: err.Error()}
}
