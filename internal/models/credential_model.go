package models

import "time"

// Credential holds the OAuth material for one social account (1:1). Tokens are
// stored AES-GCM encrypted; they are only decrypted in-memory right before a
// platform call.
type Credential struct {
	ID              int64     `db:"id" json:"id"`
	AccountID       int64     `db:"account_id" json:"account_id"`
	AccessToken     string    `db:"access_token" json:"-"`
	RefreshToken    string    `db:"refresh_token" json:"-"` // empty for platforms with long-lived tokens
	ExpiresAt       time.Time `db:"expires_at" json:"expires_at"` // zero value means no expiry
	LastValidatedAt time.Time `db:"last_validated_at" json:"last_validated_at"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

const (
	CredentialHealthy      = "healthy"
	CredentialExpiringSoon = "expiring_soon"
	CredentialExpired      = "expired"
	CredentialUnhealthy    = "unhealthy"
)
