package domain

import "time"

// CredentialStatus is the lifecycle state of a stored token pair. The only
// transition is active -> revoked.
type CredentialStatus string

const (
	StatusActive  CredentialStatus = "active"
	StatusRevoked CredentialStatus = "revoked"
)

// Credential is the persisted record of one issued token pair. Only token
// fingerprints are kept, never the raw tokens.
type Credential struct {
	ID               string
	SubjectID        string
	Role             Role
	AccessTokenHash  string // base64url SHA-256 of the access token
	RefreshTokenHash string // base64url SHA-256 of the refresh token
	Status           CredentialStatus
	IssuedAt         time.Time
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	LastUsedAt       *time.Time
	RevokedAt        *time.Time
}

// Principal returns the principal the pair was issued to.
func (c Credential) Principal() Principal {
	return Principal{SubjectID: c.SubjectID, Role: c.Role}
}

// IsActive reports whether the record is active.
func (c Credential) IsActive() bool { return c.Status == StatusActive }

// TokenPair is what issuance and rotation hand back to the caller.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
