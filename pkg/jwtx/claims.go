package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Default token lifetimes. Access tokens must always expire before the
// refresh token they were issued with.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	DefaultAccessTokenTTL = 10 * time.Hour

	// DefaultRefreshTokenTTL is the default lifetime for refresh tokens.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Kind distinguishes the two token kinds. Each kind is signed with its
// own secret.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Valid reports whether k is a known token kind.
func (k Kind) Valid() bool {
	return k == KindAccess || k == KindRefresh
}

// Claims are the claims carried by both access and refresh tokens.
type Claims struct {
	jwt.RegisteredClaims

	// Role of the principal at issuance time ("user", "admin", "superadmin")
	Role string `json:"role"`

	// Type is the token kind, checked on verify so a token of one kind can
	// never be accepted as the other.
	Type Kind `json:"typ"`
}

// NewClaims builds minimally-correct claims for the given kind.
func NewClaims(kind Kind, subject, role, issuer string, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Role: role,
		Type: kind,
	}
}

// NewJTI returns a random identifier for the "jti" claim. Two tokens for
// the same subject signed within the same second still differ, which keeps
// their hashes unique in the credential store.
func NewJTI() string {
	return uuid.NewString()
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}

	if c.Issuer != expected {
		return ErrIssuer
	}

	return nil
}

// ValidateKind checks the typ claim.
func (c *Claims) ValidateKind(expected Kind) error {
	if c.Type != expected {
		return ErrKind
	}
	return nil
}

// ValidateSubject rejects tokens without a subject.
func (c *Claims) ValidateSubject() error {
	if c.Subject == "" {
		return ErrInvalidClaim
	}
	return nil
}
