package jwtx

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the shortest HMAC secret we accept (256 bits).
const MinSecretLength = 32

// Signer is our interface for anything that can sign JWTs.
type Signer interface {
	Alg() string
	Sign(Claims) (string, error)
	Validate() error
}

// HS256Signer implements the Signer interface using HMAC SHA-256.
type HS256Signer struct {
	secret []byte
}

// NewSignerHS256 creates an HS256 signer from a shared secret.
func NewSignerHS256(secret []byte) (*HS256Signer, error) {
	s := &HS256Signer{secret: secret}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *HS256Signer) Alg() string { return jwt.SigningMethodHS256.Alg() }

// Sign takes your claims and turns them into a signed JWT string.
func (s *HS256Signer) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.secret)
}

// Validate does a quick sanity check on the secret.
func (s *HS256Signer) Validate() error {
	if len(s.secret) < MinSecretLength {
		return errors.New("jwtx: HS256 secret must be at least 32 bytes")
	}
	return nil
}
