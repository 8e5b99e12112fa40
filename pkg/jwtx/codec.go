package jwtx

import (
	"bytes"
	"errors"
	"fmt"
	"time"
)

// CodecConfig configures a Codec.
type CodecConfig struct {
	Issuer string

	// AccessSecret and RefreshSecret must differ so that compromise of one
	// cannot forge the other kind.
	AccessSecret  []byte
	RefreshSecret []byte

	AccessTTL  time.Duration // defaults to DefaultAccessTokenTTL
	RefreshTTL time.Duration // defaults to DefaultRefreshTokenTTL

	// Leeway for exp/nbf checks. Zero means exact.
	Leeway time.Duration

	// Now is the clock used when verifying. Defaults to time.Now.
	Now func() time.Time
}

// Validate checks the config after defaults have been applied.
func (c *CodecConfig) Validate() error {
	if len(c.AccessSecret) < MinSecretLength || len(c.RefreshSecret) < MinSecretLength {
		return errors.New("jwtx: token secrets must be at least 32 bytes")
	}
	if bytes.Equal(c.AccessSecret, c.RefreshSecret) {
		return errors.New("jwtx: access and refresh secrets must differ")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return errors.New("jwtx: token lifetimes must be positive")
	}
	if c.AccessTTL >= c.RefreshTTL {
		return fmt.Errorf("jwtx: access ttl %s must be shorter than refresh ttl %s", c.AccessTTL, c.RefreshTTL)
	}
	return nil
}

// Codec signs and verifies the two token kinds. It is stateless and safe
// for concurrent use.
type Codec struct {
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration

	access  *HS256Signer
	refresh *HS256Signer

	accessVerifier  *HS256Verifier
	refreshVerifier *HS256Verifier
}

// NewCodec builds a Codec from cfg.
func NewCodec(cfg CodecConfig) (*Codec, error) {
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = DefaultAccessTokenTTL
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = DefaultRefreshTokenTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	access, err := NewSignerHS256(cfg.AccessSecret)
	if err != nil {
		return nil, err
	}
	refresh, err := NewSignerHS256(cfg.RefreshSecret)
	if err != nil {
		return nil, err
	}

	return &Codec{
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		access:     access,
		refresh:    refresh,
		accessVerifier: NewVerifierHS256(cfg.AccessSecret, VerifyOptions{
			Issuer: cfg.Issuer, Kind: KindAccess, Leeway: cfg.Leeway, Now: cfg.Now,
		}),
		refreshVerifier: NewVerifierHS256(cfg.RefreshSecret, VerifyOptions{
			Issuer: cfg.Issuer, Kind: KindRefresh, Leeway: cfg.Leeway, Now: cfg.Now,
		}),
	}, nil
}

func (c *Codec) AccessTTL() time.Duration  { return c.accessTTL }
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// SignAccess signs an access token for subject/role issued at now.
func (c *Codec) SignAccess(subject, role string, now time.Time) (string, time.Time, error) {
	return c.sign(c.access, KindAccess, subject, role, c.accessTTL, now)
}

// SignRefresh signs a refresh token for subject/role issued at now.
func (c *Codec) SignRefresh(subject, role string, now time.Time) (string, time.Time, error) {
	return c.sign(c.refresh, KindRefresh, subject, role, c.refreshTTL, now)
}

func (c *Codec) sign(s Signer, kind Kind, subject, role string, ttl time.Duration, now time.Time) (string, time.Time, error) {
	claims := NewClaims(kind, subject, role, c.issuer, ttl, now)
	tok, err := s.Sign(claims)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("jwtx: sign %s token: %w", kind, err)
	}
	return tok, claims.ExpiresAt.Time, nil
}

// Verify checks the signature, expiry and claims of a token of the given
// kind.
func (c *Codec) Verify(token string, kind Kind) (Claims, error) {
	switch kind {
	case KindAccess:
		return c.accessVerifier.Verify(token)
	case KindRefresh:
		return c.refreshVerifier.Verify(token)
	default:
		return Claims{}, fmt.Errorf("%w: unknown kind %q", ErrKind, kind)
	}
}
