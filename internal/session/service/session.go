package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/tokenkeeper/internal/session/domain"
	"github.com/aussiebroadwan/tokenkeeper/internal/session/store"
	"github.com/aussiebroadwan/tokenkeeper/internal/session/telemetry"
	"github.com/aussiebroadwan/tokenkeeper/pkg/cryptox"
	"github.com/aussiebroadwan/tokenkeeper/pkg/idx"
	"github.com/aussiebroadwan/tokenkeeper/pkg/jwtx"
	"github.com/aussiebroadwan/tokenkeeper/pkg/slogx"
)

// DefaultStoreTimeout bounds every store round trip made by SessionService.
const DefaultStoreTimeout = 3 * time.Second

// DeactivationSource tells the session manager whether a subject may be
// issued new sessions.
type DeactivationSource interface {
	IsDeactivated(ctx context.Context, subjectID string) (bool, error)
}

// SessionService issues, validates, rotates and revokes token pairs. A
// subject has at most one active pair; issuing a new one revokes the rest.
type SessionService struct {
	Store store.Store
	Codec *jwtx.Codec

	// Deactivation is consulted before every issuance. Nil disables the check.
	Deactivation DeactivationSource

	Metrics *telemetry.Metrics

	// StoreTimeout defaults to DefaultStoreTimeout.
	StoreTimeout time.Duration

	// Now defaults to time.Now. It must agree with the codec's clock.
	Now func() time.Time
}

func (s *SessionService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// storeCtx derives the bounded context used for store calls.
func (s *SessionService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.StoreTimeout
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// Issue creates a fresh pair for p, revoking every other active pair the
// subject holds.
func (s *SessionService) Issue(ctx context.Context, p domain.Principal) (domain.TokenPair, error) {
	if err := p.Validate(); err != nil {
		return domain.TokenPair{}, fmt.Errorf("%w: %w", ErrInvalidPrincipal, err)
	}
	if err := s.checkDeactivated(ctx, p.SubjectID); err != nil {
		return domain.TokenPair{}, err
	}

	pair, id, err := s.issueTx(ctx, p, nil)
	if err != nil {
		return domain.TokenPair{}, err
	}
	if err := s.confirmNotDeactivated(ctx, p.SubjectID, id); err != nil {
		return domain.TokenPair{}, err
	}

	s.Metrics.Issued(ctx)
	slogx.FromContext(ctx).Info("session issued", slog.String("subject_id", p.SubjectID), slog.String("role", p.Role.String()))
	return pair, nil
}

// Validate checks an access token and returns the principal from its
// claims. The store record must still be active; its last_used_at is
// bumped on success.
//
// The principal comes from the signed claims, not the record, so a role
// change only shows up after the next issuance.
func (s *SessionService) Validate(ctx context.Context, accessToken string) (domain.Principal, error) {
	p, err := s.validate(ctx, accessToken)
	if err != nil {
		s.Metrics.ValidationFailure(ctx, telemetry.OpValidate, Reason(err))
		return domain.Principal{}, err
	}
	return p, nil
}

func (s *SessionService) validate(ctx context.Context, accessToken string) (domain.Principal, error) {
	claims, err := s.Codec.Verify(accessToken, jwtx.KindAccess)
	if err != nil {
		return domain.Principal{}, mapTokenErr(err)
	}
	p, err := principalFromClaims(claims)
	if err != nil {
		return domain.Principal{}, err
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	now := s.now()
	rec, err := s.Store.Credentials().FindActiveByAccessHash(sctx, cryptox.FingerprintToken(accessToken), now)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Principal{}, ErrRevoked
		}
		return domain.Principal{}, unavailable(err)
	}

	if err := s.Store.Credentials().Touch(sctx, rec.ID, now); err != nil {
		return domain.Principal{}, unavailable(err)
	}

	return p, nil
}

// Rotate trades a refresh token for a new pair. Each refresh token works
// once: of several concurrent calls with the same token exactly one wins
// and the rest get ErrRevoked.
func (s *SessionService) Rotate(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	pair, err := s.rotate(ctx, refreshToken)
	if err != nil {
		s.Metrics.ValidationFailure(ctx, telemetry.OpRotate, Reason(err))
		return domain.TokenPair{}, err
	}
	s.Metrics.Rotated(ctx)
	return pair, nil
}

func (s *SessionService) rotate(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	claims, err := s.Codec.Verify(refreshToken, jwtx.KindRefresh)
	if err != nil {
		return domain.TokenPair{}, mapTokenErr(err)
	}
	if _, err := principalFromClaims(claims); err != nil {
		return domain.TokenPair{}, err
	}

	rec, err := s.findActiveByRefresh(ctx, refreshToken)
	if err != nil {
		return domain.TokenPair{}, err
	}

	p := rec.Principal()
	if err := s.checkDeactivated(ctx, p.SubjectID); err != nil {
		return domain.TokenPair{}, err
	}

	pair, id, err := s.issueTx(ctx, p, &rec)
	if err != nil {
		return domain.TokenPair{}, err
	}
	if err := s.confirmNotDeactivated(ctx, p.SubjectID, id); err != nil {
		return domain.TokenPair{}, err
	}

	slogx.FromContext(ctx).Info("session rotated", slog.String("subject_id", p.SubjectID), slog.String("previous_id", rec.ID))
	return pair, nil
}

func (s *SessionService) findActiveByRefresh(ctx context.Context, refreshToken string) (domain.Credential, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	rec, err := s.Store.Credentials().FindActiveByRefreshHash(sctx, cryptox.FingerprintToken(refreshToken), s.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Credential{}, ErrRevoked
		}
		return domain.Credential{}, unavailable(err)
	}
	return rec, nil
}

// Revoke revokes whichever of the two tokens are given. Unknown or already
// revoked tokens are not an error.
func (s *SessionService) Revoke(ctx context.Context, accessToken, refreshToken string) error {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	now := s.now()
	var total int64
	for _, tok := range []string{accessToken, refreshToken} {
		if tok == "" {
			continue
		}
		n, err := s.Store.Credentials().RevokeByHash(sctx, cryptox.FingerprintToken(tok), now)
		if err != nil {
			return unavailable(err)
		}
		total += n
	}

	if total > 0 {
		s.Metrics.Revoked(ctx, total)
		slogx.FromContext(ctx).Info("session revoked", slog.Int64("count", total))
	}
	return nil
}

// RevokeSubject revokes every active pair held by subjectID.
func (s *SessionService) RevokeSubject(ctx context.Context, subjectID string) (int64, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	n, err := s.Store.Credentials().RevokeAllActive(sctx, subjectID, s.now())
	if err != nil {
		return 0, unavailable(err)
	}
	s.Metrics.Revoked(ctx, n)
	return n, nil
}

func (s *SessionService) checkDeactivated(ctx context.Context, subjectID string) error {
	if s.Deactivation == nil {
		return nil
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	deactivated, err := s.Deactivation.IsDeactivated(sctx, subjectID)
	if err != nil {
		return unavailable(err)
	}
	if deactivated {
		return ErrAccountDeactivated
	}
	return nil
}

// confirmNotDeactivated repeats the deactivation check after a pair has
// been committed and revokes it if the check no longer passes. Deactivation
// sets the flag before revoking the subject's pairs, so a pair committed
// after that revoke always sees the flag here.
func (s *SessionService) confirmNotDeactivated(ctx context.Context, subjectID, credentialID string) error {
	checkErr := s.checkDeactivated(ctx, subjectID)
	if checkErr == nil {
		return nil
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	if _, err := s.Store.Credentials().RevokeIfActive(sctx, credentialID, s.now()); err != nil {
		return unavailable(err)
	}
	slogx.FromContext(ctx).Warn("session revoked after late deactivation",
		slog.String("subject_id", subjectID), slog.String("credential_id", credentialID))
	return checkErr
}

// issueTx signs a new pair for p and stores it in one transaction together
// with revoking the subject's other active records. When prev is set the
// transaction first claims prev; losing that claim means someone else
// already rotated it.
//
// A unique violation means a concurrent issuance for the same subject
// committed between our revoke and insert. The whole transaction is tried
// once more with fresh tokens; a second loss is reported as
// ErrStoreUnavailable. The returned string is the new record's ID.
func (s *SessionService) issueTx(ctx context.Context, p domain.Principal, prev *domain.Credential) (domain.TokenPair, string, error) {
	const attempts = 2

	var err error
	for range attempts {
		var (
			pair domain.TokenPair
			rec  domain.Credential
		)
		pair, rec, err = s.mint(p)
		if err != nil {
			return domain.TokenPair{}, "", err
		}

		err = s.insertTx(ctx, rec, prev)
		if err == nil {
			return pair, rec.ID, nil
		}
		if !errors.Is(err, store.ErrAlreadyExists) {
			break
		}
	}

	if errors.Is(err, ErrRevoked) {
		return domain.TokenPair{}, "", err
	}
	return domain.TokenPair{}, "", unavailable(err)
}

func (s *SessionService) insertTx(ctx context.Context, rec domain.Credential, prev *domain.Credential) error {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	return s.Store.WithTx(sctx, func(tx store.Tx) error {
		if prev != nil {
			ok, err := tx.Credentials().RevokeIfActive(sctx, prev.ID, rec.IssuedAt)
			if err != nil {
				return err
			}
			if !ok {
				return ErrRevoked
			}
		}

		if _, err := tx.Credentials().RevokeAllActive(sctx, rec.SubjectID, rec.IssuedAt); err != nil {
			return err
		}
		return tx.Credentials().Insert(sctx, rec)
	})
}

// mint signs both tokens and builds the record that will hold their
// fingerprints.
func (s *SessionService) mint(p domain.Principal) (domain.TokenPair, domain.Credential, error) {
	now := s.now()

	access, accessExp, err := s.Codec.SignAccess(p.SubjectID, p.Role.String(), now)
	if err != nil {
		return domain.TokenPair{}, domain.Credential{}, err
	}
	refresh, refreshExp, err := s.Codec.SignRefresh(p.SubjectID, p.Role.String(), now)
	if err != nil {
		return domain.TokenPair{}, domain.Credential{}, err
	}

	pair := domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}
	rec := domain.Credential{
		ID:               idx.NewAt(now).String(),
		SubjectID:        p.SubjectID,
		Role:             p.Role,
		AccessTokenHash:  cryptox.FingerprintToken(access),
		RefreshTokenHash: cryptox.FingerprintToken(refresh),
		Status:           domain.StatusActive,
		IssuedAt:         now,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}
	return pair, rec, nil
}

func principalFromClaims(c jwtx.Claims) (domain.Principal, error) {
	role, err := domain.ParseRole(c.Role)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return domain.Principal{SubjectID: c.Subject, Role: role}, nil
}

// mapTokenErr folds codec errors into the service taxonomy. Anything that
// isn't a signature or expiry problem counts as malformed.
func mapTokenErr(err error) error {
	switch {
	case errors.Is(err, jwtx.ErrInvalidSig):
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	case errors.Is(err, jwtx.ErrExpired):
		return fmt.Errorf("%w: %w", ErrExpiredSignature, err)
	default:
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
