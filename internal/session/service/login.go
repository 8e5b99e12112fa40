package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/tokenkeeper/internal/session/domain"
	"github.com/aussiebroadwan/tokenkeeper/internal/session/store"
	"github.com/aussiebroadwan/tokenkeeper/pkg/cryptox"
	"github.com/aussiebroadwan/tokenkeeper/pkg/idx"
	"github.com/aussiebroadwan/tokenkeeper/pkg/slogx"
	"github.com/pquerna/otp/totp"
)

// verifyPassword is swapped in tests to observe which hashes are checked.
var verifyPassword = cryptox.VerifyPassword

var (
	decoyHashOnce sync.Once
	decoyHash     string
)

// spendPasswordCheck runs one argon2 verification against a fixed hash so
// an unknown login costs the same as a wrong password.
func spendPasswordCheck(password string) {
	decoyHashOnce.Do(func() {
		decoyHash, _ = cryptox.HashPassword("tokenkeeper-unknown-account")
	})
	if decoyHash != "" {
		_ = verifyPassword(password, decoyHash)
	}
}

// LoginService checks a login/password (and TOTP code, when the account
// has one) and hands the resulting principal to the session manager.
type LoginService struct {
	Store    store.Store
	Sessions *SessionService
}

// Login authenticates and issues a new session. Any existing session for
// the subject is revoked.
func (s *LoginService) Login(ctx context.Context, login, password, otpCode string) (domain.TokenPair, domain.Principal, error) {
	l := slogx.FromContext(ctx)
	login = normalizeLogin(login)
	if login == "" || password == "" {
		return domain.TokenPair{}, domain.Principal{}, ErrInvalidCredentials
	}

	acct, err := s.Store.Accounts().GetAccountByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			spendPasswordCheck(password)
			l.Info("login for unknown account", slog.String("login", login))
			return domain.TokenPair{}, domain.Principal{}, ErrInvalidCredentials
		}
		return domain.TokenPair{}, domain.Principal{}, unavailable(err)
	}

	if err := verifyPassword(password, acct.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			l.Error("stored password hash unusable", slog.String("subject_id", acct.SubjectID), slog.Any("error", err))
		}
		return domain.TokenPair{}, domain.Principal{}, ErrInvalidCredentials
	}

	if acct.Deactivated() {
		l.Info("login for deactivated account", slog.String("subject_id", acct.SubjectID))
		return domain.TokenPair{}, domain.Principal{}, ErrAccountDeactivated
	}

	if acct.OTPSecret != nil {
		otpCode = strings.TrimSpace(otpCode)
		if otpCode == "" {
			return domain.TokenPair{}, domain.Principal{}, ErrOTPRequired
		}
		if !totp.Validate(otpCode, *acct.OTPSecret) {
			l.Info("login otp rejected", slog.String("subject_id", acct.SubjectID))
			return domain.TokenPair{}, domain.Principal{}, ErrInvalidCredentials
		}
	}

	p := acct.Principal()
	pair, err := s.Sessions.Issue(ctx, p)
	if err != nil {
		return domain.TokenPair{}, domain.Principal{}, err
	}
	return pair, p, nil
}

// CreateAccount registers an account with an argon2id password hash.
func (s *LoginService) CreateAccount(ctx context.Context, login, password string, role domain.Role, otpSecret *string) (domain.Account, error) {
	login = normalizeLogin(login)
	if login == "" || password == "" {
		return domain.Account{}, errors.New("login and password are required")
	}
	if _, err := domain.ParseRole(role.String()); err != nil {
		return domain.Account{}, err
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.Account{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	acct := domain.Account{
		SubjectID:    idx.NewAt(now).String(),
		Login:        login,
		PasswordHash: hash,
		Role:         role,
		OTPSecret:    otpSecret,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Store.Accounts().CreateAccount(ctx, acct); err != nil {
		return domain.Account{}, err
	}
	return acct, nil
}

// Bootstrap creates the first superadmin. It refuses once any account
// exists.
func (s *LoginService) Bootstrap(ctx context.Context, login, password string) (domain.Account, error) {
	empty, err := s.Store.Accounts().IsEmpty(ctx)
	if err != nil {
		return domain.Account{}, unavailable(err)
	}
	if !empty {
		return domain.Account{}, ErrAlreadyBootstrapped
	}

	acct, err := s.CreateAccount(ctx, login, password, domain.RoleSuperadmin, nil)
	if err != nil {
		return domain.Account{}, err
	}
	slogx.FromContext(ctx).Info("bootstrap superadmin created", slog.String("subject_id", acct.SubjectID))
	return acct, nil
}

func normalizeLogin(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
