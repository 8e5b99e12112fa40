package authsdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Session is a logged-in token pair. Token refreshes the pair shortly
// before the access token expires; calls are serialised so the single-use
// refresh token is never presented twice.
type Session struct {
	client *SDKClient

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
	principal    Principal
}

func newSession(client *SDKClient, tokens *TokenResponse) *Session {
	s := &Session{client: client}
	s.apply(tokens)
	return s
}

// apply stores a token response. Caller holds mu, or owns s exclusively.
func (s *Session) apply(tokens *TokenResponse) {
	s.accessToken = tokens.AccessToken
	s.refreshToken = tokens.RefreshToken
	s.expiresAt = time.Now().Add(time.Duration(tokens.ExpiresIn)*time.Second - s.client.RefreshSkew)
	if tokens.Principal != nil {
		s.principal = *tokens.Principal
	}
}

// Token returns a usable access token, refreshing first if it is about to
// expire.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if time.Now().Before(s.expiresAt) {
		return s.accessToken, nil
	}
	if err := s.refreshLocked(ctx); err != nil {
		return "", err
	}
	return s.accessToken, nil
}

// Refresh rotates the pair now.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx)
}

func (s *Session) refreshLocked(ctx context.Context) error {
	if s.refreshToken == "" {
		return errors.New("session has no refresh token")
	}
	tokens, err := s.client.Refresh(ctx, s.refreshToken)
	if err != nil {
		return fmt.Errorf("failed to refresh token: %w", err)
	}
	s.apply(tokens)
	return nil
}

// Logout revokes both tokens and clears them from the session.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.client.Logout(ctx, s.accessToken, s.refreshToken); err != nil {
		return err
	}
	s.accessToken, s.refreshToken = "", ""
	s.expiresAt = time.Time{}
	return nil
}

// Principal returns who the session belongs to, as reported at login or
// the last refresh.
func (s *Session) Principal() Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.principal
}

// AccessToken returns the current access token without checking expiry.
func (s *Session) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken
}

// RefreshToken returns the current refresh token.
func (s *Session) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshToken
}

// doAuth sends an authenticated JSON request and decodes the result.
func (s *Session) doAuth(ctx context.Context, method, path string, body, target any, expected int) error {
	token, err := s.Token(ctx)
	if err != nil {
		return err
	}
	resp, err := s.client.doJSON(ctx, method, path, token, body)
	if err != nil {
		return err
	}
	return decodeJSON(resp, target, expected)
}

// Deactivate flags a subject and revokes its sessions. Admin only.
func (s *Session) Deactivate(ctx context.Context, subjectID string) (*DeactivationResponse, error) {
	var out DeactivationResponse
	path := "/v1/admin/subjects/" + url.PathEscape(subjectID) + "/deactivate"
	if err := s.doAuth(ctx, http.MethodPost, path, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reactivate clears a subject's deactivation flag. Admin only.
func (s *Session) Reactivate(ctx context.Context, subjectID string) (*DeactivationResponse, error) {
	var out DeactivationResponse
	path := "/v1/admin/subjects/" + url.PathEscape(subjectID) + "/reactivate"
	if err := s.doAuth(ctx, http.MethodPost, path, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSessions returns a subject's stored sessions. Admin only.
func (s *Session) ListSessions(ctx context.Context, subjectID string) (*SessionsResponse, error) {
	var out SessionsResponse
	path := "/v1/admin/subjects/" + url.PathEscape(subjectID) + "/sessions"
	if err := s.doAuth(ctx, http.MethodGet, path, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sweep runs an expiry sweep now. Admin only.
func (s *Session) Sweep(ctx context.Context) (*SweepResponse, error) {
	var out SweepResponse
	if err := s.doAuth(ctx, http.MethodPost, "/v1/admin/sweep", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}
