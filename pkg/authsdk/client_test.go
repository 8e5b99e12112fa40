package authsdk_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/aussiebroadwan/tokenkeeper/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

// fakeServer issues numbered tokens. Every refresh token works once.
type fakeServer struct {
	issued   atomic.Int64
	refreshN atomic.Int64
	used     map[string]bool
	expires  int64
}

func (f *fakeServer) tokens() authsdk.TokenResponse {
	n := f.issued.Add(1)
	return authsdk.TokenResponse{
		AccessToken:      "access-" + string(rune('0'+n)),
		RefreshToken:     "refresh-" + string(rune('0'+n)),
		TokenType:        "Bearer",
		ExpiresIn:        f.expires,
		RefreshExpiresIn: 3600,
		Principal:        &authsdk.Principal{SubjectID: "u1", Role: "user"},
	}
}

func (f *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, code int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("POST /v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req authsdk.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch {
		case req.Login == "deactivated":
			writeJSON(w, http.StatusForbidden, authsdk.APIError{Code: authsdk.ErrorCodeForbidden})
		case req.Password != "pw":
			writeJSON(w, http.StatusUnauthorized, authsdk.APIError{Code: authsdk.ErrorCodeInvalidCredentials})
		default:
			writeJSON(w, http.StatusOK, f.tokens())
		}
	})
	mux.HandleFunc("POST /v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		var req authsdk.RefreshRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if f.used[req.RefreshToken] {
			writeJSON(w, http.StatusForbidden, authsdk.APIError{Code: authsdk.ErrorCodeForbidden})
			return
		}
		f.used[req.RefreshToken] = true
		f.refreshN.Add(1)
		writeJSON(w, http.StatusOK, f.tokens())
	})
	mux.HandleFunc("GET /v1/auth/validate", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, authsdk.ValidateResponse{Valid: true, Principal: authsdk.Principal{SubjectID: "u1", Role: "user"}})
	})
	mux.HandleFunc("POST /v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	mux.HandleFunc("GET /livez", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, authsdk.HealthResponse{Status: "ok"})
	})
	return mux
}

func newClient(t *testing.T, expiresIn int64) (*authsdk.SDKClient, *fakeServer) {
	t.Helper()
	f := &fakeServer{used: map[string]bool{}, expires: expiresIn}
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return authsdk.NewSDKClient(srv.URL + "/"), f
}

func TestLogin(t *testing.T) {
	client, _ := newClient(t, 3600)
	ctx := context.Background()

	s, err := client.Login(ctx, authsdk.LoginRequest{Login: "alice", Password: "pw"})
	require.NoError(t, err)
	require.Equal(t, "u1", s.Principal().SubjectID)

	tok, err := s.Token(ctx)
	require.NoError(t, err)
	require.Equal(t, "access-1", tok)

	_, err = client.Login(ctx, authsdk.LoginRequest{Login: "alice", Password: "nope"})
	require.True(t, authsdk.IsUnauthorized(err))

	_, err = client.Login(ctx, authsdk.LoginRequest{Login: "deactivated", Password: "pw"})
	require.True(t, authsdk.IsForbidden(err))
	require.False(t, authsdk.IsUnauthorized(err))
}

func TestSession_RefreshesNearExpiry(t *testing.T) {
	// Expires inside the refresh skew, so every Token call rotates.
	client, f := newClient(t, 10)
	ctx := context.Background()

	s, err := client.Login(ctx, authsdk.LoginRequest{Login: "alice", Password: "pw"})
	require.NoError(t, err)

	tok, err := s.Token(ctx)
	require.NoError(t, err)
	require.Equal(t, "access-2", tok)
	require.Equal(t, "refresh-2", s.RefreshToken())
	require.EqualValues(t, 1, f.refreshN.Load())

	// A second session holding the spent refresh token loses.
	stale := client.NewSessionFromTokens(&authsdk.TokenResponse{RefreshToken: "refresh-1"})
	err = stale.Refresh(ctx)
	require.True(t, authsdk.IsForbidden(err))
}

func TestValidateAndLogout(t *testing.T) {
	client, _ := newClient(t, 3600)
	ctx := context.Background()

	res, err := client.Validate(ctx, "access-1")
	require.NoError(t, err)
	require.True(t, res.Valid)

	_, err = client.Validate(ctx, "")
	require.True(t, authsdk.IsUnauthorized(err))

	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "unauthorized", apiErr.Code)

	s, err := client.Login(ctx, authsdk.LoginRequest{Login: "alice", Password: "pw"})
	require.NoError(t, err)
	require.NoError(t, s.Logout(ctx))
	require.Empty(t, s.AccessToken())
}

func TestGetLiveness(t *testing.T) {
	client, _ := newClient(t, 3600)
	h, err := client.GetLiveness(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ok", h.Status)
}
