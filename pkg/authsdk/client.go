package authsdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// SDKClient talks to a tokenkeeper instance.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client

	// RefreshSkew is how long before expiry a Session refreshes its access
	// token. Default 30s.
	RefreshSkew time.Duration
}

// NewSDKClient creates a new client with a 10s HTTP timeout.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		RefreshSkew: 30 * time.Second,
	}
}

// LoginTokens performs a login and returns the raw token response.
func (c *SDKClient) LoginTokens(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/auth/login", "", req)
	if err != nil {
		return nil, err
	}

	var tokens TokenResponse
	if err := decodeJSON(resp, &tokens, http.StatusOK); err != nil {
		return nil, err
	}
	return &tokens, nil
}

// Login performs a login and wraps the tokens in a self-refreshing Session.
func (c *SDKClient) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	tokens, err := c.LoginTokens(ctx, req)
	if err != nil {
		return nil, err
	}
	return newSession(c, tokens), nil
}

// Refresh trades a refresh token for a new pair. The old refresh token is
// dead afterwards whether or not the caller keeps the response.
func (c *SDKClient) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/auth/refresh", "", RefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, err
	}

	var tokens TokenResponse
	if err := decodeJSON(resp, &tokens, http.StatusOK); err != nil {
		return nil, err
	}
	return &tokens, nil
}

// Validate asks the service whether accessToken is live and who it
// belongs to.
func (c *SDKClient) Validate(ctx context.Context, accessToken string) (*ValidateResponse, error) {
	resp, err := c.doJSON(ctx, http.MethodGet, "/v1/auth/validate", accessToken, nil)
	if err != nil {
		return nil, err
	}

	var out ValidateResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout revokes whichever tokens are given. It succeeds for unknown or
// already revoked tokens.
func (c *SDKClient) Logout(ctx context.Context, accessToken, refreshToken string) error {
	var body any
	if refreshToken != "" {
		body = LogoutRequest{RefreshToken: refreshToken}
	}
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/auth/logout", accessToken, body)
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil, http.StatusOK)
}

// NewSessionFromTokens wraps tokens obtained elsewhere in a Session.
func (c *SDKClient) NewSessionFromTokens(tokens *TokenResponse) *Session {
	return newSession(c, tokens)
}
