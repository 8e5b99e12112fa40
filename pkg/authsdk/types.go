package authsdk

import "time"

// Principal identifies the subject a session belongs to.
type Principal struct {
	SubjectID string `json:"subject_id" example:"01JCZ7J5G8Y0X9N6QH3T8PJ2KD"`
	Role      string `json:"role" example:"user"`
}

// LoginRequest is the body of POST /v1/auth/login.
type LoginRequest struct {
	Login    string `json:"login" example:"alice"`
	Password string `json:"password" example:"correct horse battery staple"`

	// OTP is the current TOTP code, required for accounts with 2FA.
	OTP string `json:"otp,omitempty" example:"123456"`
}

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type" example:"Bearer"`

	// ExpiresIn and RefreshExpiresIn are seconds from now.
	ExpiresIn        int64 `json:"expires_in" example:"36000"`
	RefreshExpiresIn int64 `json:"refresh_expires_in" example:"604800"`

	Principal *Principal `json:"principal,omitempty"`
}

// RefreshRequest is the body of POST /v1/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutRequest is the optional body of POST /v1/auth/logout. The access
// token travels in the Authorization header.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// ValidateResponse is returned by GET /v1/auth/validate.
type ValidateResponse struct {
	Valid     bool      `json:"valid"`
	Principal Principal `json:"principal"`
}

// SessionInfo is one stored token pair as shown to administrators. Tokens
// themselves are never returned.
type SessionInfo struct {
	ID               string     `json:"id"`
	Role             string     `json:"role"`
	Status           string     `json:"status" example:"active"`
	IssuedAt         time.Time  `json:"issued_at"`
	AccessExpiresAt  time.Time  `json:"access_expires_at"`
	RefreshExpiresAt time.Time  `json:"refresh_expires_at"`
	LastUsedAt       *time.Time `json:"last_used_at,omitempty"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
}

// SessionsResponse lists a subject's sessions, newest first.
type SessionsResponse struct {
	SubjectID     string        `json:"subject_id"`
	Deactivated   bool          `json:"deactivated"`
	DeactivatedAt *time.Time    `json:"deactivated_at,omitempty"`
	Sessions      []SessionInfo `json:"sessions"`
}

// DeactivationResponse is returned by the deactivate and reactivate
// endpoints.
type DeactivationResponse struct {
	SubjectID       string `json:"subject_id"`
	Deactivated     bool   `json:"deactivated"`
	RevokedSessions int64  `json:"revoked_sessions"`
}

// SweepResponse is returned by POST /v1/admin/sweep.
type SweepResponse struct {
	Swept int64 `json:"swept"`
}

// HealthResponse represents the response structure for health check endpoints.
// Used by both /livez and /readyz endpoints (readyz includes additional Checks field).
type HealthResponse struct {
	// Status indicates the overall health status (e.g., "ok")
	Status string `json:"status"`

	// Uptime is the service uptime duration as a string (e.g., "1h23m45s")
	Uptime string `json:"uptime,omitempty"`

	// Version is the service version string
	Version string `json:"version,omitempty"`

	// Checks contains readiness check results for critical dependencies (only for /readyz)
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks is the per-dependency status in /readyz.
type HealthChecks struct {
	Database     string `json:"database"`
	Deactivation string `json:"deactivation,omitempty"`
}
