package service

import "errors"

// Token and session failures. The HTTP layer collapses all of these to a
// generic unauthorized/forbidden response; the distinction is for logging
// and internal decisions only.
var (
	ErrMalformed          = errors.New("malformed_token")
	ErrInvalidSignature   = errors.New("invalid_signature")
	ErrExpiredSignature   = errors.New("expired_signature")
	ErrRevoked            = errors.New("revoked")
	ErrAccountDeactivated = errors.New("account_deactivated")
	ErrStoreUnavailable   = errors.New("store_unavailable")
)

// Login and administration failures.
var (
	ErrInvalidCredentials  = errors.New("invalid_credentials")
	ErrOTPRequired         = errors.New("otp_required")
	ErrInvalidPrincipal    = errors.New("invalid_principal")
	ErrSubjectNotFound     = errors.New("subject_not_found")
	ErrAlreadyBootstrapped = errors.New("already_bootstrapped")
)

// IsUnauthorized reports whether err should surface as 401 to a caller
// presenting a token.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrMalformed) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrExpiredSignature) ||
		errors.Is(err, ErrRevoked) ||
		errors.Is(err, ErrStoreUnavailable)
}

// IsForbidden reports whether err should surface as 403.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrAccountDeactivated)
}

// Reason is a short label for err, used for metrics and logs.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrExpiredSignature):
		return "expired"
	case errors.Is(err, ErrRevoked):
		return "revoked"
	case errors.Is(err, ErrAccountDeactivated):
		return "deactivated"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "other"
	}
}
