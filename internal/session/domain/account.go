package domain

import "time"

// Account is the login record the authenticator checks credentials
// against. Accounts are only used to produce a Principal and to answer
// "is this subject deactivated".
type Account struct {
	SubjectID     string
	Login         string
	PasswordHash  string // argon2id PHC string
	Role          Role
	OTPSecret     *string    // base32 TOTP secret, nil when 2FA is off
	DeactivatedAt *time.Time // non-nil means the subject may not get new sessions
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Principal returns the principal for this account.
func (a Account) Principal() Principal {
	return Principal{SubjectID: a.SubjectID, Role: a.Role}
}

// Deactivated reports whether the account is deactivated.
func (a Account) Deactivated() bool { return a.DeactivatedAt != nil }
