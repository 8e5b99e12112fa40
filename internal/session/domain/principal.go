package domain

import (
	"errors"
	"fmt"
)

// Role is the privilege level carried by a session.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

// ErrUnknownRole is returned when parsing a role string we don't know.
var ErrUnknownRole = errors.New("unknown role")

// ParseRole parses s into a Role.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleUser, RoleAdmin, RoleSuperadmin:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

func (r Role) String() string { return string(r) }

// IsAdmin reports whether r may use the administrative endpoints.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperadmin
}

// Principal identifies who a session belongs to. It is copied into the
// token claims and the credential record at issuance and never changes for
// the lifetime of that pair; a role change needs a new issuance.
type Principal struct {
	SubjectID string `json:"subject_id"`
	Role      Role   `json:"role"`
}

// Validate checks the principal can be issued a session.
func (p Principal) Validate() error {
	if p.SubjectID == "" {
		return errors.New("principal: empty subject id")
	}
	if _, err := ParseRole(string(p.Role)); err != nil {
		return fmt.Errorf("principal: %w", err)
	}
	return nil
}
