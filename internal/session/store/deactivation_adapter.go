package store

import (
	"context"
	"errors"
	"time"
)

// DeactivationAdapter answers "is this subject deactivated" from the
// accounts table and lets admins flip the flag. Subjects without an account
// row are not deactivated; sessions can be issued for principals
// authenticated elsewhere.
type DeactivationAdapter struct {
	store Store
	now   func() time.Time
}

// NewDeactivationAdapter creates an adapter over s.
func NewDeactivationAdapter(s Store, now func() time.Time) *DeactivationAdapter {
	if now == nil {
		now = time.Now
	}
	return &DeactivationAdapter{store: s, now: now}
}

// IsDeactivated reports whether the subject's account is deactivated.
func (a *DeactivationAdapter) IsDeactivated(ctx context.Context, subjectID string) (bool, error) {
	acc, err := a.store.Accounts().GetAccountByID(ctx, subjectID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return acc.Deactivated(), nil
}

// DeactivatedSince returns when the account was deactivated, or ok=false
// if it is active or has no account row.
func (a *DeactivationAdapter) DeactivatedSince(ctx context.Context, subjectID string) (time.Time, bool, error) {
	acc, err := a.store.Accounts().GetAccountByID(ctx, subjectID)
	if errors.Is(err, ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	if acc.DeactivatedAt == nil {
		return time.Time{}, false, nil
	}
	return acc.DeactivatedAt.UTC(), true, nil
}

// SetDeactivated sets or clears the flag.
func (a *DeactivationAdapter) SetDeactivated(ctx context.Context, subjectID string, deactivated bool) error {
	var at *time.Time
	if deactivated {
		now := a.now().UTC()
		at = &now
	}
	return a.store.Accounts().SetDeactivated(ctx, subjectID, at)
}
