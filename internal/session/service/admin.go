package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/tokenkeeper/internal/session/domain"
	"github.com/aussiebroadwan/tokenkeeper/internal/session/store"
	"github.com/aussiebroadwan/tokenkeeper/pkg/slogx"
)

// DeactivationFlags is the admin side of the deactivation flag.
type DeactivationFlags interface {
	SetDeactivated(ctx context.Context, subjectID string, deactivated bool) error

	// DeactivatedSince returns when the flag was set. ok is false when the
	// subject is active. A flag with no known time returns the zero time.
	DeactivatedSince(ctx context.Context, subjectID string) (at time.Time, ok bool, err error)
}

// AdminService is the administrative side of session management.
type AdminService struct {
	Store        store.Store
	Sessions     *SessionService
	Deactivation DeactivationFlags
	Sweeper      *Sweeper
}

// Deactivate flags the subject and revokes its sessions, so its current
// access token stops validating immediately and no new pair can be issued.
func (s *AdminService) Deactivate(ctx context.Context, subjectID string) (int64, error) {
	if err := s.setDeactivated(ctx, subjectID, true); err != nil {
		return 0, err
	}

	n, err := s.Sessions.RevokeSubject(ctx, subjectID)
	if err != nil {
		return 0, err
	}

	slogx.FromContext(ctx).Info("subject deactivated", slog.String("subject_id", subjectID), slog.Int64("revoked", n))
	return n, nil
}

// Reactivate clears the flag. Sessions revoked on deactivation stay revoked.
func (s *AdminService) Reactivate(ctx context.Context, subjectID string) error {
	if err := s.setDeactivated(ctx, subjectID, false); err != nil {
		return err
	}
	slogx.FromContext(ctx).Info("subject reactivated", slog.String("subject_id", subjectID))
	return nil
}

func (s *AdminService) setDeactivated(ctx context.Context, subjectID string, deactivated bool) error {
	if subjectID == "" {
		return ErrSubjectNotFound
	}

	// The flag may live outside the store, so existence is checked here.
	if _, err := s.Store.Accounts().GetAccountByID(ctx, subjectID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrSubjectNotFound
		}
		return unavailable(err)
	}

	err := s.Deactivation.SetDeactivated(ctx, subjectID, deactivated)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrSubjectNotFound
	case err != nil:
		return unavailable(err)
	}
	return nil
}

// ListSessions returns every stored record for the subject, newest first.
func (s *AdminService) ListSessions(ctx context.Context, subjectID string) ([]domain.Credential, error) {
	recs, err := s.Store.Credentials().ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, unavailable(err)
	}
	return recs, nil
}

// DeactivatedSince reports whether the subject is deactivated and since when.
func (s *AdminService) DeactivatedSince(ctx context.Context, subjectID string) (time.Time, bool, error) {
	at, ok, err := s.Deactivation.DeactivatedSince(ctx, subjectID)
	if err != nil {
		return time.Time{}, false, unavailable(err)
	}
	return at, ok, nil
}

// Sweep runs one sweep outside the schedule.
func (s *AdminService) Sweep(ctx context.Context) (int64, error) {
	n, err := s.Sweeper.RunSweep(ctx)
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}
