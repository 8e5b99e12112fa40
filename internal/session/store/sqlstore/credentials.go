package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/tokenkeeper/internal/session/domain"
	"github.com/jmoiron/sqlx"
)

const credentialColumns = `id, subject_id, role, access_token_hash, refresh_token_hash, status,
	issued_at, access_expires_at, refresh_expires_at, last_used_at, revoked_at`

type credentialRow struct {
	ID               string        `db:"id"`
	SubjectID        string        `db:"subject_id"`
	Role             string        `db:"role"`
	AccessTokenHash  string        `db:"access_token_hash"`
	RefreshTokenHash string        `db:"refresh_token_hash"`
	Status           string        `db:"status"`
	IssuedAt         int64         `db:"issued_at"`
	AccessExpiresAt  int64         `db:"access_expires_at"`
	RefreshExpiresAt int64         `db:"refresh_expires_at"`
	LastUsedAt       sql.NullInt64 `db:"last_used_at"`
	RevokedAt        sql.NullInt64 `db:"revoked_at"`
}

func (r credentialRow) toDomain() domain.Credential {
	return domain.Credential{
		ID:               r.ID,
		SubjectID:        r.SubjectID,
		Role:             domain.Role(r.Role),
		AccessTokenHash:  r.AccessTokenHash,
		RefreshTokenHash: r.RefreshTokenHash,
		Status:           domain.CredentialStatus(r.Status),
		IssuedAt:         fromMillis(r.IssuedAt),
		AccessExpiresAt:  fromMillis(r.AccessExpiresAt),
		RefreshExpiresAt: fromMillis(r.RefreshExpiresAt),
		LastUsedAt:       mapNullMillis(r.LastUsedAt),
		RevokedAt:        mapNullMillis(r.RevokedAt),
	}
}

type credentialsRepo struct {
	q       sqlx.ExtContext
	dialect Dialect
}

func (r *credentialsRepo) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.q.ExecContext(ctx, r.q.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *credentialsRepo) RevokeAllActive(ctx context.Context, subjectID string, now time.Time) (int64, error) {
	return r.exec(ctx,
		`UPDATE credentials SET status = 'revoked', revoked_at = ?
		 WHERE subject_id = ? AND status = 'active'`,
		toMillis(now), subjectID,
	)
}

func (r *credentialsRepo) Insert(ctx context.Context, c domain.Credential) error {
	_, err := r.q.ExecContext(ctx, r.q.Rebind(
		`INSERT INTO credentials (`+credentialColumns+`)
		 VALUES (?, ?, ?, ?, ?, 'active', ?, ?, ?, ?, NULL)`),
		c.ID,
		c.SubjectID,
		string(c.Role),
		c.AccessTokenHash,
		c.RefreshTokenHash,
		toMillis(c.IssuedAt),
		toMillis(c.AccessExpiresAt),
		toMillis(c.RefreshExpiresAt),
		mapOptionalMillis(c.LastUsedAt),
	)
	return r.dialect.mapWriteErr(err)
}

func (r *credentialsRepo) FindActiveByAccessHash(ctx context.Context, hash string, now time.Time) (domain.Credential, error) {
	var row credentialRow
	err := sqlx.GetContext(ctx, r.q, &row, r.q.Rebind(
		`SELECT `+credentialColumns+` FROM credentials
		 WHERE access_token_hash = ? AND status = 'active' AND access_expires_at > ?`),
		hash, toMillis(now),
	)
	if err != nil {
		return domain.Credential{}, mapNotFound(err)
	}
	return row.toDomain(), nil
}

func (r *credentialsRepo) FindActiveByRefreshHash(ctx context.Context, hash string, now time.Time) (domain.Credential, error) {
	var row credentialRow
	err := sqlx.GetContext(ctx, r.q, &row, r.q.Rebind(
		`SELECT `+credentialColumns+` FROM credentials
		 WHERE refresh_token_hash = ? AND status = 'active' AND refresh_expires_at > ?`),
		hash, toMillis(now),
	)
	if err != nil {
		return domain.Credential{}, mapNotFound(err)
	}
	return row.toDomain(), nil
}

func (r *credentialsRepo) Touch(ctx context.Context, id string, now time.Time) error {
	ms := toMillis(now)
	_, err := r.exec(ctx,
		`UPDATE credentials SET last_used_at = ?
		 WHERE id = ? AND status = 'active' AND (last_used_at IS NULL OR last_used_at < ?)`,
		ms, id, ms,
	)
	return err
}

func (r *credentialsRepo) RevokeIfActive(ctx context.Context, id string, now time.Time) (bool, error) {
	n, err := r.exec(ctx,
		`UPDATE credentials SET status = 'revoked', revoked_at = ?
		 WHERE id = ? AND status = 'active'`,
		toMillis(now), id,
	)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *credentialsRepo) RevokeByHash(ctx context.Context, hash string, now time.Time) (int64, error) {
	return r.exec(ctx,
		`UPDATE credentials SET status = 'revoked', revoked_at = ?
		 WHERE (access_token_hash = ? OR refresh_token_hash = ?) AND status = 'active'`,
		toMillis(now), hash, hash,
	)
}

func (r *credentialsRepo) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	ms := toMillis(now)
	return r.exec(ctx,
		`UPDATE credentials SET status = 'revoked', revoked_at = ?
		 WHERE status = 'active' AND (access_expires_at < ? OR refresh_expires_at < ?)`,
		ms, ms, ms,
	)
}

// PurgeStale measures retention from revocation. revoked_at is always set
// by the revoking UPDATEs; the fallbacks only cover rows written without it.
func (r *credentialsRepo) PurgeStale(ctx context.Context, threshold time.Time) (int64, error) {
	return r.exec(ctx,
		`DELETE FROM credentials
		 WHERE status = 'revoked' AND COALESCE(revoked_at, last_used_at, issued_at) < ?`,
		toMillis(threshold),
	)
}

func (r *credentialsRepo) CountActiveBySubject(ctx context.Context, subjectID string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.q, &n, r.q.Rebind(
		`SELECT COUNT(*) FROM credentials WHERE subject_id = ? AND status = 'active'`),
		subjectID,
	)
	return n, err
}

func (r *credentialsRepo) ListBySubject(ctx context.Context, subjectID string) ([]domain.Credential, error) {
	var rows []credentialRow
	err := sqlx.SelectContext(ctx, r.q, &rows, r.q.Rebind(
		`SELECT `+credentialColumns+` FROM credentials
		 WHERE subject_id = ? ORDER BY issued_at DESC, id DESC`),
		subjectID,
	)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Credential, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}
