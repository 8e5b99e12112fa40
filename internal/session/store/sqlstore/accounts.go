package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/tokenkeeper/internal/session/domain"
	"github.com/aussiebroadwan/tokenkeeper/internal/session/store"
	"github.com/jmoiron/sqlx"
)

const accountColumns = `subject_id, login, password_hash, role, otp_secret, deactivated_at, created_at, updated_at`

type accountRow struct {
	SubjectID     string         `db:"subject_id"`
	Login         string         `db:"login"`
	PasswordHash  string         `db:"password_hash"`
	Role          string         `db:"role"`
	OTPSecret     sql.NullString `db:"otp_secret"`
	DeactivatedAt sql.NullInt64  `db:"deactivated_at"`
	CreatedAt     int64          `db:"created_at"`
	UpdatedAt     int64          `db:"updated_at"`
}

func (r accountRow) toDomain() domain.Account {
	return domain.Account{
		SubjectID:     r.SubjectID,
		Login:         r.Login,
		PasswordHash:  r.PasswordHash,
		Role:          domain.Role(r.Role),
		OTPSecret:     mapNullStringPtr(r.OTPSecret),
		DeactivatedAt: mapNullMillis(r.DeactivatedAt),
		CreatedAt:     fromMillis(r.CreatedAt),
		UpdatedAt:     fromMillis(r.UpdatedAt),
	}
}

type accountsRepo struct {
	q       sqlx.ExtContext
	dialect Dialect
}

func (r *accountsRepo) CreateAccount(ctx context.Context, a domain.Account) error {
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	updated := a.UpdatedAt
	if updated.IsZero() {
		updated = created
	}

	_, err := r.q.ExecContext(ctx, r.q.Rebind(
		`INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		a.SubjectID,
		a.Login,
		a.PasswordHash,
		string(a.Role),
		mapOptionalString(a.OTPSecret),
		mapOptionalMillis(a.DeactivatedAt),
		toMillis(created),
		toMillis(updated),
	)
	return r.dialect.mapWriteErr(err)
}

func (r *accountsRepo) GetAccountByLogin(ctx context.Context, login string) (domain.Account, error) {
	var row accountRow
	err := sqlx.GetContext(ctx, r.q, &row, r.q.Rebind(
		`SELECT `+accountColumns+` FROM accounts WHERE login = ?`), login)
	if err != nil {
		return domain.Account{}, mapNotFound(err)
	}
	return row.toDomain(), nil
}

func (r *accountsRepo) GetAccountByID(ctx context.Context, subjectID string) (domain.Account, error) {
	var row accountRow
	err := sqlx.GetContext(ctx, r.q, &row, r.q.Rebind(
		`SELECT `+accountColumns+` FROM accounts WHERE subject_id = ?`), subjectID)
	if err != nil {
		return domain.Account{}, mapNotFound(err)
	}
	return row.toDomain(), nil
}

func (r *accountsRepo) SetDeactivated(ctx context.Context, subjectID string, at *time.Time) error {
	res, err := r.q.ExecContext(ctx, r.q.Rebind(
		`UPDATE accounts SET deactivated_at = ?, updated_at = ? WHERE subject_id = ?`),
		mapOptionalMillis(at), toMillis(time.Now()), subjectID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *accountsRepo) IsEmpty(ctx context.Context) (bool, error) {
	var n int
	if err := sqlx.GetContext(ctx, r.q, &n, `SELECT COUNT(*) FROM accounts`); err != nil {
		return false, err
	}
	return n == 0, nil
}
