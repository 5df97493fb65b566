package sqlite

import (
	"context"
	"database/sql"

	"github.com/castellan/authd/internal/authd/domain"
)

type usersRepo struct {
	q queryer
}

const userColumns = `id, email, password_hash, role, mfa_kind, totp_secret, active, created_at, updated_at`

func scanUser(row *sql.Row) (domain.User, error) {
	var (
		u      domain.User
		secret sql.NullString
	)
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.Role,
		&u.MFAKind,
		&secret,
		&u.Active,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.TOTPSecret = mapNullString(secret)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = ?
	`, id)
	return scanUser(row)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = ?
	`, email)
	return scanUser(row)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, role, mfa_kind, totp_secret, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		u.ID,
		u.Email,
		u.PasswordHash,
		string(u.Role),
		string(u.MFAKind),
		mapOptionalString(u.TOTPSecret),
		u.Active,
		u.CreatedAt.UTC(),
		u.UpdatedAt.UTC(),
	)
	return mapConstraint(err)
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE users
		SET password_hash = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, newHash, userID)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (r *usersRepo) SetMFA(ctx context.Context, userID string, kind domain.MFAKind, secret *string) error {
	if kind != domain.MFAKindTOTP {
		secret = nil
	}
	res, err := r.q.ExecContext(ctx, `
		UPDATE users
		SET mfa_kind = ?, totp_secret = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, string(kind), mapOptionalString(secret), userID)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (r *usersRepo) SetActive(ctx context.Context, userID string, active bool) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE users
		SET active = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, active, userID)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return mapNotFound(sql.ErrNoRows)
	}
	return nil
}
