package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/castellan/authd/internal/authd/domain"
)

type sessionsRepo struct {
	q queryer
}

const sessionColumns = `id, user_id, access_token, refresh_token, expires_at, ip_address, user_agent, created_at`

func scanSession(row *sql.Row) (domain.Session, error) {
	var (
		s       domain.Session
		refresh sql.NullString
	)
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.AccessToken,
		&refresh,
		&s.ExpiresAt,
		&s.IPAddress,
		&s.UserAgent,
		&s.CreatedAt,
	)
	if err != nil {
		return domain.Session{}, mapNotFound(err)
	}
	s.RefreshToken = refresh.String
	return s, nil
}

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.Session) error {
	refresh := sql.NullString{String: s.RefreshToken, Valid: s.RefreshToken != ""}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, access_token, refresh_token, expires_at, ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.ID,
		s.UserID,
		s.AccessToken,
		refresh,
		s.ExpiresAt.UTC(),
		s.IPAddress,
		s.UserAgent,
		s.CreatedAt.UTC(),
	)
	return err
}

func (r *sessionsRepo) GetSessionByID(ctx context.Context, id string) (domain.Session, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE id = ?
	`, id)
	return scanSession(row)
}

func (r *sessionsRepo) GetSessionByRefreshToken(ctx context.Context, refreshToken string) (domain.Session, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE refresh_token = ?
	`, refreshToken)
	return scanSession(row)
}

func (r *sessionsRepo) DeleteSession(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return err
}

func (r *sessionsRepo) DeleteUserSessions(ctx context.Context, userID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
	return err
}

func (r *sessionsRepo) DeleteExpiredSessions(ctx context.Context, before time.Time) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, before.UTC())
	return err
}
