package sqlite

import (
	"context"
	"time"

	"github.com/castellan/authd/internal/authd/domain"
)

type loginAttemptsRepo struct {
	q queryer
}

func (r *loginAttemptsRepo) RecordAttempt(ctx context.Context, a domain.LoginAttempt) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO login_attempts (id, email, ip_address, succeeded, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, a.ID, a.Email, a.IPAddress, a.Succeeded, a.CreatedAt.UTC())
	return err
}

func (r *loginAttemptsRepo) CountFailedAttemptsSince(ctx context.Context, email string, since time.Time) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM login_attempts
		WHERE email = ? AND succeeded = 0 AND created_at >= ?
	`, email, since.UTC()).Scan(&n)
	return n, err
}

func (r *loginAttemptsRepo) OldestFailedAttemptSince(ctx context.Context, email string, since time.Time) (time.Time, error) {
	var at time.Time
	err := r.q.QueryRowContext(ctx, `
		SELECT created_at
		FROM login_attempts
		WHERE email = ? AND succeeded = 0 AND created_at >= ?
		ORDER BY created_at ASC
		LIMIT 1
	`, email, since.UTC()).Scan(&at)
	if err != nil {
		return time.Time{}, mapNotFound(err)
	}
	return at, nil
}

func (r *loginAttemptsRepo) DeleteAttemptsBefore(ctx context.Context, before time.Time) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM login_attempts WHERE created_at < ?`, before.UTC())
	return err
}
