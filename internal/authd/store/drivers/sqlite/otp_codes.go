package sqlite

import (
	"context"
	"time"

	"github.com/castellan/authd/internal/authd/domain"
)

type otpCodesRepo struct {
	q queryer
}

func (r *otpCodesRepo) CreateOtpCode(ctx context.Context, c domain.OtpCode) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO otp_codes (id, subject, code, kind, payload, expires_at, used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID,
		c.Subject,
		c.Code,
		string(c.Kind),
		c.Payload,
		c.ExpiresAt.UTC(),
		c.Used,
		c.CreatedAt.UTC(),
	)
	return err
}

// ConsumeOtpCode flips used on the newest matching live code and returns the
// row, in a single statement so two concurrent submits of the same code can
// never both succeed. Expiry is strict: a code submitted at exactly
// expires_at is already dead.
func (r *otpCodesRepo) ConsumeOtpCode(ctx context.Context, subject, code string, kind domain.OtpKind, now time.Time) (domain.OtpCode, error) {
	row := r.q.QueryRowContext(ctx, `
		UPDATE otp_codes
		SET used = 1
		WHERE id = (
			SELECT id FROM otp_codes
			WHERE subject = ? AND code = ? AND kind = ? AND used = 0 AND expires_at > ?
			ORDER BY created_at DESC
			LIMIT 1
		)
		RETURNING id, subject, code, kind, payload, expires_at, used, created_at
	`, subject, code, string(kind), now.UTC())

	var c domain.OtpCode
	err := row.Scan(
		&c.ID,
		&c.Subject,
		&c.Code,
		&c.Kind,
		&c.Payload,
		&c.ExpiresAt,
		&c.Used,
		&c.CreatedAt,
	)
	if err != nil {
		return domain.OtpCode{}, mapNotFound(err)
	}
	return c, nil
}

func (r *otpCodesRepo) DeleteExpiredOtpCodes(ctx context.Context, before time.Time) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM otp_codes WHERE expires_at < ? OR used = 1`, before.UTC())
	return err
}
