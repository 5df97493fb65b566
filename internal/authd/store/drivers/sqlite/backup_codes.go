package sqlite

import (
	"context"
	"time"
)

type backupCodesRepo struct {
	q queryer
}

func (r *backupCodesRepo) CreateBackupCode(ctx context.Context, userID, codeHash string) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO backup_codes (user_id, code_hash, used, created_at)
		VALUES (?, ?, 0, ?)
	`, userID, codeHash, time.Now().UTC())
	return mapConstraint(err)
}

// ConsumeBackupCode spends a code with a conditional update so a code that
// two requests race for is only honoured once.
func (r *backupCodesRepo) ConsumeBackupCode(ctx context.Context, userID, codeHash string) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE backup_codes
		SET used = 1
		WHERE user_id = ? AND code_hash = ? AND used = 0
	`, userID, codeHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *backupCodesRepo) DeleteAllBackupCodes(ctx context.Context, userID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM backup_codes WHERE user_id = ?`, userID)
	return err
}

func (r *backupCodesRepo) CountUnusedBackupCodes(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM backup_codes WHERE user_id = ? AND used = 0
	`, userID).Scan(&n)
	return n, err
}
