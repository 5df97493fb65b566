package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/castellan/authd/internal/authd/store"
)

type storeTx struct {
	tx *sql.Tx
}

func (t *storeTx) Users() store.Users                 { return &usersRepo{q: t.tx} }
func (t *storeTx) Sessions() store.Sessions           { return &sessionsRepo{q: t.tx} }
func (t *storeTx) OtpCodes() store.OtpCodes           { return &otpCodesRepo{q: t.tx} }
func (t *storeTx) BackupCodes() store.BackupCodes     { return &backupCodesRepo{q: t.tx} }
func (t *storeTx) LoginAttempts() store.LoginAttempts { return &loginAttemptsRepo{q: t.tx} }
func (t *storeTx) AuditLog() store.AuditLog           { return &auditLogRepo{q: t.tx} }

func (t *storeTx) Commit() error   { return t.tx.Commit() }
func (t *storeTx) Rollback() error { return t.tx.Rollback() }

func (t *storeTx) ApplyMigrations() error {
	return errors.New("sqlite: migrations cannot run inside a transaction")
}

func (t *storeTx) Tx(ctx context.Context) (store.Tx, error) {
	return nil, errors.New("sqlite: nested transactions are not supported")
}

func (t *storeTx) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return errors.New("sqlite: nested transactions are not supported")
}

func (t *storeTx) Close() error { return nil }

func (t *storeTx) Ping(ctx context.Context) error { return nil }
