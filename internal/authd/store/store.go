package store

import (
	"context"
	"errors"
	"time"

	"github.com/castellan/authd/internal/authd/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres) implement this. Sub-repositories keep the concerns tidy and
// make it obvious which operations participate in a transaction.
type Store interface {
	Users() Users
	Sessions() Sessions
	OtpCodes() OtpCodes
	BackupCodes() BackupCodes
	LoginAttempts() LoginAttempts
	AuditLog() AuditLog

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction, rolling back when fn
	// returns an error and committing otherwise. Prefer this over Tx.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds
// Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail looks a user up by normalized email.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by the app via ULID).
	// Returns ErrAlreadyExists when the email is taken.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdatePasswordHash sets the password_hash and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error

	// SetMFA configures the user's second factor. secret is ignored
	// unless kind is totp.
	SetMFA(ctx context.Context, userID string, kind domain.MFAKind, secret *string) error

	// SetActive flips the active flag.
	SetActive(ctx context.Context, userID string, active bool) error
}

type Sessions interface {
	// CreateSession stores a freshly issued token pair.
	CreateSession(ctx context.Context, s domain.Session) error

	// GetSessionByID returns a session row by id.
	GetSessionByID(ctx context.Context, id string) (domain.Session, error)

	// GetSessionByRefreshToken finds the live session holding the given
	// refresh token.
	GetSessionByRefreshToken(ctx context.Context, refreshToken string) (domain.Session, error)

	// DeleteSession removes a session row. Deleting a missing session is
	// not an error; logout must be idempotent.
	DeleteSession(ctx context.Context, id string) error

	// DeleteUserSessions removes all sessions for a user.
	DeleteUserSessions(ctx context.Context, userID string) error

	// DeleteExpiredSessions removes sessions whose refresh window has
	// passed (housekeeping).
	DeleteExpiredSessions(ctx context.Context, before time.Time) error
}

type OtpCodes interface {
	// CreateOtpCode persists a freshly issued code. Issuing a new code
	// does not invalidate earlier unexpired codes for the same subject.
	CreateOtpCode(ctx context.Context, c domain.OtpCode) error

	// ConsumeOtpCode atomically marks a matching unused, unexpired code
	// as used and returns it. Acceptance requires now to be strictly
	// before expires_at. Returns ErrNotFound when nothing consumable
	// matches; the row is untouched in that case.
	ConsumeOtpCode(ctx context.Context, subject, code string, kind domain.OtpKind, now time.Time) (domain.OtpCode, error)

	// DeleteExpiredOtpCodes is housekeeping.
	DeleteExpiredOtpCodes(ctx context.Context, before time.Time) error
}

type BackupCodes interface {
	// CreateBackupCode stores a backup code fingerprint for a user.
	CreateBackupCode(ctx context.Context, userID, codeHash string) error

	// ConsumeBackupCode atomically marks an unused code as used. Returns
	// false when the code is unknown or already spent.
	ConsumeBackupCode(ctx context.Context, userID, codeHash string) (bool, error)

	// DeleteAllBackupCodes removes every backup code for a user.
	DeleteAllBackupCodes(ctx context.Context, userID string) error

	// CountUnusedBackupCodes returns how many codes remain.
	CountUnusedBackupCodes(ctx context.Context, userID string) (int, error)
}

type LoginAttempts interface {
	// RecordAttempt appends one attempt row. Rows are never mutated.
	RecordAttempt(ctx context.Context, a domain.LoginAttempt) error

	// CountFailedAttemptsSince counts failures for the email at or after
	// since.
	CountFailedAttemptsSince(ctx context.Context, email string, since time.Time) (int, error)

	// OldestFailedAttemptSince returns the timestamp of the oldest
	// qualifying failure, or ErrNotFound when there is none. The
	// rate-limit reset time derives from this, not from "now".
	OldestFailedAttemptSince(ctx context.Context, email string, since time.Time) (time.Time, error)

	// DeleteAttemptsBefore drops rows that aged out of every window
	// (housekeeping).
	DeleteAttemptsBefore(ctx context.Context, before time.Time) error
}

type AuditLog interface {
	// CreateAuditEvent appends one audit row.
	CreateAuditEvent(ctx context.Context, ev domain.AuditEvent) error
}
