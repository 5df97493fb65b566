package domain

import "time"

// Audit actions emitted by the authentication flows.
const (
	AuditLoginSucceeded   = "login_succeeded"
	AuditLoginFailed      = "login_failed"
	AuditLoginRateLimited = "login_rate_limited"
	AuditMFAChallenged    = "mfa_challenged"
	AuditMFASucceeded     = "mfa_succeeded"
	AuditMFAFailed        = "mfa_failed"
	AuditTokenRefreshed   = "token_refreshed"
	AuditLogout           = "logout"
	AuditRegistered       = "user_registered"
	AuditRegistrationOTP  = "registration_otp_sent"
)

// AuditEvent is a write-only, best-effort record. Failures to persist one
// must never abort the operation that produced it.
type AuditEvent struct {
	ID          string
	ActorUserID string // empty when no user is known yet
	Action      string
	IPAddress   string
	UserAgent   string
	Details     string
	CreatedAt   time.Time
}
