package domain

import "time"

// OtpKind distinguishes the flows an emailed code can belong to.
type OtpKind string

const (
	// OtpKindLogin codes complete an email MFA challenge.
	OtpKindLogin OtpKind = "login"
	// OtpKindRegister codes verify a pending registration; account
	// creation is deferred until the code is consumed.
	OtpKindRegister OtpKind = "register"
)

// OtpCode is a short-lived numeric code. A code is consumable exactly once
// and only strictly before ExpiresAt; consumption must be atomic so a code
// can never validate twice under concurrent submits.
type OtpCode struct {
	ID        string
	Subject   string // user ID, or pending email for registration
	Code      string // 6 ASCII digits, leading zeros allowed
	Kind      OtpKind
	Payload   string // flow-specific data, e.g. the pending password hash
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// BackupCode is a pre-generated single-use recovery credential, stored only
// as a fingerprint. Generated in a batch of 8 at MFA enrollment; the set
// does not auto-replenish.
type BackupCode struct {
	UserID    string
	CodeHash  string
	Used      bool
	CreatedAt time.Time
}
