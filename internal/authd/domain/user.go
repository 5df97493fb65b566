package domain

import "time"

// Role is the RBAC role assigned to a user.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleStandard   Role = "standard"
	RoleRestricted Role = "restricted"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleStandard, RoleRestricted:
		return true
	}
	return false
}

type User struct {
	ID           string
	Email        string // unique, stored lower-cased
	PasswordHash string // argon2id PHC encoded
	Role         Role
	MFAKind      MFAKind // none, totp or email
	TOTPSecret   *string // base32 secret, present only when MFAKind is totp
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MFAEnabled reports whether a second factor is configured.
func (u User) MFAEnabled() bool { return u.MFAKind != MFAKindNone }

// Factor returns the user's configured second factor as a tagged value.
func (u User) Factor() MFAFactor {
	switch u.MFAKind {
	case MFAKindTOTP:
		secret := ""
		if u.TOTPSecret != nil {
			secret = *u.TOTPSecret
		}
		return TOTPFactor(secret)
	case MFAKindEmail:
		return EmailFactor()
	default:
		return NoFactor()
	}
}
