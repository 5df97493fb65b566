package domain

// MFAKind names the second factor configured for a user.
type MFAKind string

const (
	MFAKindNone  MFAKind = "none"
	MFAKindTOTP  MFAKind = "totp"
	MFAKindEmail MFAKind = "email"
)

// MFAFactor is a tagged value describing a second factor. The resolver
// switches on the kind rather than on raw strings so new factors can't be
// silently ignored.
type MFAFactor struct {
	Kind MFAKind

	// TOTPSecret is set only for MFAKindTOTP.
	TOTPSecret string
}

func NoFactor() MFAFactor    { return MFAFactor{Kind: MFAKindNone} }
func EmailFactor() MFAFactor { return MFAFactor{Kind: MFAKindEmail} }

func TOTPFactor(secret string) MFAFactor {
	return MFAFactor{Kind: MFAKindTOTP, TOTPSecret: secret}
}

// TOTPEnrollment is returned when a user begins TOTP enrollment. The secret
// is shown exactly once.
type TOTPEnrollment struct {
	Secret string // base32 encoded
	URL    string // otpauth:// URL for QR code generation
}
