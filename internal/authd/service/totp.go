package service

import (
	"github.com/castellan/authd/internal/authd/domain"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTPVerifier enrolls and checks RFC 6238 authenticator codes. Codes use
// the standard 30 second step; verification accepts one step of skew either
// side to absorb clock drift.
type TOTPVerifier struct {
	Issuer string
	Clock  Clock
}

func (v *TOTPVerifier) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// Enroll creates a new secret for the account. The secret and otpauth URL
// are surfaced exactly once; only the secret is persisted, and only after
// the user proves possession via ActivateTOTP.
func (v *TOTPVerifier) Enroll(accountName string) (domain.TOTPEnrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      v.Issuer,
		AccountName: accountName,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return domain.TOTPEnrollment{}, err
	}

	return domain.TOTPEnrollment{
		Secret: key.Secret(),
		URL:    key.URL(),
	}, nil
}

// Verify reports whether the code is valid for the secret at the current
// time.
func (v *TOTPVerifier) Verify(code, secret string) (bool, error) {
	ok, err := totp.ValidateCustom(code, secret, clockOrSystem(v.Clock).Now(), v.opts())
	if err != nil {
		return false, err
	}
	return ok, nil
}
