package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
)

// Token size constants (in bytes before encoding).
const (
	// TokenSize128 provides 128 bits of entropy (22 chars base64url).
	TokenSize128 = 16
	// TokenSize256 provides 256 bits of entropy (43 chars base64url).
	TokenSize256 = 32
)

// GenerateToken creates a cryptographically secure random token of the given
// byte length, returned base64url-encoded without padding.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateNumericCode returns a uniformly random string of n decimal digits.
// Leading zeros are allowed, so the output is always exactly n characters.
func GenerateNumericCode(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("code length must be positive, got %d", n)
	}

	var sb strings.Builder
	sb.Grow(n)
	for range n {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("failed to generate random digit: %w", err)
		}
		sb.WriteByte(byte('0' + d.Int64()))
	}

	return sb.String(), nil
}

// GenerateBackupCode returns a human-formatted single-use recovery code of
// the form "1234-5678": eight random digits grouped in fours.
func GenerateBackupCode() (string, error) {
	digits, err := GenerateNumericCode(8)
	if err != nil {
		return "", err
	}
	return digits[:4] + "-" + digits[4:], nil
}

// FingerprintToken returns a deterministic SHA-256 fingerprint of a token as
// a base64url string. Used to store hashed codes and tokens so the database
// never holds the original value.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
