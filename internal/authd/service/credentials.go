package service

import (
	"context"
	"errors"
	"strings"

	"github.com/castellan/authd/internal/authd/domain"
	"github.com/castellan/authd/internal/authd/store"
	"github.com/castellan/authd/pkg/cryptox"
)

// NormalizeEmail lower-cases and trims an email so lookups and rate-limit
// windows key on one canonical form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CredentialVerifier checks an email/password pair against the user store,
// enforcing the failed-login rate limit. Every decided attempt is recorded;
// attempts made while blocked are refused before the password is even
// checked and are not recorded, so a block never extends itself.
type CredentialVerifier struct {
	Store   store.Store
	Limiter *RateLimiter
}

// Verify returns the user on success. All failure causes (unknown email,
// wrong password, disabled account) collapse into ErrInvalidCredentials.
func (v *CredentialVerifier) Verify(ctx context.Context, email, password string, meta domain.ClientMeta) (domain.User, error) {
	email = NormalizeEmail(email)

	status, err := v.Limiter.Check(ctx, email)
	if err != nil {
		return domain.User{}, err
	}
	if status.Blocked {
		return domain.User{}, &RateLimitedError{ResetAt: status.ResetAt}
	}

	user, err := v.Store.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, v.fail(ctx, email, meta)
		}
		return domain.User{}, err
	}

	if !user.Active {
		return domain.User{}, v.fail(ctx, email, meta)
	}

	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrPasswordMismatch) {
			return domain.User{}, v.fail(ctx, email, meta)
		}
		return domain.User{}, err
	}

	if err := v.Limiter.Record(ctx, email, true, meta); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (v *CredentialVerifier) fail(ctx context.Context, email string, meta domain.ClientMeta) error {
	if err := v.Limiter.Record(ctx, email, false, meta); err != nil {
		return err
	}
	return ErrInvalidCredentials
}
