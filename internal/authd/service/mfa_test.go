package service

import (
	"context"
	"regexp"
	"testing"

	"github.com/castellan/authd/internal/authd/domain"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func TestEmailMFAFlow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	u := e.createUser(t, "alice@example.com", "pw-pw-pw-pw", domain.MFAKindEmail, nil)

	res, err := e.auth.Login(ctx, "alice@example.com", "pw-pw-pw-pw", testMeta)
	require.NoError(t, err)
	require.True(t, res.MFARequired)
	require.Equal(t, domain.MFAKindEmail, res.MFAKind)
	require.Nil(t, res.Session)

	to, code := e.sender.last()
	require.Equal(t, "alice@example.com", to)
	require.Len(t, code, OTPCodeLength)

	// A wrong code leaves the challenge open.
	_, _, err = e.auth.VerifyMFA(ctx, res.ChallengeID, "000000", testMeta)
	if err == nil {
		t.Skip("generated code collided with the guess")
	}
	require.ErrorIs(t, err, ErrInvalidMFACode)

	sc, usedBackup, err := e.auth.VerifyMFA(ctx, res.ChallengeID, code, testMeta)
	require.NoError(t, err)
	require.False(t, usedBackup)
	require.Equal(t, u.ID, sc.UserID())

	// The challenge is gone once completed.
	_, _, err = e.auth.VerifyMFA(ctx, res.ChallengeID, code, testMeta)
	require.ErrorIs(t, err, ErrUnknownChallenge)
}

func TestEmailMFACodeExpires(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.createUser(t, "alice@example.com", "pw-pw-pw-pw", domain.MFAKindEmail, nil)

	res, err := e.auth.Login(ctx, "alice@example.com", "pw-pw-pw-pw", testMeta)
	require.NoError(t, err)
	_, code := e.sender.last()

	// The emailed code dies before the challenge itself does.
	e.clock.Advance(DefaultOTPTTL)

	_, _, err = e.auth.VerifyMFA(ctx, res.ChallengeID, code, testMeta)
	require.ErrorIs(t, err, ErrInvalidMFACode)
}

func TestChallengeExpires(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.createUser(t, "alice@example.com", "pw-pw-pw-pw", domain.MFAKindEmail, nil)

	res, err := e.auth.Login(ctx, "alice@example.com", "pw-pw-pw-pw", testMeta)
	require.NoError(t, err)
	_, code := e.sender.last()

	e.clock.Advance(DefaultChallengeTTL)

	_, _, err = e.auth.VerifyMFA(ctx, res.ChallengeID, code, testMeta)
	require.ErrorIs(t, err, ErrUnknownChallenge)
}

func TestTOTPEnrollAndLogin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	u := e.createUser(t, "alice@example.com", "pw-pw-pw-pw", domain.MFAKindNone, nil)

	enr, err := e.mfa.EnrollTOTP(ctx, u)
	require.NoError(t, err)
	require.NotEmpty(t, enr.Secret)
	require.Contains(t, enr.URL, "otpauth://totp/")

	// Activation demands a valid current code.
	_, err = e.mfa.ActivateTOTP(ctx, u.ID, enr.Secret, "000000")
	require.ErrorIs(t, err, ErrInvalidMFACode)

	code, err := totp.GenerateCode(enr.Secret, e.clock.Now())
	require.NoError(t, err)

	backups, err := e.mfa.ActivateTOTP(ctx, u.ID, enr.Secret, code)
	require.NoError(t, err)
	require.Len(t, backups, BackupCodeCount)
	format := regexp.MustCompile(`^\d{4}-\d{4}$`)
	for _, b := range backups {
		require.Regexp(t, format, b)
	}

	got, err := e.store.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, domain.MFAKindTOTP, got.MFAKind)

	res, err := e.auth.Login(ctx, "alice@example.com", "pw-pw-pw-pw", testMeta)
	require.NoError(t, err)
	require.True(t, res.MFARequired)
	require.Equal(t, domain.MFAKindTOTP, res.MFAKind)

	code, err = totp.GenerateCode(enr.Secret, e.clock.Now())
	require.NoError(t, err)

	sc, usedBackup, err := e.auth.VerifyMFA(ctx, res.ChallengeID, code, testMeta)
	require.NoError(t, err)
	require.False(t, usedBackup)
	require.Equal(t, u.ID, sc.UserID())
}

func TestBackupCodeIsSingleUse(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	u := e.createUser(t, "alice@example.com", "pw-pw-pw-pw", domain.MFAKindNone, nil)

	enr, err := e.mfa.EnrollTOTP(ctx, u)
	require.NoError(t, err)
	code, err := totp.GenerateCode(enr.Secret, e.clock.Now())
	require.NoError(t, err)
	backups, err := e.mfa.ActivateTOTP(ctx, u.ID, enr.Secret, code)
	require.NoError(t, err)

	login := func() string {
		res, err := e.auth.Login(ctx, "alice@example.com", "pw-pw-pw-pw", testMeta)
		require.NoError(t, err)
		require.True(t, res.MFARequired)
		return res.ChallengeID
	}

	sc, usedBackup, err := e.auth.VerifyMFA(ctx, login(), backups[0], testMeta)
	require.NoError(t, err)
	require.True(t, usedBackup)
	require.Equal(t, u.ID, sc.UserID())

	n, err := e.store.BackupCodes().CountUnusedBackupCodes(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, BackupCodeCount-1, n)

	// The same backup code again is refused.
	_, _, err = e.auth.VerifyMFA(ctx, login(), backups[0], testMeta)
	require.ErrorIs(t, err, ErrInvalidMFACode)

	// Separators and surrounding space are tolerated.
	_, usedBackup, err = e.auth.VerifyMFA(ctx, login(), " "+backups[1][:4]+" "+backups[1][5:]+" ", testMeta)
	require.NoError(t, err)
	require.True(t, usedBackup)
}

func TestDisableMFADropsBackupCodes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	u := e.createUser(t, "alice@example.com", "pw-pw-pw-pw", domain.MFAKindNone, nil)

	enr, err := e.mfa.EnrollTOTP(ctx, u)
	require.NoError(t, err)
	code, err := totp.GenerateCode(enr.Secret, e.clock.Now())
	require.NoError(t, err)
	_, err = e.mfa.ActivateTOTP(ctx, u.ID, enr.Secret, code)
	require.NoError(t, err)

	require.NoError(t, e.mfa.DisableMFA(ctx, u.ID))

	got, err := e.store.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, domain.MFAKindNone, got.MFAKind)
	require.Nil(t, got.TOTPSecret)

	n, err := e.store.BackupCodes().CountUnusedBackupCodes(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	// Logging in no longer challenges.
	res, err := e.auth.Login(ctx, "alice@example.com", "pw-pw-pw-pw", testMeta)
	require.NoError(t, err)
	require.False(t, res.MFARequired)
	require.NotNil(t, res.Session)
}
