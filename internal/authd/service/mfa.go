package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/castellan/authd/internal/authd/domain"
	"github.com/castellan/authd/internal/authd/store"
	"github.com/castellan/authd/pkg/cryptox"
	"github.com/castellan/authd/pkg/idx"
)

const (
	// DefaultChallengeTTL bounds how long a pending MFA challenge can sit
	// between password success and code submission.
	DefaultChallengeTTL = 5 * time.Minute

	// BackupCodeCount is the batch size generated at enrollment. The set
	// does not replenish as codes are spent.
	BackupCodeCount = 8

	backupCodeDigits = 8
)

// Challenge is a pending second-factor check. It lives in memory only; a
// restart voids outstanding challenges and the user logs in again.
type Challenge struct {
	ID        string
	UserID    string
	Kind      domain.MFAKind
	ExpiresAt time.Time
	Meta      domain.ClientMeta
}

// MFAService owns the second-factor state machine: issuing challenges
// after password success, dispatching submitted codes to the right
// verifier, and managing enrollment.
type MFAService struct {
	Store        store.Store
	TOTP         *TOTPVerifier
	OTP          *OTPService
	Clock        Clock
	ChallengeTTL time.Duration

	mu         sync.Mutex
	challenges map[string]Challenge
}

func (s *MFAService) challengeTTL() time.Duration {
	if s.ChallengeTTL <= 0 {
		return DefaultChallengeTTL
	}
	return s.ChallengeTTL
}

// Begin opens a challenge for a user whose password already checked out.
// For email factors the code is sent before the challenge is handed back.
func (s *MFAService) Begin(ctx context.Context, user domain.User, meta domain.ClientMeta) (Challenge, error) {
	factor := user.Factor()
	if factor.Kind == domain.MFAKindNone {
		return Challenge{}, errors.New("user has no second factor configured")
	}

	if factor.Kind == domain.MFAKindEmail {
		if _, err := s.OTP.Issue(ctx, user.ID, domain.OtpKindLogin, user.Email); err != nil {
			return Challenge{}, err
		}
	}

	now := clockOrSystem(s.Clock).Now()
	ch := Challenge{
		ID:        idx.New().String(),
		UserID:    user.ID,
		Kind:      factor.Kind,
		ExpiresAt: now.Add(s.challengeTTL()),
		Meta:      meta,
	}

	s.mu.Lock()
	if s.challenges == nil {
		s.challenges = make(map[string]Challenge)
	}
	s.challenges[ch.ID] = ch
	s.mu.Unlock()

	return ch, nil
}

// Submit checks a code against a pending challenge. The primary verifier
// depends on the challenge kind; a code shaped like a backup code falls
// back to the user's recovery set. A wrong code leaves the challenge open
// for another try until it expires.
func (s *MFAService) Submit(ctx context.Context, challengeID, code string) (Challenge, bool, error) {
	ch, err := s.lookup(challengeID)
	if err != nil {
		return Challenge{}, false, err
	}

	user, err := s.Store.Users().GetUserByID(ctx, ch.UserID)
	if err != nil {
		return Challenge{}, false, err
	}

	ok, usedBackup, err := s.dispatch(ctx, user, ch.Kind, code)
	if err != nil {
		return Challenge{}, false, err
	}
	if !ok {
		return Challenge{}, false, ErrInvalidMFACode
	}

	s.mu.Lock()
	delete(s.challenges, challengeID)
	s.mu.Unlock()

	return ch, usedBackup, nil
}

func (s *MFAService) lookup(challengeID string) (Challenge, error) {
	now := clockOrSystem(s.Clock).Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.challenges[challengeID]
	if !ok {
		return Challenge{}, ErrUnknownChallenge
	}
	if !now.Before(ch.ExpiresAt) {
		delete(s.challenges, challengeID)
		return Challenge{}, ErrUnknownChallenge
	}
	return ch, nil
}

func (s *MFAService) dispatch(ctx context.Context, user domain.User, kind domain.MFAKind, code string) (ok, usedBackup bool, err error) {
	stripped := stripCodeSeparators(code)

	switch kind {
	case domain.MFAKindTOTP:
		if len(stripped) == OTPCodeLength {
			ok, err := s.TOTP.Verify(stripped, user.Factor().TOTPSecret)
			if err != nil {
				return false, false, err
			}
			if ok {
				return true, false, nil
			}
		}

	case domain.MFAKindEmail:
		if len(stripped) == OTPCodeLength {
			_, err := s.OTP.Consume(ctx, user.ID, stripped, domain.OtpKindLogin)
			if err == nil {
				return true, false, nil
			}
			if !errors.Is(err, ErrExpiredOrUsedCode) {
				return false, false, err
			}
		}

	default:
		return false, false, errors.New("unsupported challenge kind")
	}

	// Backup codes work for any factor kind.
	if len(stripped) == backupCodeDigits && isAllDigits(stripped) {
		ok, err := s.consumeBackup(ctx, user.ID, stripped)
		if err != nil {
			return false, false, err
		}
		return ok, ok, nil
	}

	return false, false, nil
}

func (s *MFAService) consumeBackup(ctx context.Context, userID, digits string) (bool, error) {
	// Codes are fingerprinted in their canonical "1234-5678" form.
	canonical := digits[:4] + "-" + digits[4:]
	return s.Store.BackupCodes().ConsumeBackupCode(ctx, userID, cryptox.FingerprintToken(canonical))
}

// EnrollTOTP generates a fresh secret for the user. Nothing is persisted
// until ActivateTOTP proves the authenticator was set up.
func (s *MFAService) EnrollTOTP(ctx context.Context, user domain.User) (domain.TOTPEnrollment, error) {
	return s.TOTP.Enroll(user.Email)
}

// ActivateTOTP turns TOTP on once the user proves possession of the secret
// with a current code. Returns the plaintext backup codes; only their
// fingerprints are stored and they are never shown again.
func (s *MFAService) ActivateTOTP(ctx context.Context, userID, secret, code string) ([]string, error) {
	ok, err := s.TOTP.Verify(stripCodeSeparators(code), secret)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidMFACode
	}

	codes := make([]string, 0, BackupCodeCount)
	for range BackupCodeCount {
		c, err := cryptox.GenerateBackupCode()
		if err != nil {
			return nil, err
		}
		codes = append(codes, c)
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().SetMFA(ctx, userID, domain.MFAKindTOTP, &secret); err != nil {
			return err
		}
		if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, userID); err != nil {
			return err
		}
		for _, c := range codes {
			if err := tx.BackupCodes().CreateBackupCode(ctx, userID, cryptox.FingerprintToken(c)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return codes, nil
}

// EnableEmailMFA switches the user to emailed login codes.
func (s *MFAService) EnableEmailMFA(ctx context.Context, userID string) error {
	return s.Store.Users().SetMFA(ctx, userID, domain.MFAKindEmail, nil)
}

// DisableMFA removes the second factor and the backup code set with it.
func (s *MFAService) DisableMFA(ctx context.Context, userID string) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().SetMFA(ctx, userID, domain.MFAKindNone, nil); err != nil {
			return err
		}
		return tx.BackupCodes().DeleteAllBackupCodes(ctx, userID)
	})
}

func stripCodeSeparators(code string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', ' ':
			return -1
		}
		return r
	}, strings.TrimSpace(code))
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
