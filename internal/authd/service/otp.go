package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/castellan/authd/internal/authd/domain"
	"github.com/castellan/authd/internal/authd/notify"
	"github.com/castellan/authd/internal/authd/store"
	"github.com/castellan/authd/pkg/cryptox"
	"github.com/castellan/authd/pkg/idx"
)

const (
	// DefaultOTPTTL is how long an emailed code stays valid. Acceptance is
	// strict: at exactly issue time + TTL the code is dead.
	DefaultOTPTTL = 2 * time.Minute

	// OTPCodeLength is the number of decimal digits in an emailed code.
	OTPCodeLength = 6
)

// OTPService issues and consumes short-lived emailed codes. Issuing a new
// code never invalidates earlier unexpired codes for the same subject.
type OTPService struct {
	Store  store.Store
	Sender notify.Sender
	TTL    time.Duration
	Clock  Clock
}

func (s *OTPService) ttl() time.Duration {
	if s.TTL <= 0 {
		return DefaultOTPTTL
	}
	return s.TTL
}

// Issue generates a fresh code for the subject and emails it.
func (s *OTPService) Issue(ctx context.Context, subject string, kind domain.OtpKind, email string) (domain.OtpCode, error) {
	return s.IssueWithPayload(ctx, subject, kind, email, "")
}

// IssueWithPayload is Issue with opaque flow data attached to the code, to
// be returned verbatim when the code is consumed.
func (s *OTPService) IssueWithPayload(ctx context.Context, subject string, kind domain.OtpKind, email, payload string) (domain.OtpCode, error) {
	digits, err := cryptox.GenerateNumericCode(OTPCodeLength)
	if err != nil {
		return domain.OtpCode{}, err
	}

	now := clockOrSystem(s.Clock).Now()
	code := domain.OtpCode{
		ID:        idx.New().String(),
		Subject:   subject,
		Code:      digits,
		Kind:      kind,
		Payload:   payload,
		ExpiresAt: now.Add(s.ttl()),
		CreatedAt: now,
	}

	if err := s.Store.OtpCodes().CreateOtpCode(ctx, code); err != nil {
		return domain.OtpCode{}, err
	}

	if err := s.Sender.SendCode(ctx, email, digits); err != nil {
		return domain.OtpCode{}, fmt.Errorf("%w: %w", ErrNotificationFailed, err)
	}

	return code, nil
}

// Consume validates and spends a code. A code is good exactly once and only
// strictly before its expiry; everything else is ErrExpiredOrUsedCode.
func (s *OTPService) Consume(ctx context.Context, subject, code string, kind domain.OtpKind) (domain.OtpCode, error) {
	now := clockOrSystem(s.Clock).Now()
	consumed, err := s.Store.OtpCodes().ConsumeOtpCode(ctx, subject, code, kind, now)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.OtpCode{}, ErrExpiredOrUsedCode
		}
		return domain.OtpCode{}, err
	}
	return consumed, nil
}
