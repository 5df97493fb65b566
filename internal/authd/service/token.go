package service

import (
	"context"
	"errors"
	"time"

	"github.com/castellan/authd/internal/authd/domain"
	"github.com/castellan/authd/internal/authd/store"
	"github.com/castellan/authd/pkg/idx"
	"github.com/castellan/authd/pkg/jwtx"
)

// TokenService issues and rotates session token pairs. Every pair is
// backed by one session row; rotation replaces the row atomically so a
// spent refresh token can never mint a second pair.
type TokenService struct {
	Store store.Store
	Codec *jwtx.Codec
	Clock Clock
}

func (s *TokenService) refreshTTL() time.Duration {
	if s.Codec.RefreshTTL > 0 {
		return s.Codec.RefreshTTL
	}
	return jwtx.DefaultRefreshTokenTTL
}

// IssueSession signs a fresh pair for the user and persists the session.
func (s *TokenService) IssueSession(ctx context.Context, user domain.User, meta domain.ClientMeta) (domain.Session, error) {
	now := clockOrSystem(s.Clock).Now()

	pair, err := s.Codec.IssuePair(user.ID, user.Email, string(user.Role), now)
	if err != nil {
		return domain.Session{}, err
	}

	sess := domain.Session{
		ID:           idx.New().String(),
		UserID:       user.ID,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    now.Add(s.refreshTTL()),
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		CreatedAt:    now,
	}
	if err := s.Store.Sessions().CreateSession(ctx, sess); err != nil {
		return domain.Session{}, err
	}

	return sess, nil
}

// RotateSession exchanges a valid refresh token for a new pair. The old
// session row is deleted and a new one created in the same transaction;
// the presented refresh token is dead afterwards whatever the client does.
func (s *TokenService) RotateSession(ctx context.Context, refreshToken string, meta domain.ClientMeta) (domain.Session, error) {
	claims, err := s.Codec.VerifyRefresh(refreshToken)
	if err != nil {
		return domain.Session{}, err
	}

	user, err := s.Store.Users().GetUserByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Session{}, ErrSessionNotFound
		}
		return domain.Session{}, err
	}
	if !user.Active {
		return domain.Session{}, ErrSessionNotFound
	}

	now := clockOrSystem(s.Clock).Now()
	pair, err := s.Codec.IssuePair(user.ID, user.Email, string(user.Role), now)
	if err != nil {
		return domain.Session{}, err
	}

	next := domain.Session{
		ID:           idx.New().String(),
		UserID:       user.ID,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    now.Add(s.refreshTTL()),
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		CreatedAt:    now,
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		old, err := tx.Sessions().GetSessionByRefreshToken(ctx, refreshToken)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrSessionNotFound
			}
			return err
		}
		if err := tx.Sessions().DeleteSession(ctx, old.ID); err != nil {
			return err
		}
		return tx.Sessions().CreateSession(ctx, next)
	})
	if err != nil {
		return domain.Session{}, err
	}

	return next, nil
}

// Revoke removes a session row. Revoking a missing session is a no-op.
func (s *TokenService) Revoke(ctx context.Context, sessionID string) error {
	return s.Store.Sessions().DeleteSession(ctx, sessionID)
}

// RevokeAll removes every session a user holds.
func (s *TokenService) RevokeAll(ctx context.Context, userID string) error {
	return s.Store.Sessions().DeleteUserSessions(ctx, userID)
}
