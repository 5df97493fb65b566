package service

import (
	"context"

	"github.com/castellan/authd/internal/authd/domain"
	"github.com/castellan/authd/internal/authd/store"
	"github.com/castellan/authd/pkg/idx"
	"github.com/castellan/authd/pkg/slogx"
)

// AuditRecorder appends audit events best-effort. A failed write is logged
// and swallowed; auditing must never abort the operation it describes.
type AuditRecorder struct {
	Store store.Store
	Clock Clock
}

func (r *AuditRecorder) Record(ctx context.Context, action, actorUserID string, meta domain.ClientMeta, details string) {
	ev := domain.AuditEvent{
		ID:          idx.New().String(),
		ActorUserID: actorUserID,
		Action:      action,
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
		Details:     details,
		CreatedAt:   clockOrSystem(r.Clock).Now(),
	}

	if err := r.Store.AuditLog().CreateAuditEvent(ctx, ev); err != nil {
		slogx.FromContext(ctx).Warn("audit write failed",
			"action", action,
			"error", err,
		)
	}
}
