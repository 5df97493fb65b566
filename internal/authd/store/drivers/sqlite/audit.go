package sqlite

import (
	"context"

	"github.com/castellan/authd/internal/authd/domain"
)

type auditLogRepo struct {
	q queryer
}

func (r *auditLogRepo) CreateAuditEvent(ctx context.Context, ev domain.AuditEvent) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO audit_log (id, actor_user_id, action, ip_address, user_agent, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		ev.ID,
		ev.ActorUserID,
		ev.Action,
		ev.IPAddress,
		ev.UserAgent,
		ev.Details,
		ev.CreatedAt.UTC(),
	)
	return err
}
