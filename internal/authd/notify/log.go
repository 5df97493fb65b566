package notify

import (
	"context"
	"log/slog"
)

// LogSender writes codes to the log instead of sending email. Development
// only; it defeats the point of an out-of-band factor.
type LogSender struct{}

func (LogSender) SendCode(ctx context.Context, email, code string) error {
	slog.WarnContext(ctx, "email delivery disabled, logging code instead",
		slog.String("email", email),
		slog.String("code", code),
	)
	return nil
}
