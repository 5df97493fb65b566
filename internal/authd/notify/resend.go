package notify

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
)

// ResendSender delivers codes by email through the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
}

func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}

func (s *ResendSender) SendCode(ctx context.Context, email, code string) error {
	_, err := s.client.Emails.Send(&resend.SendEmailRequest{
		From:    s.from,
		To:      []string{email},
		Subject: "Your verification code",
		Html: fmt.Sprintf(
			"<p>Your verification code is <strong>%s</strong>.</p><p>It expires in 2 minutes. If you did not request it, ignore this email.</p>",
			code,
		),
		Text: fmt.Sprintf("Your verification code is %s. It expires in 2 minutes.", code),
	})
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	return nil
}
