package auth

import (
	"context"

	"github.com/zhouzirui/z-support/backend/internal/observability"
)

// Mailer delivers password recovery links.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, link string) error
}

// LogMailer writes recovery links to the log instead of sending email.
type LogMailer struct{}

func (LogMailer) SendPasswordReset(ctx context.Context, to, link string) error {
	observability.LoggerFromContext(ctx).Info("password reset link", "to", to, "link", link)
	return nil
}
