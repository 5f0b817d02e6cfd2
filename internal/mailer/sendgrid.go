package mailer

import (
	"context"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	appconfig "github.com/ignite/storefront-insights/internal/config"
	"github.com/ignite/storefront-insights/internal/dispatch"
	"github.com/ignite/storefront-insights/internal/pkg/logger"
)

type sendgridAPI interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridMailer sends digests through SendGrid.
type SendGridMailer struct {
	client    sendgridAPI
	fromEmail string
	fromName  string
	recipient string
}

// NewSendGridMailer creates a SendGrid mailer.
func NewSendGridMailer(cfg appconfig.SendGridConfig, digest appconfig.DigestConfig) *SendGridMailer {
	return newSendGridMailer(sendgrid.NewSendClient(cfg.APIKey), digest)
}

func newSendGridMailer(client sendgridAPI, digest appconfig.DigestConfig) *SendGridMailer {
	return &SendGridMailer{
		client:    client,
		fromEmail: digest.FromEmail,
		fromName:  digest.FromName,
		recipient: digest.Recipient,
	}
}

func (m *SendGridMailer) Send(ctx context.Context, msg dispatch.Message) (string, error) {
	from := mail.NewEmail(m.fromName, m.fromEmail)
	to := mail.NewEmail("", m.recipient)
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.TextBody, msg.HTMLBody)

	response, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return "", fmt.Errorf("sendgrid error: %w", err)
	}
	// SendGrid returns 2xx for success
	if response.StatusCode >= 300 {
		return "", fmt.Errorf("sendgrid returned status %d: %s", response.StatusCode, response.Body)
	}

	id := ""
	if v, ok := response.Headers["X-Message-Id"]; ok && len(v) > 0 {
		id = v[0]
	}
	logger.Info("digest sent", "component", "mailer", "provider", "sendgrid", "recipient", m.recipient, "message_id", id)
	return id, nil
}
