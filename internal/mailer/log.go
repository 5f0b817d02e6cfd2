package mailer

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignite/storefront-insights/internal/dispatch"
	"github.com/ignite/storefront-insights/internal/pkg/logger"
)

// LogMailer writes digests to the log instead of sending them. Used in
// development and when no provider is configured.
type LogMailer struct {
	recipient string
	log       *logger.Logger
}

func NewLogMailer(recipient string) *LogMailer {
	return &LogMailer{recipient: recipient, log: logger.Default().With("component", "mailer", "provider", "log")}
}

func (m *LogMailer) Send(_ context.Context, msg dispatch.Message) (string, error) {
	id := uuid.New().String()
	m.log.Info("digest (not sent)", "recipient", m.recipient, "message_id", id, "subject", msg.Subject, "body", msg.TextBody)
	return id, nil
}
