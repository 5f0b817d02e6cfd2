// Package mailer provides the digest transports: AWS SES, SendGrid and a
// log-only mailer, each wrapped in a circuit breaker by New.
package mailer

import (
	"context"
	"fmt"

	appconfig "github.com/ignite/storefront-insights/internal/config"
	"github.com/ignite/storefront-insights/internal/dispatch"
)

// New builds the configured provider wrapped in a Breaker.
func New(ctx context.Context, cfg *appconfig.Config) (dispatch.Mailer, error) {
	var m dispatch.Mailer
	switch cfg.Digest.Provider {
	case "ses":
		ses, err := NewSESMailer(ctx, cfg.SES, cfg.Digest)
		if err != nil {
			return nil, err
		}
		m = ses
	case "sendgrid":
		if cfg.SendGrid.APIKey == "" {
			return nil, fmt.Errorf("sendgrid provider requires an api key")
		}
		m = NewSendGridMailer(cfg.SendGrid, cfg.Digest)
	case "log", "":
		m = NewLogMailer(cfg.Digest.Recipient)
	default:
		return nil, fmt.Errorf("unknown digest provider %q", cfg.Digest.Provider)
	}
	return NewBreaker(m, BreakerSettings{Name: "digest-" + cfg.Digest.Provider}), nil
}
