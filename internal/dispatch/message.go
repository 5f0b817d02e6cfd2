package dispatch

import (
	"context"
	"fmt"

	"github.com/ignite/storefront-insights/internal/domain"
)

// Message is a transport-agnostic email. The recipient is configured on
// the Mailer.
type Message struct {
	Subject  string
	TextBody string
	HTMLBody string
}

// Mailer sends one message and returns the provider's delivery id.
type Mailer interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// Content is what a digest is built from. Either field may be nil but not both.
type Content struct {
	Result *domain.AnalyticsResult
	Advice *domain.AIAdviceResult
}

// Key identifies the content for claim-once delivery.
func (c Content) Key() string {
	switch {
	case c.Result != nil && c.Result.ID != "":
		return "digest:" + c.Result.ID
	case c.Result != nil:
		return fmt.Sprintf("digest:run:%d", c.Result.RunAt.UnixNano())
	case c.Advice != nil:
		return fmt.Sprintf("digest:advice:%d", c.Advice.GeneratedAt.UnixNano())
	default:
		return ""
	}
}
