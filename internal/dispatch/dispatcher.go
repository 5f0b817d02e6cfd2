package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/storefront-insights/internal/analytics"
	"github.com/ignite/storefront-insights/internal/metrics"
	"github.com/ignite/storefront-insights/internal/pkg/idempotency"
	"github.com/ignite/storefront-insights/internal/pkg/logger"
)

// Dispatcher formats content and sends it through a Mailer.
type Dispatcher struct {
	mailer    Mailer
	formatter *Formatter
	claims    idempotency.Claimer
	claimTTL  time.Duration
	timeout   time.Duration
	log       *logger.Logger
}

// Options tunes a Dispatcher. Zero values take defaults.
type Options struct {
	ClaimTTL    time.Duration
	SendTimeout time.Duration
}

// NewDispatcher creates a dispatcher. A nil claimer disables the once-per-run guard.
func NewDispatcher(mailer Mailer, formatter *Formatter, claims idempotency.Claimer, opts Options) *Dispatcher {
	if opts.ClaimTTL == 0 {
		opts.ClaimTTL = 30 * 24 * time.Hour
	}
	if opts.SendTimeout == 0 {
		opts.SendTimeout = 30 * time.Second
	}
	return &Dispatcher{
		mailer:    mailer,
		formatter: formatter,
		claims:    claims,
		claimTTL:  opts.ClaimTTL,
		timeout:   opts.SendTimeout,
		log:       logger.Default().With("component", "dispatcher"),
	}
}

// Dispatch delivers c and reports whether the digest for it has been
// delivered. A repeated dispatch of an already delivered run returns true
// without sending again. Failures are logged and return false.
func (d *Dispatcher) Dispatch(ctx context.Context, c Content) bool {
	key := c.Key()
	if key == "" {
		d.log.Warn("nothing to dispatch")
		metrics.DispatchTotal.WithLabelValues(metrics.DispatchFailed).Inc()
		return false
	}

	claimed := false
	if d.claims != nil {
		ok, err := d.claims.Claim(ctx, key, d.claimTTL)
		switch {
		case err != nil:
			// claim store down: send anyway rather than lose the digest
			d.log.Warn("claim unavailable, sending without guard", "key", key, "error", err)
		case !ok:
			d.log.Info("digest already delivered", "key", key)
			metrics.DispatchTotal.WithLabelValues(metrics.DispatchDuplicate).Inc()
			return true
		default:
			claimed = true
		}
	}

	id, err := d.send(ctx, c)
	if err != nil {
		if claimed {
			if relErr := d.claims.Release(context.WithoutCancel(ctx), key); relErr != nil {
				d.log.Warn("failed to release claim", "key", key, "error", relErr)
			}
		}
		d.log.Error("digest delivery failed", "key", key, "error", err)
		metrics.DispatchTotal.WithLabelValues(metrics.DispatchFailed).Inc()
		return false
	}

	d.log.Info("digest delivered", "key", key, "delivery_id", id)
	metrics.DispatchTotal.WithLabelValues(metrics.DispatchDelivered).Inc()
	return true
}

func (d *Dispatcher) send(ctx context.Context, c Content) (string, error) {
	msg, err := d.formatter.Format(c)
	if err != nil {
		return "", fmt.Errorf("%w: format: %w", analytics.ErrDeliveryFailure, err)
	}
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	id, err := d.mailer.Send(sendCtx, msg)
	if err != nil {
		return "", fmt.Errorf("%w: %w", analytics.ErrDeliveryFailure, err)
	}
	return id, nil
}
