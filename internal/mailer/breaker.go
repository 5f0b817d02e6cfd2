package mailer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/ignite/storefront-insights/internal/dispatch"
	"github.com/ignite/storefront-insights/internal/pkg/logger"
)

// ErrCircuitOpen is returned while the breaker rejects sends.
var ErrCircuitOpen = errors.New("mail provider circuit open")

// Breaker stops calling a failing provider for a cool-down period.
type Breaker struct {
	next dispatch.Mailer
	cb   *gobreaker.CircuitBreaker
}

// BreakerSettings tunes the circuit. Zero values take defaults.
type BreakerSettings struct {
	Name     string
	Failures uint32        // consecutive failures that open the circuit
	Cooldown time.Duration // how long the circuit stays open
}

// NewBreaker wraps next with a circuit breaker.
func NewBreaker(next dispatch.Mailer, s BreakerSettings) *Breaker {
	if s.Name == "" {
		s.Name = "digest-mailer"
	}
	if s.Failures == 0 {
		s.Failures = 3
	}
	if s.Cooldown == 0 {
		s.Cooldown = 5 * time.Minute
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Interval:    time.Hour,
		Timeout:     s.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.Failures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "component", "mailer", "breaker", name,
				"from", from.String(), "to", to.String())
		},
	})
	return &Breaker{next: next, cb: cb}
}

func (b *Breaker) Send(ctx context.Context, msg dispatch.Message) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Send(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	}
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

// State reports the breaker state (closed, half-open, open).
func (b *Breaker) State() string { return b.cb.State().String() }
