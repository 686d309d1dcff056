package messaging

import (
	"context"
	"errors"

	"github.com/jwalitptl/care-scheduling/pkg/circuitbreaker"
)

// GuardedBroker runs every publish through a circuit breaker so a dead broker
// fails fast instead of stalling requests.
type GuardedBroker struct {
	broker   Broker
	cb       *circuitbreaker.CircuitBreaker
	observed func(status string)
}

func NewGuardedBroker(broker Broker, cb *circuitbreaker.CircuitBreaker, observe func(status string)) *GuardedBroker {
	return &GuardedBroker{broker: broker, cb: cb, observed: observe}
}

func (g *GuardedBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	err := g.cb.Execute(func() error {
		return g.broker.Publish(ctx, channel, message)
	})
	if g.observed != nil {
		switch {
		case err == nil:
			g.observed("success")
		case errors.Is(err, circuitbreaker.ErrOpen):
			g.observed("rejected")
		default:
			g.observed("error")
		}
	}
	return err
}

func (g *GuardedBroker) Close() error {
	return g.broker.Close()
}

// NopBroker drops every message. Used when messaging is disabled.
type NopBroker struct{}

func (NopBroker) Publish(context.Context, string, interface{}) error { return nil }
func (NopBroker) Close() error                                       { return nil }
