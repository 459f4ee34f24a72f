package eventbus

import (
	"context"
	"errors"

	"github.com/autopeca/marketplace/pkg/eventbus"
	"github.com/autopeca/marketplace/pkg/outbox"
)

// Dispatcher delivers relayed messages to in-process subscribers with the signature
// func(context.Context, *outbox.DispatchedMessage) error.
type Dispatcher struct {
	bus eventbus.EventBusWithError
}

func New(bus eventbus.EventBusWithError) *Dispatcher {
	return &Dispatcher{bus: bus}
}

// Dispatch returns handler errors so the relay retries. A topic nobody listens to is
// treated as delivered.
func (d *Dispatcher) Dispatch(ctx context.Context, msg outbox.DispatchedMessage) error {
	err := d.bus.PublishE(ctx, &msg)
	if errors.Is(err, eventbus.ErrNoSubscribers) {
		return nil
	}
	return err
}
