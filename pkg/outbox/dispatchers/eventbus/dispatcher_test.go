package eventbus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autopeca/marketplace/pkg/eventbus"
	"github.com/autopeca/marketplace/pkg/outbox"
)

func TestDispatcher_DeliversToSubscribers(t *testing.T) {
	bus := eventbus.NewEventPublisher(nil)
	var got *outbox.DispatchedMessage
	bus.Subscribe(func(_ context.Context, msg *outbox.DispatchedMessage) error {
		got = msg
		return nil
	})

	d := New(bus)
	err := d.Dispatch(context.Background(), outbox.DispatchedMessage{
		Meta:    outbox.Meta{Topic: "attendance.claimed.v1"},
		Payload: []byte(`{}`),
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "attendance.claimed.v1", got.Meta.Topic)
}

func TestDispatcher_SurfacesHandlerErrors(t *testing.T) {
	bus := eventbus.NewEventPublisher(nil)
	boom := errors.New("smtp down")
	bus.Subscribe(func(context.Context, *outbox.DispatchedMessage) error { return boom })

	err := New(bus).Dispatch(context.Background(), outbox.DispatchedMessage{})
	require.ErrorIs(t, err, boom)
}

func TestDispatcher_NoSubscribersIsDelivered(t *testing.T) {
	err := New(eventbus.NewEventPublisher(nil)).Dispatch(context.Background(), outbox.DispatchedMessage{})
	require.NoError(t, err)
}
