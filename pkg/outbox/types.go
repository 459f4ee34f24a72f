package outbox

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Message is one row of an outbox table. AggregateID names the entity the event is about
// (a solicitation for attendance events).
type Message struct {
	AggregateID uuid.UUID
	Topic       string
	EventID     uuid.UUID
	Payload     json.RawMessage
}

// Meta travels with every dispatched message so consumers can dedupe on EventID.
type Meta struct {
	Table       pgx.Identifier
	AggregateID uuid.UUID
	Topic       string
	EventID     uuid.UUID
	Sequence    int64
	Attempts    int
}

type DispatchedMessage struct {
	Meta    Meta
	Payload json.RawMessage
}

type Dispatcher interface {
	Dispatch(ctx context.Context, msg DispatchedMessage) error
}

// DispatcherFunc adapts a plain function to Dispatcher.
type DispatcherFunc func(ctx context.Context, msg DispatchedMessage) error

func (f DispatcherFunc) Dispatch(ctx context.Context, msg DispatchedMessage) error {
	return f(ctx, msg)
}
