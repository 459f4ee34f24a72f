package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/autopeca/marketplace/pkg/composables"
	"github.com/autopeca/marketplace/pkg/outbox"
)

// EventSink records integration events inside the caller's transaction.
type EventSink interface {
	Enqueue(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) error
}

// OutboxTable is the outbox table attendance events are written to.
var OutboxTable = pgx.Identifier{"public", "attendance_outbox"}

type outboxSink struct {
	publisher outbox.Publisher
	table     pgx.Identifier
}

func NewOutboxSink(publisher outbox.Publisher, table pgx.Identifier) EventSink {
	if len(table) == 0 {
		table = OutboxTable
	}
	return &outboxSink{publisher: publisher, table: table}
}

func (s *outboxSink) Enqueue(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	msg, err := outbox.NewJSONMessage(topic, aggregateID, payload)
	if err != nil {
		return err
	}
	_, err = s.publisher.Enqueue(ctx, tx, s.table, msg)
	return err
}
