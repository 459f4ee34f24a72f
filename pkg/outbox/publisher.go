package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/autopeca/marketplace/pkg/repo"
)

type Publisher interface {
	Enqueue(ctx context.Context, tx repo.Tx, table pgx.Identifier, msg Message) (sequence int64, err error)
}

type publisher struct {
	m *metrics
}

func NewPublisher() Publisher {
	return &publisher{m: getMetrics()}
}

// Enqueue inserts msg in the caller's transaction. Re-enqueueing the same EventID is a no-op
// that returns the original sequence.
func (p *publisher) Enqueue(ctx context.Context, tx repo.Tx, table pgx.Identifier, msg Message) (int64, error) {
	if err := msg.validate(); err != nil {
		return 0, err
	}
	if len(table) == 0 {
		return 0, invalidConfig("table is required")
	}

	q := fmt.Sprintf(
		`INSERT INTO %s (aggregate_id, topic, payload, event_id, available_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (event_id) DO UPDATE SET event_id = EXCLUDED.event_id
		 RETURNING sequence`,
		table.Sanitize(),
	)

	var sequence int64
	if err := tx.QueryRow(ctx, q, msg.AggregateID, msg.Topic, msg.Payload, msg.EventID).Scan(&sequence); err != nil {
		return 0, fmt.Errorf("outbox enqueue: %w", err)
	}
	p.m.enqueueTotal.WithLabelValues(TableLabel(table), msg.Topic).Inc()
	return sequence, nil
}

func (m Message) validate() error {
	switch {
	case m.AggregateID == uuid.Nil:
		return invalidConfig("aggregate_id is required")
	case m.EventID == uuid.Nil:
		return invalidConfig("event_id is required")
	case m.Topic == "":
		return invalidConfig("topic is required")
	case len(m.Payload) == 0:
		return invalidConfig("payload is required")
	}
	return nil
}

// NewJSONMessage marshals payload and assigns a fresh event id.
func NewJSONMessage(topic string, aggregateID uuid.UUID, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("outbox marshal %s: %w", topic, err)
	}
	return Message{
		AggregateID: aggregateID,
		Topic:       topic,
		EventID:     uuid.New(),
		Payload:     raw,
	}, nil
}
