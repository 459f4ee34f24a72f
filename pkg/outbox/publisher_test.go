package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error { return r.scan(dest...) }

type stubTx struct {
	queryRow func(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *stubTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not implemented")
}

func (s *stubTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }

func (s *stubTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("not implemented")
}

func (s *stubTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (s *stubTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return s.queryRow(ctx, sql, args...)
}

func TestPublisher_EnqueueInsertsIntoTable(t *testing.T) {
	t.Parallel()

	var gotSQL string
	var gotArgs []any
	tx := &stubTx{queryRow: func(_ context.Context, sql string, args ...any) pgx.Row {
		gotSQL = sql
		gotArgs = args
		return stubRow{scan: func(dest ...any) error {
			*(dest[0].(*int64)) = 42
			return nil
		}}
	}}

	msg, err := NewJSONMessage("attendance.claimed.v1", uuid.New(), map[string]string{"store": "x"})
	require.NoError(t, err)

	seq, err := NewPublisher().Enqueue(context.Background(), tx, pgx.Identifier{"public", "attendance_outbox"}, msg)
	require.NoError(t, err)
	require.Equal(t, int64(42), seq)
	require.Contains(t, gotSQL, `INSERT INTO "public"."attendance_outbox"`)
	require.Contains(t, gotSQL, "ON CONFLICT (event_id)")
	require.Equal(t, msg.AggregateID, gotArgs[0])
	require.Equal(t, "attendance.claimed.v1", gotArgs[1])
	require.JSONEq(t, `{"store":"x"}`, string(msg.Payload))
}

func TestPublisher_EnqueueValidates(t *testing.T) {
	t.Parallel()

	tx := &stubTx{queryRow: func(context.Context, string, ...any) pgx.Row {
		t.Fatal("should not query")
		return nil
	}}
	p := NewPublisher()
	table := pgx.Identifier{"attendance_outbox"}
	valid := Message{AggregateID: uuid.New(), EventID: uuid.New(), Topic: "t", Payload: []byte(`{}`)}

	cases := map[string]func(m *Message){
		"aggregate": func(m *Message) { m.AggregateID = uuid.Nil },
		"event":     func(m *Message) { m.EventID = uuid.Nil },
		"topic":     func(m *Message) { m.Topic = "" },
		"payload":   func(m *Message) { m.Payload = nil },
	}
	for name, mutate := range cases {
		msg := valid
		mutate(&msg)
		_, err := p.Enqueue(context.Background(), tx, table, msg)
		require.ErrorIs(t, err, ErrInvalidConfig, name)
	}

	_, err := p.Enqueue(context.Background(), tx, nil, valid)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestPublisher_EnqueueWrapsScanError(t *testing.T) {
	t.Parallel()

	boom := errors.New("relation does not exist")
	tx := &stubTx{queryRow: func(context.Context, string, ...any) pgx.Row {
		return stubRow{scan: func(...any) error { return boom }}
	}}
	msg := Message{AggregateID: uuid.New(), EventID: uuid.New(), Topic: "t", Payload: []byte(`{}`)}
	_, err := NewPublisher().Enqueue(context.Background(), tx, pgx.Identifier{"attendance_outbox"}, msg)
	require.ErrorIs(t, err, boom)
	require.ErrorContains(t, err, "outbox enqueue")
}

func TestNewRelay_RequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := NewRelay(nil, pgx.Identifier{"t"}, DispatcherFunc(func(context.Context, DispatchedMessage) error { return nil }), RelayOptions{})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewCleaner(nil, pgx.Identifier{"t"}, CleanerOptions{})
	require.ErrorIs(t, err, ErrInvalidConfig)
}
