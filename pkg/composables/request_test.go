package composables

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestUseAgentID(t *testing.T) {
	t.Parallel()

	_, err := UseAgentID(context.Background())
	require.ErrorIs(t, err, ErrNoAgentID)

	_, err = UseAgentID(WithAgentID(context.Background(), uuid.Nil))
	require.ErrorIs(t, err, ErrNoAgentID)

	id := uuid.New()
	got, err := UseAgentID(WithAgentID(context.Background(), id))
	require.NoError(t, err)
	require.Equal(t, id, got)
}

func TestUseLogger_FallsBackToStandardLogger(t *testing.T) {
	t.Parallel()

	require.NotNil(t, UseLogger(context.Background()))

	entry := logrus.NewEntry(logrus.New()).WithField("request-id", "abc")
	ctx := WithLogger(context.Background(), entry)
	require.Same(t, entry, UseLogger(ctx))
}

func TestUseRequestID(t *testing.T) {
	t.Parallel()

	_, ok := UseRequestID(context.Background())
	require.False(t, ok)

	ctx := WithParams(context.Background(), &Params{RequestID: "req-1"})
	id, ok := UseRequestID(ctx)
	require.True(t, ok)
	require.Equal(t, "req-1", id)
}
