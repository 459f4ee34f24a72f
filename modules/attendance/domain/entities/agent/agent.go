package agent

import (
	"context"

	"github.com/google/uuid"

	"github.com/autopeca/marketplace/pkg/serrors"
)

var ErrNotFound = serrors.NewError("AGENT_NOT_FOUND", "agent not found", "Errors.AgentNotFound")

// Agent is a vendedor of exactly one store.
type Agent struct {
	ID      uuid.UUID
	StoreID uuid.UUID
	Name    string
	Phone   string
	Email   string
	Active  bool
}

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Agent, error)
}
