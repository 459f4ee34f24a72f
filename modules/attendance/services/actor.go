package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/autopeca/marketplace/modules/attendance/domain/entities/agent"
	"github.com/autopeca/marketplace/modules/attendance/domain/entities/store"
)

// Actor is an agent together with the store it acts for.
type Actor struct {
	Agent *agent.Agent
	Store *store.Store
}

type actorResolver struct {
	agents agent.Repository
	stores store.Repository
}

// resolve loads the agent and its store. A missing store is treated like a missing agent; an
// inactive agent or store makes the actor inactive.
func (r actorResolver) resolve(ctx context.Context, agentID uuid.UUID) (*Actor, error) {
	if agentID == uuid.Nil {
		return nil, ErrAgentNotFound
	}
	a, err := r.agents.GetByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, agent.ErrNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, storageFailure(err)
	}
	s, err := r.stores.GetByID(ctx, a.StoreID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, storageFailure(err)
	}
	if !a.Active || !s.Active {
		return nil, ErrAgentInactive
	}
	return &Actor{Agent: a, Store: s}, nil
}
