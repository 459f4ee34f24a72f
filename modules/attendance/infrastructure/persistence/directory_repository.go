package persistence

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/autopeca/marketplace/modules/attendance/domain/entities/agent"
	"github.com/autopeca/marketplace/modules/attendance/domain/entities/store"
	"github.com/autopeca/marketplace/modules/attendance/infrastructure/persistence/models"
	"github.com/autopeca/marketplace/pkg/composables"
)

const (
	storeGetQuery = `SELECT id, name, phone, city, state, active FROM stores WHERE id = $1`
	agentGetQuery = `SELECT id, store_id, name, phone, email, active FROM agents WHERE id = $1`
)

type StoreRepository struct{}

func NewStoreRepository() store.Repository {
	return &StoreRepository{}
}

func (r *StoreRepository) GetByID(ctx context.Context, id uuid.UUID) (*store.Store, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	var row models.Store
	if err := tx.QueryRow(ctx, storeGetQuery, id).Scan(
		&row.ID, &row.Name, &row.Phone, &row.City, &row.State, &row.Active,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, errors.Wrap(err, "get store")
	}
	return toDomainStore(&row), nil
}

type AgentRepository struct{}

func NewAgentRepository() agent.Repository {
	return &AgentRepository{}
}

func (r *AgentRepository) GetByID(ctx context.Context, id uuid.UUID) (*agent.Agent, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	var row models.Agent
	if err := tx.QueryRow(ctx, agentGetQuery, id).Scan(
		&row.ID, &row.StoreID, &row.Name, &row.Phone, &row.Email, &row.Active,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, agent.ErrNotFound
		}
		return nil, errors.Wrap(err, "get agent")
	}
	return toDomainAgent(&row), nil
}
