package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/autopeca/marketplace/pkg/serrors"
)

var ErrNotFound = serrors.NewError("STORE_NOT_FOUND", "store not found", "Errors.StoreNotFound")

// Store is an autopeça. Active mirrors the owning account.
type Store struct {
	ID     uuid.UUID
	Name   string
	Phone  string
	City   string
	State  string
	Active bool
}

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Store, error)
}
