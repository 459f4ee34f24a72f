package controllers

import (
	"context"

	"github.com/google/uuid"

	"github.com/autopeca/marketplace/modules/attendance/domain/aggregates/solicitation"
	"github.com/autopeca/marketplace/modules/attendance/services"
)

type markedLister func(ctx context.Context, agentID uuid.UUID, page services.Page) ([]*solicitation.Marked, error)
