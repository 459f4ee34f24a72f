package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/autopeca/marketplace/modules/attendance/domain/aggregates/solicitation"
	"github.com/autopeca/marketplace/modules/attendance/domain/entities/agent"
	"github.com/autopeca/marketplace/modules/attendance/domain/entities/store"
	"github.com/autopeca/marketplace/pkg/composables"
)

// IsEligible reports whether sol can be worked by agents of st: it must be active and target
// the store's city and state, compared case-insensitively after trimming.
func IsEligible(st *store.Store, sol *solicitation.Solicitation) bool {
	if st == nil || !sol.IsActive() {
		return false
	}
	return sameArea(st.City, sol.City) && sameArea(st.State, sol.State)
}

func sameArea(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

type VisibilityService struct {
	solicitations solicitation.Repository
	actors        actorResolver
	limits        pageLimits
	inTx          txRunner
}

func NewVisibilityService(
	solicitations solicitation.Repository,
	agents agent.Repository,
	stores store.Repository,
	pageSize, maxPageSize int,
) *VisibilityService {
	return &VisibilityService{
		solicitations: solicitations,
		actors:        actorResolver{agents: agents, stores: stores},
		limits:        pageLimits{def: pageSize, max: maxPageSize},
		inTx:          composables.InTx,
	}
}

func (s *VisibilityService) IsEligible(st *store.Store, sol *solicitation.Solicitation) bool {
	return IsEligible(st, sol)
}

// ListAvailable returns active solicitations in the agent's area that its store has not
// claimed and the agent has not seen, newest first.
func (s *VisibilityService) ListAvailable(ctx context.Context, agentID uuid.UUID, page Page) ([]*solicitation.Solicitation, error) {
	page, err := s.limits.apply(page)
	if err != nil {
		return nil, err
	}
	out, err := inTxResult(ctx, s.inTx, func(txCtx context.Context) ([]*solicitation.Solicitation, error) {
		actor, err := s.actors.resolve(txCtx, agentID)
		if err != nil {
			return nil, err
		}
		list, err := s.solicitations.ListAvailable(txCtx, availableParams(actor, page))
		if err != nil {
			return nil, storageFailure(err)
		}
		return list, nil
	}, composables.WithReadOnly())
	return out, s.finish(ctx, "list_available", err)
}

// ListSeen returns the agent's seen solicitations that are still active in its area.
func (s *VisibilityService) ListSeen(ctx context.Context, agentID uuid.UUID, page Page) ([]*solicitation.Marked, error) {
	return s.listMarked(ctx, "list_seen", agentID, solicitation.MarkedSeen, page)
}

// ListClaimed returns every claim of the agent, including claims on solicitations that have
// since been closed.
func (s *VisibilityService) ListClaimed(ctx context.Context, agentID uuid.UUID, page Page) ([]*solicitation.Marked, error) {
	return s.listMarked(ctx, "list_claimed", agentID, solicitation.MarkedClaimed, page)
}

func (s *VisibilityService) listMarked(
	ctx context.Context,
	op string,
	agentID uuid.UUID,
	status solicitation.MarkedStatus,
	page Page,
) ([]*solicitation.Marked, error) {
	page, err := s.limits.apply(page)
	if err != nil {
		return nil, err
	}
	out, err := inTxResult(ctx, s.inTx, func(txCtx context.Context) ([]*solicitation.Marked, error) {
		actor, err := s.actors.resolve(txCtx, agentID)
		if err != nil {
			return nil, err
		}
		list, err := s.solicitations.ListMarked(txCtx, markedParams(actor, status, page))
		if err != nil {
			return nil, storageFailure(err)
		}
		return list, nil
	}, composables.WithReadOnly())
	return out, s.finish(ctx, op, err)
}

func (s *VisibilityService) finish(ctx context.Context, op string, err error) error {
	if err != nil && !isServiceError(err) {
		err = storageFailure(err)
	}
	logOutcome(composables.UseLogger(ctx), op, err)
	return err
}

func availableParams(actor *Actor, page Page) *solicitation.AvailableParams {
	return &solicitation.AvailableParams{
		City:    actor.Store.City,
		State:   actor.Store.State,
		StoreID: actor.Store.ID,
		AgentID: actor.Agent.ID,
		Limit:   page.Limit,
		Offset:  page.Offset,
	}
}

func markedParams(actor *Actor, status solicitation.MarkedStatus, page Page) *solicitation.MarkedParams {
	p := &solicitation.MarkedParams{
		AgentID: actor.Agent.ID,
		Status:  status,
		Limit:   page.Limit,
		Offset:  page.Offset,
	}
	if status == solicitation.MarkedSeen {
		p.EligibleOnly = true
		p.City = actor.Store.City
		p.State = actor.Store.State
	}
	return p
}
