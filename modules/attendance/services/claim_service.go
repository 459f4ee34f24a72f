package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/autopeca/marketplace/modules/attendance/domain/aggregates/attendance"
	"github.com/autopeca/marketplace/modules/attendance/domain/aggregates/solicitation"
	"github.com/autopeca/marketplace/modules/attendance/domain/entities/agent"
	"github.com/autopeca/marketplace/modules/attendance/domain/entities/store"
	"github.com/autopeca/marketplace/modules/attendance/domain/events"
	"github.com/autopeca/marketplace/pkg/composables"
	"github.com/autopeca/marketplace/pkg/eventbus"
)

// ClaimResult carries the claim and everything needed to contact the customer.
// Customer is nil when the customer record is gone.
type ClaimResult struct {
	Record       *attendance.Record
	Solicitation *solicitation.Solicitation
	Store        *store.Store
	Agent        *agent.Agent
	Customer     *solicitation.Customer
}

type ClaimService struct {
	solicitations solicitation.Repository
	records       attendance.Repository
	actors        actorResolver
	sink          EventSink
	publisher     eventbus.EventBus
	isoLevel      pgx.TxIsoLevel

	inTx txRunner
	now  func() time.Time
}

func NewClaimService(
	solicitations solicitation.Repository,
	records attendance.Repository,
	agents agent.Repository,
	stores store.Repository,
	sink EventSink,
	publisher eventbus.EventBus,
	isoLevel pgx.TxIsoLevel,
) *ClaimService {
	if isoLevel == "" {
		isoLevel = pgx.ReadCommitted
	}
	return &ClaimService{
		solicitations: solicitations,
		records:       records,
		actors:        actorResolver{agents: agents, stores: stores},
		sink:          sink,
		publisher:     publisher,
		isoLevel:      isoLevel,
		inTx:          composables.InTx,
		now:           time.Now,
	}
}

// Claim gives the agent's store exclusive ownership of the solicitation. On
// ErrAlreadyClaimedBySelf the existing claim is returned together with the error.
func (s *ClaimService) Claim(ctx context.Context, solicitationID, agentID uuid.UUID) (*ClaimResult, error) {
	logger := composables.UseLogger(ctx).WithFields(logrus.Fields{
		"solicitation_id": solicitationID,
		"agent_id":        agentID,
	})

	var (
		result  *ClaimResult
		storeID uuid.UUID
		winner  *uuid.UUID
	)
	err := s.inTx(ctx, func(txCtx context.Context) error {
		actor, err := s.actors.resolve(txCtx, agentID)
		if err != nil {
			return err
		}
		storeID = actor.Store.ID
		result, winner, err = s.claimInTx(txCtx, actor, solicitationID)
		return err
	}, composables.WithIsoLevel(s.isoLevel))

	if err != nil && storeID != uuid.Nil &&
		(isSerializationFailure(err) || isUniqueViolation(err, attendance.AgentConstraint)) {
		result, winner, err = s.settleAborted(ctx, solicitationID, storeID, agentID, err)
	}
	if err != nil && !isServiceError(err) {
		err = storageFailure(err)
	}
	if errors.Is(err, ErrStoreConflict) {
		s.publishConflict(ctx, logger, solicitationID, storeID, agentID, winner)
	}

	recordOperation("claim", err)
	logOutcome(logger, "claim", err)
	switch {
	case err == nil:
		logger.WithField("claim_id", result.Record.ID).Info("attendance: solicitation claimed")
		return result, nil
	case errors.Is(err, ErrAlreadyClaimedBySelf):
		return result, err
	default:
		return nil, err
	}
}

func (s *ClaimService) claimInTx(ctx context.Context, actor *Actor, solicitationID uuid.UUID) (*ClaimResult, *uuid.UUID, error) {
	sol, err := s.solicitations.GetByID(ctx, solicitationID)
	if err != nil {
		if errors.Is(err, solicitation.ErrNotFound) {
			return nil, nil, requestUnavailable(false)
		}
		return nil, nil, storageFailure(err)
	}
	if !sol.IsActive() {
		return nil, nil, requestUnavailable(true)
	}

	// Claims of one store on one solicitation run one at a time, so the reads below see
	// the outcome of any claim that got the lock first.
	if err := s.records.LockStoreClaim(ctx, solicitationID, actor.Store.ID); err != nil {
		return nil, nil, storageFailure(err)
	}

	own, err := findOwnRecord(ctx, s.records, solicitationID, actor.Agent.ID)
	if err != nil {
		return nil, nil, err
	}
	if own.IsClaimed() {
		return &ClaimResult{Record: own, Solicitation: sol, Store: actor.Store, Agent: actor.Agent}, nil, ErrAlreadyClaimedBySelf
	}

	peer, err := s.records.FindClaimedByRequestAndStore(ctx, solicitationID, actor.Store.ID)
	switch {
	case err == nil:
		return nil, &peer.AgentID, ErrStoreConflict
	case !errors.Is(err, attendance.ErrRecordNotFound):
		return nil, nil, storageFailure(err)
	}

	now := s.now()
	var rec *attendance.Record
	if own != nil {
		rec, err = s.records.UpdateStatus(ctx, own.ID, attendance.StatusClaimed, now)
		if errors.Is(err, attendance.ErrRecordNotFound) {
			// the seen row was cleared by a peer's claim committed after the peer check
			return s.peerClaimedAfterCheck(ctx, solicitationID, actor.Store.ID, err)
		}
	} else {
		rec, err = s.records.Create(ctx, &attendance.Record{
			SolicitationID: solicitationID,
			StoreID:        actor.Store.ID,
			AgentID:        actor.Agent.ID,
			Status:         attendance.StatusClaimed,
			MarkedAt:       now,
		})
	}
	if err != nil {
		return nil, nil, mapWriteError(err)
	}

	if _, err := s.records.DeleteSeenByRequestAndStore(ctx, solicitationID, actor.Store.ID, actor.Agent.ID); err != nil {
		return nil, nil, storageFailure(err)
	}

	customer, err := s.solicitations.GetCustomer(ctx, sol.CustomerID)
	if err != nil {
		if !errors.Is(err, solicitation.ErrNotFound) {
			return nil, nil, storageFailure(err)
		}
		customer = nil
	}

	result := &ClaimResult{Record: rec, Solicitation: sol, Store: actor.Store, Agent: actor.Agent, Customer: customer}
	if err := s.sink.Enqueue(ctx, events.TopicClaimedV1, sol.ID, claimedEvent(ctx, result)); err != nil {
		return nil, nil, storageFailure(err)
	}
	return result, nil, nil
}

func (s *ClaimService) peerClaimedAfterCheck(
	ctx context.Context,
	solicitationID, storeID uuid.UUID,
	cause error,
) (*ClaimResult, *uuid.UUID, error) {
	peer, err := s.records.FindClaimedByRequestAndStore(ctx, solicitationID, storeID)
	switch {
	case err == nil:
		recordWriteConflict("vanished_seen")
		return nil, &peer.AgentID, withCause(ErrStoreConflict, cause)
	case errors.Is(err, attendance.ErrRecordNotFound):
		return nil, nil, storageFailure(cause)
	default:
		return nil, nil, storageFailure(errors.Join(cause, err))
	}
}

// settleAborted decides the outcome of a claim transaction the database aborted. The ledger
// state after the abort is authoritative: a peer claim means the race was lost, an own claim
// means a concurrent request of the same agent won.
func (s *ClaimService) settleAborted(
	ctx context.Context,
	solicitationID, storeID, agentID uuid.UUID,
	cause error,
) (*ClaimResult, *uuid.UUID, error) {
	var (
		peer *attendance.Record
		own  *attendance.Record
		sol  *solicitation.Solicitation
	)
	err := s.inTx(ctx, func(txCtx context.Context) error {
		// waits out a claim that still holds the lock, so its outcome is visible
		if err := s.records.LockStoreClaim(txCtx, solicitationID, storeID); err != nil {
			return err
		}
		var err error
		peer, err = s.records.FindClaimedByRequestAndStore(txCtx, solicitationID, storeID)
		if err != nil && !errors.Is(err, attendance.ErrRecordNotFound) {
			return err
		}
		if peer == nil || peer.AgentID != agentID {
			return nil
		}
		own = peer
		sol, err = s.solicitations.GetByID(txCtx, solicitationID)
		return err
	}, composables.WithReadOnly())
	if err != nil {
		return nil, nil, storageFailure(errors.Join(cause, err))
	}
	switch {
	case own != nil:
		return &ClaimResult{Record: own, Solicitation: sol}, nil, ErrAlreadyClaimedBySelf
	case peer != nil:
		recordWriteConflict("serialization")
		return nil, &peer.AgentID, withCause(ErrStoreConflict, cause)
	default:
		return nil, nil, storageFailure(cause)
	}
}

// publishConflict emits ClaimConflictEvent in-process after the losing transaction is gone.
// It never changes the claim outcome.
func (s *ClaimService) publishConflict(
	ctx context.Context,
	logger *logrus.Entry,
	solicitationID, storeID, loserID uuid.UUID,
	winner *uuid.UUID,
) {
	if s.publisher == nil {
		return
	}
	if winner == nil {
		_ = s.inTx(ctx, func(txCtx context.Context) error {
			peer, err := s.records.FindClaimedByRequestAndStore(txCtx, solicitationID, storeID)
			if err != nil {
				return err
			}
			winner = &peer.AgentID
			return nil
		}, composables.WithReadOnly())
	}
	entry := logger
	if winner != nil {
		entry = entry.WithField("winner_agent_id", winner.String())
	}
	entry.Debug("attendance: claim race lost")
	s.publisher.Publish(&events.ClaimConflictEvent{
		SolicitationID: solicitationID,
		StoreID:        storeID,
		LoserAgentID:   loserID,
		WinnerAgentID:  winner,
		OccurredAt:     s.now(),
	})
}

// Unclaim deletes the agent's own claim and reopens the solicitation for its store.
func (s *ClaimService) Unclaim(ctx context.Context, solicitationID, agentID uuid.UUID) error {
	logger := composables.UseLogger(ctx).WithFields(logrus.Fields{
		"solicitation_id": solicitationID,
		"agent_id":        agentID,
	})

	err := s.inTx(ctx, func(txCtx context.Context) error {
		actor, err := s.actors.resolve(txCtx, agentID)
		if err != nil {
			return err
		}
		own, err := findOwnRecord(txCtx, s.records, solicitationID, actor.Agent.ID)
		if err != nil {
			return err
		}
		if !own.IsClaimed() {
			return ErrNotClaimed
		}
		if err := s.records.Delete(txCtx, own.ID); err != nil {
			if errors.Is(err, attendance.ErrRecordNotFound) {
				return ErrNotClaimed
			}
			return storageFailure(err)
		}
		ev := &events.ReopenedV1{
			EventVersion:   events.EventVersionV1,
			RequestID:      requestID(txCtx),
			SolicitationID: solicitationID,
			StoreID:        own.StoreID,
			AgentID:        own.AgentID,
			ReopenedAt:     s.now(),
		}
		if err := s.sink.Enqueue(txCtx, events.TopicReopenedV1, solicitationID, ev); err != nil {
			return storageFailure(err)
		}
		return nil
	}, composables.WithIsoLevel(s.isoLevel))
	if err != nil && !isServiceError(err) {
		err = storageFailure(err)
	}

	recordOperation("unclaim", err)
	logOutcome(logger, "unclaim", err)
	return err
}

func findOwnRecord(ctx context.Context, records attendance.Repository, solicitationID, agentID uuid.UUID) (*attendance.Record, error) {
	rec, err := records.FindByRequestAndAgent(ctx, solicitationID, agentID)
	if err != nil {
		if errors.Is(err, attendance.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storageFailure(err)
	}
	return rec, nil
}

func isServiceError(err error) bool {
	_, ok := asServiceError(err)
	return ok
}

func requestID(ctx context.Context) string {
	id, _ := composables.UseRequestID(ctx)
	return id
}

func claimedEvent(ctx context.Context, r *ClaimResult) *events.ClaimedV1 {
	sol := r.Solicitation
	ev := &events.ClaimedV1{
		EventVersion: events.EventVersionV1,
		RequestID:    requestID(ctx),
		ClaimID:      r.Record.ID,
		ClaimedAt:    r.Record.MarkedAt,
		Solicitation: events.SolicitationV1{
			ID:          sol.ID,
			Description: sol.Description,
			Make:        sol.Vehicle.Make,
			Model:       sol.Vehicle.Model,
			YearFrom:    sol.Vehicle.YearFrom,
			YearTo:      sol.Vehicle.YearTo,
			Category:    sol.Vehicle.Category,
			Color:       sol.Vehicle.Color,
			Plate:       sol.Vehicle.Plate,
			City:        sol.City,
			State:       sol.State,
			CreatedAt:   sol.CreatedAt,
			ImageURLs:   sol.ImageURLs,
		},
		Store: events.PartyV1{ID: r.Store.ID, Name: r.Store.Name, Phone: r.Store.Phone},
		Agent: events.PartyV1{ID: r.Agent.ID, Name: r.Agent.Name, Phone: r.Agent.Phone, Email: r.Agent.Email},
	}
	if c := r.Customer; c != nil {
		ev.Customer = &events.PartyV1{ID: c.ID, Name: c.Name, Phone: c.Phone, Email: c.Email}
	}
	return ev
}
