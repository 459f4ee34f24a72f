package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/autopeca/marketplace/modules/attendance/domain/aggregates/attendance"
	"github.com/autopeca/marketplace/modules/attendance/domain/aggregates/solicitation"
	"github.com/autopeca/marketplace/modules/attendance/domain/entities/agent"
	"github.com/autopeca/marketplace/modules/attendance/domain/entities/store"
	"github.com/autopeca/marketplace/pkg/composables"
)

// SeenService manages an agent's private "seen" markers. Markers never affect other agents.
type SeenService struct {
	solicitations solicitation.Repository
	records       attendance.Repository
	actors        actorResolver

	inTx txRunner
	now  func() time.Time
}

func NewSeenService(
	solicitations solicitation.Repository,
	records attendance.Repository,
	agents agent.Repository,
	stores store.Repository,
) *SeenService {
	return &SeenService{
		solicitations: solicitations,
		records:       records,
		actors:        actorResolver{agents: agents, stores: stores},
		inTx:          composables.InTx,
		now:           time.Now,
	}
}

// MarkSeen hides the solicitation from the agent's available list. created is false when the
// agent had already marked it.
func (s *SeenService) MarkSeen(ctx context.Context, solicitationID, agentID uuid.UUID) (rec *attendance.Record, created bool, err error) {
	logger := composables.UseLogger(ctx).WithFields(logrus.Fields{
		"solicitation_id": solicitationID,
		"agent_id":        agentID,
	})
	defer func() {
		recordOperation("mark_seen", err)
		logOutcome(logger, "mark_seen", err)
	}()

	err = s.inTx(ctx, func(txCtx context.Context) error {
		actor, err := s.actors.resolve(txCtx, agentID)
		if err != nil {
			return err
		}
		sol, err := s.solicitations.GetByID(txCtx, solicitationID)
		if err != nil {
			if errors.Is(err, solicitation.ErrNotFound) {
				return ErrRequestUnavailable
			}
			return storageFailure(err)
		}
		if !IsEligible(actor.Store, sol) {
			return ErrIneligible
		}

		own, err := findOwnRecord(txCtx, s.records, solicitationID, actor.Agent.ID)
		if err != nil {
			return err
		}
		switch {
		case own.IsClaimed():
			return ErrAlreadyClaimed
		case own != nil:
			rec = own
			return nil
		}

		rec, err = s.records.Create(txCtx, &attendance.Record{
			SolicitationID: solicitationID,
			StoreID:        actor.Store.ID,
			AgentID:        actor.Agent.ID,
			Status:         attendance.StatusSeen,
			MarkedAt:       s.now(),
		})
		if err != nil {
			return mapWriteError(err)
		}
		created = true
		return nil
	})

	if err != nil && isUniqueViolation(err, attendance.AgentConstraint) {
		// A concurrent markSeen of the same agent won; its record is the answer.
		rec, err = s.reread(ctx, solicitationID, agentID, err)
		return rec, false, err
	}
	if err != nil {
		if !isServiceError(err) {
			err = storageFailure(err)
		}
		return nil, false, err
	}
	return rec, created, nil
}

func (s *SeenService) reread(ctx context.Context, solicitationID, agentID uuid.UUID, cause error) (*attendance.Record, error) {
	rec, err := inTxResult(ctx, s.inTx, func(txCtx context.Context) (*attendance.Record, error) {
		return findOwnRecord(txCtx, s.records, solicitationID, agentID)
	}, composables.WithReadOnly())
	switch {
	case err != nil:
		return nil, storageFailure(errors.Join(cause, err))
	case rec == nil:
		return nil, storageFailure(cause)
	case rec.IsClaimed():
		return nil, ErrAlreadyClaimed
	default:
		return rec, nil
	}
}

// UnmarkSeen deletes the agent's seen marker so the solicitation shows up as available again.
func (s *SeenService) UnmarkSeen(ctx context.Context, solicitationID, agentID uuid.UUID) (err error) {
	logger := composables.UseLogger(ctx).WithFields(logrus.Fields{
		"solicitation_id": solicitationID,
		"agent_id":        agentID,
	})
	defer func() {
		recordOperation("unmark_seen", err)
		logOutcome(logger, "unmark_seen", err)
	}()

	err = s.inTx(ctx, func(txCtx context.Context) error {
		actor, err := s.actors.resolve(txCtx, agentID)
		if err != nil {
			return err
		}
		own, err := findOwnRecord(txCtx, s.records, solicitationID, actor.Agent.ID)
		if err != nil {
			return err
		}
		if !own.IsSeen() {
			return ErrNotSeen
		}
		if err := s.records.Delete(txCtx, own.ID); err != nil {
			if errors.Is(err, attendance.ErrRecordNotFound) {
				return ErrNotSeen
			}
			return storageFailure(err)
		}
		return nil
	})
	if err != nil && !isServiceError(err) {
		err = storageFailure(err)
	}
	return err
}
