package attendance

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/autopeca/marketplace/pkg/serrors"
)

type Status string

const (
	StatusSeen    Status = "seen"
	StatusClaimed Status = "claimed"
)

func (s Status) Valid() bool {
	return s == StatusSeen || s == StatusClaimed
}

// Constraint names of the ledger table; the services map unique violations on them.
const (
	ClaimedStoreConstraint = "attendance_records_claimed_store_key"
	AgentConstraint        = "attendance_records_agent_key"
)

var ErrRecordNotFound = serrors.NewError("ATTENDANCE_RECORD_NOT_FOUND", "attendance record not found", "Errors.AttendanceRecordNotFound")

// Record is one agent's interaction with one solicitation. At most one claimed record exists
// per (solicitation, store) and at most one record per (solicitation, agent).
type Record struct {
	ID             uuid.UUID
	SolicitationID uuid.UUID
	StoreID        uuid.UUID
	AgentID        uuid.UUID
	Status         Status
	MarkedAt       time.Time
}

func (r *Record) IsClaimed() bool {
	return r != nil && r.Status == StatusClaimed
}

func (r *Record) IsSeen() bool {
	return r != nil && r.Status == StatusSeen
}

type Repository interface {
	FindByRequestAndAgent(ctx context.Context, solicitationID, agentID uuid.UUID) (*Record, error)
	FindClaimedByRequestAndStore(ctx context.Context, solicitationID, storeID uuid.UUID) (*Record, error)
	// LockStoreClaim blocks until the caller's transaction holds the claim lock of
	// (solicitationID, storeID). The lock is released when the transaction ends.
	LockStoreClaim(ctx context.Context, solicitationID, storeID uuid.UUID) error
	Create(ctx context.Context, record *Record) (*Record, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, markedAt time.Time) (*Record, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// DeleteSeenByRequestAndStore removes seen records of the store's other agents.
	DeleteSeenByRequestAndStore(ctx context.Context, solicitationID, storeID, exceptAgentID uuid.UUID) (int64, error)
	// CountClaimedByAgent counts claims marked at or after since; a zero since counts all.
	CountClaimedByAgent(ctx context.Context, agentID uuid.UUID, since time.Time) (int64, error)
}
