package solicitation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/autopeca/marketplace/pkg/serrors"
)

type Status string

const (
	StatusActive            Status = "active"
	StatusFulfilledByClient Status = "fulfilled_by_client"
	StatusCancelled         Status = "cancelled"
)

var ErrNotFound = serrors.NewError("SOLICITATION_NOT_FOUND", "solicitation not found", "Errors.SolicitationNotFound")

// Vehicle is carried through unchanged; nothing in attendance interprets it.
type Vehicle struct {
	Make     string `json:"make,omitempty"`
	Model    string `json:"model,omitempty"`
	YearFrom *int   `json:"year_from,omitempty"`
	YearTo   *int   `json:"year_to,omitempty"`
	Category string `json:"category,omitempty"`
	Color    string `json:"color,omitempty"`
	Plate    string `json:"plate,omitempty"`
}

type Solicitation struct {
	ID          uuid.UUID
	CustomerID  uuid.UUID
	Description string
	Vehicle     Vehicle
	City        string
	State       string
	Status      Status
	CreatedAt   time.Time
	ImageURLs   []string
}

func (s *Solicitation) IsActive() bool {
	return s != nil && s.Status == StatusActive
}

// Customer is the contact side of a solicitation, read only to build the contact bundle.
type Customer struct {
	ID    uuid.UUID
	Name  string
	Phone string
	Email string
}

// Marked is a solicitation seen through one agent's attendance record.
type Marked struct {
	Solicitation *Solicitation
	RecordID     uuid.UUID
	MarkedAt     time.Time
}

// AvailableParams selects active solicitations in a store's area that the store has not
// claimed and the agent has not seen.
type AvailableParams struct {
	City    string
	State   string
	StoreID uuid.UUID
	AgentID uuid.UUID
	Limit   int
	Offset  int
}

type MarkedStatus string

const (
	MarkedSeen    MarkedStatus = "seen"
	MarkedClaimed MarkedStatus = "claimed"
)

// MarkedParams selects solicitations behind an agent's records. When EligibleOnly is set the
// rows are re-filtered to active solicitations in City/State.
type MarkedParams struct {
	AgentID      uuid.UUID
	Status       MarkedStatus
	EligibleOnly bool
	City         string
	State        string
	Limit        int
	Offset       int
}

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Solicitation, error)
	GetCustomer(ctx context.Context, id uuid.UUID) (*Customer, error)
	ListAvailable(ctx context.Context, params *AvailableParams) ([]*Solicitation, error)
	CountAvailable(ctx context.Context, params *AvailableParams) (int64, error)
	ListMarked(ctx context.Context, params *MarkedParams) ([]*Marked, error)
	CountMarked(ctx context.Context, params *MarkedParams) (int64, error)
}
