package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	TopicClaimedV1  = "attendance.claimed.v1"
	TopicReopenedV1 = "attendance.reopened.v1"
	EventVersionV1  = 1
)

type SolicitationV1 struct {
	ID          uuid.UUID `json:"id"`
	Description string    `json:"description"`
	Make        string    `json:"make,omitempty"`
	Model       string    `json:"model,omitempty"`
	YearFrom    *int      `json:"year_from,omitempty"`
	YearTo      *int      `json:"year_to,omitempty"`
	Category    string    `json:"category,omitempty"`
	Color       string    `json:"color,omitempty"`
	Plate       string    `json:"plate,omitempty"`
	City        string    `json:"city"`
	State       string    `json:"state"`
	CreatedAt   time.Time `json:"created_at"`
	ImageURLs   []string  `json:"image_urls,omitempty"`
}

type PartyV1 struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Phone string    `json:"phone,omitempty"`
	Email string    `json:"email,omitempty"`
}

// ClaimedV1 is the contact bundle handed to the message-template collaborator.
type ClaimedV1 struct {
	EventVersion int            `json:"event_version"`
	RequestID    string         `json:"request_id,omitempty"`
	ClaimID      uuid.UUID      `json:"claim_id"`
	ClaimedAt    time.Time      `json:"claimed_at"`
	Solicitation SolicitationV1 `json:"solicitation"`
	Store        PartyV1        `json:"store"`
	Agent        PartyV1        `json:"agent"`
	Customer     *PartyV1       `json:"customer,omitempty"`
}

type ReopenedV1 struct {
	EventVersion   int       `json:"event_version"`
	RequestID      string    `json:"request_id,omitempty"`
	SolicitationID uuid.UUID `json:"solicitation_id"`
	StoreID        uuid.UUID `json:"store_id"`
	AgentID        uuid.UUID `json:"agent_id"`
	ReopenedAt     time.Time `json:"reopened_at"`
}

// ClaimConflictEvent is published in-process when a claim loses to a peer of the same store.
// WinnerAgentID is nil when the winner could not be read back.
type ClaimConflictEvent struct {
	SolicitationID uuid.UUID
	StoreID        uuid.UUID
	LoserAgentID   uuid.UUID
	WinnerAgentID  *uuid.UUID
	OccurredAt     time.Time
}
