package models

import (
	"time"

	"github.com/google/uuid"
)

type Solicitation struct {
	ID          uuid.UUID
	CustomerID  uuid.UUID
	Description string
	Make        string
	Model       string
	YearFrom    *int32
	YearTo      *int32
	Category    string
	Color       string
	Plate       string
	City        string
	State       string
	Status      string
	CreatedAt   time.Time
}

type SolicitationImage struct {
	ID             uuid.UUID
	SolicitationID uuid.UUID
	URL            string
	Position       int32
}

type Customer struct {
	ID    uuid.UUID
	Name  string
	Phone string
	Email string
}

type Store struct {
	ID     uuid.UUID
	Name   string
	Phone  string
	City   string
	State  string
	Active bool
}

type Agent struct {
	ID      uuid.UUID
	StoreID uuid.UUID
	Name    string
	Phone   string
	Email   string
	Active  bool
}

type AttendanceRecord struct {
	ID             uuid.UUID
	SolicitationID uuid.UUID
	StoreID        uuid.UUID
	AgentID        uuid.UUID
	Status         string
	MarkedAt       time.Time
}
