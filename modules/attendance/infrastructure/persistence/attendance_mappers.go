package persistence

import (
	"github.com/autopeca/marketplace/modules/attendance/domain/aggregates/attendance"
	"github.com/autopeca/marketplace/modules/attendance/domain/aggregates/solicitation"
	"github.com/autopeca/marketplace/modules/attendance/domain/entities/agent"
	"github.com/autopeca/marketplace/modules/attendance/domain/entities/store"
	"github.com/autopeca/marketplace/modules/attendance/infrastructure/persistence/models"
)

func intPtr(v *int32) *int {
	if v == nil {
		return nil
	}
	i := int(*v)
	return &i
}

func toDomainSolicitation(row *models.Solicitation) *solicitation.Solicitation {
	return &solicitation.Solicitation{
		ID:          row.ID,
		CustomerID:  row.CustomerID,
		Description: row.Description,
		Vehicle: solicitation.Vehicle{
			Make:     row.Make,
			Model:    row.Model,
			YearFrom: intPtr(row.YearFrom),
			YearTo:   intPtr(row.YearTo),
			Category: row.Category,
			Color:    row.Color,
			Plate:    row.Plate,
		},
		City:      row.City,
		State:     row.State,
		Status:    solicitation.Status(row.Status),
		CreatedAt: row.CreatedAt,
	}
}

func toDomainCustomer(row *models.Customer) *solicitation.Customer {
	return &solicitation.Customer{
		ID:    row.ID,
		Name:  row.Name,
		Phone: row.Phone,
		Email: row.Email,
	}
}

func toDomainStore(row *models.Store) *store.Store {
	return &store.Store{
		ID:     row.ID,
		Name:   row.Name,
		Phone:  row.Phone,
		City:   row.City,
		State:  row.State,
		Active: row.Active,
	}
}

func toDomainAgent(row *models.Agent) *agent.Agent {
	return &agent.Agent{
		ID:      row.ID,
		StoreID: row.StoreID,
		Name:    row.Name,
		Phone:   row.Phone,
		Email:   row.Email,
		Active:  row.Active,
	}
}

func toDomainRecord(row *models.AttendanceRecord) *attendance.Record {
	return &attendance.Record{
		ID:             row.ID,
		SolicitationID: row.SolicitationID,
		StoreID:        row.StoreID,
		AgentID:        row.AgentID,
		Status:         attendance.Status(row.Status),
		MarkedAt:       row.MarkedAt,
	}
}

func toDBRecord(r *attendance.Record) *models.AttendanceRecord {
	return &models.AttendanceRecord{
		ID:             r.ID,
		SolicitationID: r.SolicitationID,
		StoreID:        r.StoreID,
		AgentID:        r.AgentID,
		Status:         string(r.Status),
		MarkedAt:       r.MarkedAt,
	}
}
