package dtos

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/form"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/autopeca/marketplace/modules/attendance/domain/aggregates/attendance"
	"github.com/autopeca/marketplace/modules/attendance/domain/aggregates/solicitation"
	"github.com/autopeca/marketplace/modules/attendance/services"
	"github.com/autopeca/marketplace/pkg/composables"
	"github.com/autopeca/marketplace/pkg/constants"
)

// ListQueryDTO is the optional ?limit=&offset= pair of the list endpoints.
type ListQueryDTO struct {
	Limit  int `form:"limit" validate:"gte=0"`
	Offset int `form:"offset" validate:"gte=0"`
}

// ParseListQuery decodes and validates the list query of r. Field errors are
// keyed by query parameter name.
func ParseListQuery(r *http.Request) (*ListQueryDTO, map[string]string) {
	errs := map[string]string{}
	d, err := composables.UseQuery(&ListQueryDTO{}, r)
	if err != nil {
		var derrs form.DecodeErrors
		if !errors.As(err, &derrs) {
			errs["query"] = err.Error()
			return nil, errs
		}
		for field := range derrs {
			errs[strings.ToLower(field)] = "must be an integer"
		}
		return nil, errs
	}
	if ok := d.Ok(errs); !ok {
		return nil, errs
	}
	return d, nil
}

func (d *ListQueryDTO) Ok(errorMessages map[string]string) bool {
	err := constants.Validate.Struct(d)
	if err == nil {
		return true
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		errorMessages["query"] = err.Error()
		return false
	}
	for _, fe := range verrs {
		errorMessages[strings.ToLower(fe.Field())] = fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
	}
	return false
}

func (d *ListQueryDTO) ToPage() services.Page {
	return services.Page{Limit: d.Limit, Offset: d.Offset}
}

type VehicleResponse struct {
	Make     string `json:"make,omitempty"`
	Model    string `json:"model,omitempty"`
	YearFrom *int   `json:"year_from,omitempty"`
	YearTo   *int   `json:"year_to,omitempty"`
	Category string `json:"category,omitempty"`
	Color    string `json:"color,omitempty"`
	Plate    string `json:"plate,omitempty"`
}

type SolicitationResponse struct {
	ID          uuid.UUID       `json:"id"`
	Description string          `json:"description"`
	Vehicle     VehicleResponse `json:"vehicle"`
	City        string          `json:"city"`
	State       string          `json:"state"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	ImageURLs   []string        `json:"image_urls"`
	// set on seen/claimed lists
	RecordID *uuid.UUID `json:"record_id,omitempty"`
	MarkedAt *time.Time `json:"marked_at,omitempty"`
}

type RecordResponse struct {
	ID             uuid.UUID `json:"id"`
	SolicitationID uuid.UUID `json:"solicitation_id"`
	StoreID        uuid.UUID `json:"store_id"`
	AgentID        uuid.UUID `json:"agent_id"`
	Status         string    `json:"status"`
	MarkedAt       time.Time `json:"marked_at"`
}

type PartyResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Phone string    `json:"phone,omitempty"`
	Email string    `json:"email,omitempty"`
}

type ClaimResponse struct {
	Claim        RecordResponse        `json:"claim"`
	Solicitation *SolicitationResponse `json:"solicitation,omitempty"`
	Customer     *PartyResponse        `json:"customer,omitempty"`
}

type SeenResponse struct {
	Seen RecordResponse `json:"seen"`
}

type ReleasedResponse struct {
	SolicitationID uuid.UUID `json:"solicitation_id"`
}

type ListResponse struct {
	Items  []SolicitationResponse `json:"items"`
	Limit  int                    `json:"limit,omitempty"`
	Offset int                    `json:"offset,omitempty"`
}

func ToSolicitationResponse(s *solicitation.Solicitation) SolicitationResponse {
	images := s.ImageURLs
	if images == nil {
		images = []string{}
	}
	return SolicitationResponse{
		ID:          s.ID,
		Description: s.Description,
		Vehicle: VehicleResponse{
			Make:     s.Vehicle.Make,
			Model:    s.Vehicle.Model,
			YearFrom: s.Vehicle.YearFrom,
			YearTo:   s.Vehicle.YearTo,
			Category: s.Vehicle.Category,
			Color:    s.Vehicle.Color,
			Plate:    s.Vehicle.Plate,
		},
		City:      s.City,
		State:     s.State,
		Status:    string(s.Status),
		CreatedAt: s.CreatedAt,
		ImageURLs: images,
	}
}

func ToMarkedResponse(m *solicitation.Marked) SolicitationResponse {
	out := ToSolicitationResponse(m.Solicitation)
	recordID := m.RecordID
	markedAt := m.MarkedAt
	out.RecordID = &recordID
	out.MarkedAt = &markedAt
	return out
}

func ToRecordResponse(r *attendance.Record) RecordResponse {
	return RecordResponse{
		ID:             r.ID,
		SolicitationID: r.SolicitationID,
		StoreID:        r.StoreID,
		AgentID:        r.AgentID,
		Status:         string(r.Status),
		MarkedAt:       r.MarkedAt,
	}
}

func ToClaimResponse(r *services.ClaimResult) ClaimResponse {
	out := ClaimResponse{Claim: ToRecordResponse(r.Record)}
	if r.Solicitation != nil {
		sol := ToSolicitationResponse(r.Solicitation)
		out.Solicitation = &sol
	}
	if c := r.Customer; c != nil {
		out.Customer = &PartyResponse{ID: c.ID, Name: c.Name, Phone: c.Phone, Email: c.Email}
	}
	return out
}
