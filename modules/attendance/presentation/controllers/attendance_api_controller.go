package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/autopeca/marketplace/modules/attendance/presentation/controllers/dtos"
	"github.com/autopeca/marketplace/modules/attendance/services"
	"github.com/autopeca/marketplace/pkg/application"
	"github.com/autopeca/marketplace/pkg/composables"
	"github.com/autopeca/marketplace/pkg/httpapi"
	"github.com/autopeca/marketplace/pkg/middleware"
)

type AttendanceAPIController struct {
	claims        *services.ClaimService
	seen          *services.SeenService
	visibility    *services.VisibilityService
	dashboard     *services.DashboardService
	apiPrefix     string
	agentIDHeader string
}

func NewAttendanceAPIController(app application.Application, agentIDHeader string) application.Controller {
	if agentIDHeader == "" {
		agentIDHeader = "X-Agent-ID"
	}
	return &AttendanceAPIController{
		claims:        app.Service(services.ClaimService{}).(*services.ClaimService),
		seen:          app.Service(services.SeenService{}).(*services.SeenService),
		visibility:    app.Service(services.VisibilityService{}).(*services.VisibilityService),
		dashboard:     app.Service(services.DashboardService{}).(*services.DashboardService),
		apiPrefix:     "/attendance/api",
		agentIDHeader: agentIDHeader,
	}
}

func (c *AttendanceAPIController) Key() string {
	return c.apiPrefix
}

func (c *AttendanceAPIController) Register(r *mux.Router) {
	api := r.PathPrefix(c.apiPrefix).Subrouter()
	// a subrouter reports a method mismatch as a miss unless it has its own handler
	api.MethodNotAllowedHandler = httpapi.MethodNotAllowed()
	api.Use(middleware.AgentIdentity(c.agentIDHeader))

	// static list routes first so "available" is never parsed as an id
	api.HandleFunc("/solicitations/available", c.ListAvailable).Methods(http.MethodGet)
	api.HandleFunc("/solicitations/seen", c.ListSeen).Methods(http.MethodGet)
	api.HandleFunc("/solicitations/claimed", c.ListClaimed).Methods(http.MethodGet)

	api.HandleFunc("/solicitations/{id}/claim", c.Claim).Methods(http.MethodPost)
	api.HandleFunc("/solicitations/{id}/claim", c.Unclaim).Methods(http.MethodDelete)
	api.HandleFunc("/solicitations/{id}/seen", c.MarkSeen).Methods(http.MethodPost)
	api.HandleFunc("/solicitations/{id}/seen", c.UnmarkSeen).Methods(http.MethodDelete)

	api.HandleFunc("/dashboard", c.Dashboard).Methods(http.MethodGet)
}

func (c *AttendanceAPIController) Claim(w http.ResponseWriter, r *http.Request) {
	agentID, solicitationID, requestID, ok := requireAgentAndSolicitation(w, r)
	if !ok {
		return
	}
	res, err := c.claims.Claim(r.Context(), solicitationID, agentID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, dtos.ToClaimResponse(res))
	case errors.Is(err, services.ErrAlreadyClaimedBySelf) && res != nil:
		writeJSON(w, http.StatusOK, dtos.ToClaimResponse(res))
	default:
		writeServiceError(w, requestID, err)
	}
}

func (c *AttendanceAPIController) Unclaim(w http.ResponseWriter, r *http.Request) {
	agentID, solicitationID, requestID, ok := requireAgentAndSolicitation(w, r)
	if !ok {
		return
	}
	if err := c.claims.Unclaim(r.Context(), solicitationID, agentID); err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, dtos.ReleasedResponse{SolicitationID: solicitationID})
}

func (c *AttendanceAPIController) MarkSeen(w http.ResponseWriter, r *http.Request) {
	agentID, solicitationID, requestID, ok := requireAgentAndSolicitation(w, r)
	if !ok {
		return
	}
	rec, created, err := c.seen.MarkSeen(r.Context(), solicitationID, agentID)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, dtos.SeenResponse{Seen: dtos.ToRecordResponse(rec)})
}

func (c *AttendanceAPIController) UnmarkSeen(w http.ResponseWriter, r *http.Request) {
	agentID, solicitationID, requestID, ok := requireAgentAndSolicitation(w, r)
	if !ok {
		return
	}
	if err := c.seen.UnmarkSeen(r.Context(), solicitationID, agentID); err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, dtos.ReleasedResponse{SolicitationID: solicitationID})
}

func (c *AttendanceAPIController) ListAvailable(w http.ResponseWriter, r *http.Request) {
	agentID, query, requestID, ok := requireAgentAndQuery(w, r)
	if !ok {
		return
	}
	list, err := c.visibility.ListAvailable(r.Context(), agentID, query.ToPage())
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	items := make([]dtos.SolicitationResponse, 0, len(list))
	for _, s := range list {
		items = append(items, dtos.ToSolicitationResponse(s))
	}
	writeJSON(w, http.StatusOK, dtos.ListResponse{Items: items, Limit: query.Limit, Offset: query.Offset})
}

func (c *AttendanceAPIController) ListSeen(w http.ResponseWriter, r *http.Request) {
	c.listMarked(w, r, c.visibility.ListSeen)
}

func (c *AttendanceAPIController) ListClaimed(w http.ResponseWriter, r *http.Request) {
	c.listMarked(w, r, c.visibility.ListClaimed)
}

func (c *AttendanceAPIController) listMarked(w http.ResponseWriter, r *http.Request, list markedLister) {
	agentID, query, requestID, ok := requireAgentAndQuery(w, r)
	if !ok {
		return
	}
	marked, err := list(r.Context(), agentID, query.ToPage())
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	items := make([]dtos.SolicitationResponse, 0, len(marked))
	for _, m := range marked {
		items = append(items, dtos.ToMarkedResponse(m))
	}
	writeJSON(w, http.StatusOK, dtos.ListResponse{Items: items, Limit: query.Limit, Offset: query.Offset})
}

func (c *AttendanceAPIController) Dashboard(w http.ResponseWriter, r *http.Request) {
	requestID := useRequestID(r)
	agentID, err := composables.UseAgentID(r.Context())
	if err != nil {
		writeAPIError(w, http.StatusUnauthorized, requestID, "AGENT_UNAUTHENTICATED", "missing or invalid agent identity")
		return
	}
	stats, err := c.dashboard.Stats(r.Context(), agentID)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func requireAgentAndSolicitation(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, string, bool) {
	requestID := useRequestID(r)
	agentID, err := composables.UseAgentID(r.Context())
	if err != nil {
		writeAPIError(w, http.StatusUnauthorized, requestID, "AGENT_UNAUTHENTICATED", "missing or invalid agent identity")
		return uuid.Nil, uuid.Nil, requestID, false
	}
	solicitationID, err := uuid.Parse(strings.TrimSpace(mux.Vars(r)["id"]))
	if err != nil || solicitationID == uuid.Nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "INVALID_SOLICITATION_ID", "solicitation id must be a uuid")
		return uuid.Nil, uuid.Nil, requestID, false
	}
	return agentID, solicitationID, requestID, true
}

func requireAgentAndQuery(w http.ResponseWriter, r *http.Request) (uuid.UUID, *dtos.ListQueryDTO, string, bool) {
	requestID := useRequestID(r)
	agentID, err := composables.UseAgentID(r.Context())
	if err != nil {
		writeAPIError(w, http.StatusUnauthorized, requestID, "AGENT_UNAUTHENTICATED", "missing or invalid agent identity")
		return uuid.Nil, nil, requestID, false
	}
	query, errs := dtos.ParseListQuery(r)
	if len(errs) > 0 {
		writeAPIErrorMeta(w, http.StatusBadRequest, requestID, "INVALID_QUERY", "invalid list parameters", errs)
		return uuid.Nil, nil, requestID, false
	}
	return agentID, query, requestID, true
}

func useRequestID(r *http.Request) string {
	id, _ := composables.UseRequestID(r.Context())
	return id
}

func writeServiceError(w http.ResponseWriter, requestID string, err error) {
	var svcErr *services.ServiceError
	if errors.As(err, &svcErr) && svcErr.Expected() {
		writeAPIError(w, svcErr.Status, requestID, svcErr.Code, svcErr.Message)
		return
	}
	writeAPIError(w, http.StatusInternalServerError, requestID, services.ErrStorageFailure.Code, "internal error")
}

func writeAPIError(w http.ResponseWriter, status int, requestID, code, message string) {
	writeAPIErrorMeta(w, status, requestID, code, message, nil)
}

func writeAPIErrorMeta(w http.ResponseWriter, status int, requestID, code, message string, extra map[string]string) {
	meta := map[string]string{}
	for k, v := range extra {
		meta[k] = v
	}
	if requestID != "" {
		meta["request_id"] = requestID
	}
	_ = httpapi.WriteError(w, status, code, message, meta)
}

func writeJSON[T any](w http.ResponseWriter, status int, payload T) {
	_ = httpapi.WriteJSON(w, status, payload)
}
