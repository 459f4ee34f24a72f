package controllers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"

	"github.com/autopeca/marketplace/pkg/application"
	"github.com/autopeca/marketplace/pkg/outbox"
)

type healthStatus string

const (
	healthStatusHealthy  healthStatus = "healthy"
	healthStatusDegraded healthStatus = "degraded"
	healthStatusDown     healthStatus = "down"
)

const (
	outboxPendingDegradedThreshold = int64(1000)
	dbDegradedLatency              = 100 * time.Millisecond
)

type healthResponse struct {
	Status    healthStatus   `json:"status"`
	Timestamp string         `json:"timestamp"`
	Checks    map[string]any `json:"checks"`
}

type componentHealth struct {
	Status       healthStatus   `json:"status"`
	ResponseTime string         `json:"responseTime,omitempty"`
	Error        string         `json:"error,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
}

// healthDB is satisfied by *pgxpool.Pool.
type healthDB interface {
	Ping(ctx context.Context) error
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type HealthController struct {
	db          healthDB
	outboxTable pgx.Identifier
	now         func() time.Time
}

func NewHealthController(app application.Application, outboxTable pgx.Identifier) application.Controller {
	if pool := app.DB(); pool != nil {
		return newHealthController(pool, outboxTable)
	}
	return newHealthController(nil, outboxTable)
}

func newHealthController(db healthDB, outboxTable pgx.Identifier) *HealthController {
	return &HealthController{db: db, outboxTable: outboxTable, now: time.Now}
}

func (c *HealthController) Key() string {
	return "/health"
}

func (c *HealthController) Register(r *mux.Router) {
	r.HandleFunc("/health", c.Get).Methods(http.MethodGet)
}

func (c *HealthController) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]any{}
	overall := healthStatusHealthy

	dbHealth := c.checkDatabase(ctx)
	checks["database"] = dbHealth
	overall = worst(overall, dbHealth.Status)

	if dbHealth.Status != healthStatusDown && len(c.outboxTable) > 0 {
		outboxHealth := c.checkOutbox(ctx)
		checks["outbox"] = outboxHealth
		overall = worst(overall, outboxHealth.Status)
	}

	status := http.StatusOK
	if overall == healthStatusDown {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, healthResponse{
		Status:    overall,
		Timestamp: c.now().UTC().Format(time.RFC3339),
		Checks:    checks,
	})
}

func (c *HealthController) checkDatabase(ctx context.Context) componentHealth {
	if c.db == nil {
		return componentHealth{Status: healthStatusDown, Error: "database pool not configured"}
	}
	start := time.Now()
	if err := c.db.Ping(ctx); err != nil {
		return componentHealth{Status: healthStatusDown, Error: err.Error()}
	}
	elapsed := time.Since(start)
	out := componentHealth{Status: healthStatusHealthy, ResponseTime: elapsed.String()}
	if elapsed > dbDegradedLatency {
		out.Status = healthStatusDegraded
	}
	return out
}

// checkOutbox never reports down; a backlog only degrades the service.
func (c *HealthController) checkOutbox(ctx context.Context) componentHealth {
	query := fmt.Sprintf(
		`SELECT count(*) FROM %s WHERE published_at IS NULL`,
		c.outboxTable.Sanitize(),
	)
	var pending int64
	if err := c.db.QueryRow(ctx, query).Scan(&pending); err != nil {
		return componentHealth{Status: healthStatusDegraded, Error: err.Error()}
	}
	out := componentHealth{
		Status:  healthStatusHealthy,
		Details: map[string]any{"table": outbox.TableLabel(c.outboxTable), "pending": pending},
	}
	if pending > outboxPendingDegradedThreshold {
		out.Status = healthStatusDegraded
	}
	return out
}

func worst(a, b healthStatus) healthStatus {
	rank := func(s healthStatus) int {
		switch s {
		case healthStatusDown:
			return 2
		case healthStatusDegraded:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
