package composables

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/autopeca/marketplace/pkg/constants"
)

var (
	ErrNoLogger  = errors.New("logger not found")
	ErrNoAgentID = errors.New("agent id not found in context")
)

type Params struct {
	IP        string
	UserAgent string
	RequestID string
	Request   *http.Request
	Writer    http.ResponseWriter
}

// UseParams returns the request parameters from the context.
// If the parameters are not found, the second return value will be false.
func UseParams(ctx context.Context) (*Params, bool) {
	params, ok := ctx.Value(constants.ParamsKey).(*Params)
	return params, ok
}

// WithParams returns a new context with the request parameters.
func WithParams(ctx context.Context, params *Params) context.Context {
	return context.WithValue(ctx, constants.ParamsKey, params)
}

// UseLogger returns the request logger. Outside a request it returns the standard logger
// so background work (relay, CLI) never panics.
func UseLogger(ctx context.Context) *logrus.Entry {
	if logger, ok := ctx.Value(constants.LoggerKey).(*logrus.Entry); ok && logger != nil {
		return logger
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, constants.LoggerKey, logger)
}

func UseIP(ctx context.Context) (string, bool) {
	params, ok := UseParams(ctx)
	if !ok {
		return "", false
	}
	return params.IP, true
}

func UseRequestID(ctx context.Context) (string, bool) {
	params, ok := UseParams(ctx)
	if !ok || params.RequestID == "" {
		return "", false
	}
	return params.RequestID, true
}

// WithAgentID binds the authenticated agent to the context.
func WithAgentID(ctx context.Context, agentID uuid.UUID) context.Context {
	return context.WithValue(ctx, constants.AgentIDKey, agentID)
}

// UseAgentID returns the agent id set by the identity middleware.
func UseAgentID(ctx context.Context) (uuid.UUID, error) {
	id, ok := ctx.Value(constants.AgentIDKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, ErrNoAgentID
	}
	return id, nil
}

// UseQuery decodes the request's query string into v using its form tags.
func UseQuery[T any](v T, r *http.Request) (T, error) {
	return v, constants.Decoder.Decode(v, r.URL.Query())
}
