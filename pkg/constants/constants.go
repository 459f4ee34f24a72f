package constants

import (
	"github.com/go-playground/form"
	"github.com/go-playground/validator/v10"
)

type contextKey string

const (
	TxKey        contextKey = "tx"
	PoolKey      contextKey = "pool"
	LoggerKey    contextKey = "logger"
	AppKey       contextKey = "app"
	ParamsKey    contextKey = "params"
	RequestStart contextKey = "requestStart"
	AgentIDKey   contextKey = "agentID"
)

var (
	Validate = validator.New(validator.WithRequiredStructEnabled())
	Decoder  = form.NewDecoder()
)
