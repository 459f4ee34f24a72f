package server

import (
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"

	"github.com/autopeca/marketplace/pkg/application"
	"github.com/autopeca/marketplace/pkg/configuration"
	"github.com/autopeca/marketplace/pkg/constants"
	"github.com/autopeca/marketplace/pkg/httpapi"
	"github.com/autopeca/marketplace/pkg/middleware"
	"github.com/autopeca/marketplace/pkg/server"
)

type DefaultOptions struct {
	Logger        *logrus.Logger
	Configuration *configuration.Configuration
	Application   application.Application
	Pool          *pgxpool.Pool
}

func Default(options *DefaultOptions) (*server.HTTPServer, error) {
	app := options.Application
	conf := options.Configuration

	middlewares := []mux.MiddlewareFunc{
		// root span and request-scoped logger
		middleware.WithLogger(options.Logger, middleware.LoggerOptionsFrom(conf)),

		middleware.TracedMiddleware("database"),
		middleware.Provide(constants.AppKey, app),
		middleware.Provide(constants.PoolKey, options.Pool),

		middleware.TracedMiddleware("opsGuard"),
		middleware.OpsGuard(middleware.OpsGuardConfig{
			Enabled:      conf.OpsGuardEnabled && conf.GoAppEnvironment == configuration.Production,
			Paths:        []string{"/health", conf.Prometheus.Path},
			CIDRs:        conf.OpsGuardCIDRs,
			Token:        conf.OpsGuardToken,
			RealIPHeader: conf.RealIPHeader,
		}),

		middleware.TracedMiddleware("cors"),
		middleware.Cors(conf.Origins()...),
	}

	if conf.RateLimit.Enabled {
		var store limiter.Store
		var err error

		switch conf.RateLimit.Storage {
		case "redis":
			store, err = middleware.NewRedisStore(conf.RateLimit.RedisURL)
			if err != nil {
				options.Logger.WithError(err).Warn("Failed to create Redis store for rate limiting, falling back to memory")
				store = middleware.NewMemoryStore()
			}
		default:
			store = middleware.NewMemoryStore()
		}

		middlewares = append(middlewares,
			middleware.TracedMiddleware("rateLimit"),
			middleware.RateLimit(middleware.RateLimitConfig{
				RequestsPerPeriod: conf.RateLimit.GlobalRPS,
				Store:             store,
				RealIPHeader:      conf.RealIPHeader,
			}),
		)
	}

	app.RegisterMiddleware(middlewares...)

	return server.NewHTTPServer(app, httpapi.NotFound(), httpapi.MethodNotAllowed()), nil
}
