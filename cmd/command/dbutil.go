package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autopeca/marketplace/modules"
	"github.com/autopeca/marketplace/pkg/application"
	"github.com/autopeca/marketplace/pkg/configuration"
	"github.com/autopeca/marketplace/pkg/eventbus"
)

func connectDB(ctx context.Context, conf *configuration.Configuration) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	if err != nil {
		return nil, fmt.Errorf("db connect failed: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping failed: %w", err)
	}
	return pool, nil
}

// loadApp connects and registers the built-in modules. The caller closes the pool.
func loadApp(ctx context.Context) (application.Application, *pgxpool.Pool, error) {
	conf := configuration.Use()
	pool, err := connectDB(ctx, conf)
	if err != nil {
		return nil, nil, err
	}
	app := application.New(&application.ApplicationOptions{
		Pool:     pool,
		EventBus: eventbus.NewEventPublisher(conf.Logger()),
		Logger:   conf.Logger(),
	})
	if err := modules.Load(app, modules.BuiltInModules(conf)...); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("load modules: %w", err)
	}
	return app, pool, nil
}
