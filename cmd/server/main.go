package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autopeca/marketplace/internal/server"
	"github.com/autopeca/marketplace/modules"
	"github.com/autopeca/marketplace/pkg/application"
	"github.com/autopeca/marketplace/pkg/configuration"
	"github.com/autopeca/marketplace/pkg/eventbus"
	"github.com/autopeca/marketplace/pkg/logging"
	"github.com/autopeca/marketplace/pkg/metrics"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			configuration.Use().Unload()
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	defer conf.Unload()
	logger := conf.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if conf.OpenTelemetry.Enabled {
		tracingCleanup := logging.SetupTracing(ctx, conf.OpenTelemetry.ServiceName, conf.OpenTelemetry.TempoURL)
		defer tracingCleanup()
		logger.Info("OpenTelemetry tracing enabled, exporting to Tempo at " + conf.OpenTelemetry.TempoURL)
	}

	pool, err := newPool(ctx, conf)
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	app := application.New(&application.ApplicationOptions{
		Pool:     pool,
		EventBus: eventbus.NewEventPublisher(logger),
		Logger:   logger,
	})
	if err := modules.Load(app, modules.BuiltInModules(conf)...); err != nil {
		log.Fatalf("failed to load modules: %v", err)
	}

	server.StartOutboxBackground(ctx, conf, pool, logger, app.EventPublisher())

	if conf.Prometheus.Enabled {
		app.RegisterControllers(metrics.NewPrometheusController(conf.Prometheus.Path))
	}
	serverInstance, err := server.Default(&server.DefaultOptions{
		Logger:        logger,
		Configuration: conf,
		Application:   app,
		Pool:          pool,
	})
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}
	log.Printf("Listening on: %s\n", conf.SocketAddress)
	if err := serverInstance.Start(ctx, conf.SocketAddress); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}

func newPool(ctx context.Context, conf *configuration.Configuration) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(conf.Database.Opts)
	if err != nil {
		return nil, err
	}
	if conf.Database.MaxConns > 0 {
		cfg.MaxConns = conf.Database.MaxConns
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return pgxpool.NewWithConfig(ctx, cfg)
}
