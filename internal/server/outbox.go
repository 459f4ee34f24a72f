package server

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/autopeca/marketplace/pkg/configuration"
	"github.com/autopeca/marketplace/pkg/eventbus"
	"github.com/autopeca/marketplace/pkg/outbox"
	eventbusdispatcher "github.com/autopeca/marketplace/pkg/outbox/dispatchers/eventbus"
)

// NewRelays builds one relay per OUTBOX_RELAY_TABLES entry, all dispatching into bus.
func NewRelays(conf *configuration.Configuration, pool *pgxpool.Pool, logger *logrus.Logger, bus eventbus.EventBusWithError) ([]*outbox.Relay, error) {
	tables, err := outbox.ParseIdentifierList(conf.Outbox.RelayTables)
	if err != nil {
		return nil, err
	}
	log := logger.WithField("component", "outbox")
	dispatcher := eventbusdispatcher.New(bus)

	relays := make([]*outbox.Relay, 0, len(tables))
	for _, table := range tables {
		relay, err := outbox.NewRelay(pool, table, dispatcher, outbox.RelayOptions{
			PollInterval:    conf.Outbox.RelayPollInterval,
			BatchSize:       conf.Outbox.RelayBatchSize,
			LockTTL:         conf.Outbox.RelayLockTTL,
			MaxAttempts:     conf.Outbox.RelayMaxAttempts,
			SingleActive:    conf.Outbox.RelaySingleActive,
			LastErrorMaxLen: conf.Outbox.LastErrorMaxBytes,
			DispatchTimeout: conf.Outbox.RelayDispatchTimeout,
			Logger:          log.WithField("table", outbox.TableLabel(table)),
		})
		if err != nil {
			return nil, err
		}
		relays = append(relays, relay)
	}
	return relays, nil
}

// StartOutboxBackground runs the relays and cleaners until ctx is cancelled. Misconfiguration
// is logged and disables the affected worker without stopping the server.
func StartOutboxBackground(
	ctx context.Context,
	conf *configuration.Configuration,
	pool *pgxpool.Pool,
	logger *logrus.Logger,
	bus eventbus.EventBusWithError,
) {
	log := logger.WithField("component", "outbox")

	if conf.Outbox.RelayEnabled {
		relays, err := NewRelays(conf, pool, logger, bus)
		if err != nil {
			log.WithError(err).Warn("outbox: relay disabled")
		}
		if err == nil && len(relays) == 0 {
			log.Info("outbox: relay enabled but OUTBOX_RELAY_TABLES is empty")
		}
		for _, relay := range relays {
			go func(r *outbox.Relay) {
				if err := r.Run(ctx); err != nil && ctx.Err() == nil {
					log.WithError(err).Error("outbox: relay stopped")
				}
			}(relay)
		}
	}

	if !conf.Outbox.CleanerEnabled {
		return
	}
	raw := conf.Outbox.CleanerTables
	if raw == "" {
		raw = conf.Outbox.RelayTables
	}
	tables, err := outbox.ParseIdentifierList(raw)
	if err != nil {
		log.WithError(err).Warn("outbox: invalid OUTBOX_CLEANER_TABLES; cleaner disabled")
		return
	}
	if len(tables) == 0 {
		log.Info("outbox: cleaner enabled but no tables configured")
		return
	}
	for _, table := range tables {
		startCleaner(ctx, conf, pool, table, log)
	}
}

func startCleaner(ctx context.Context, conf *configuration.Configuration, pool *pgxpool.Pool, table pgx.Identifier, log *logrus.Entry) {
	cleaner, err := outbox.NewCleaner(pool, table, outbox.CleanerOptions{
		Enabled:               true,
		Interval:              conf.Outbox.CleanerInterval,
		Retention:             conf.Outbox.CleanerRetention,
		DeadRetention:         conf.Outbox.CleanerDeadRetention,
		DeadAttemptsThreshold: conf.Outbox.RelayMaxAttempts,
		Logger:                log.WithField("table", outbox.TableLabel(table)),
	})
	if err != nil {
		log.WithError(err).Warn("outbox: failed to create cleaner")
		return
	}
	go func() {
		if err := cleaner.Run(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("outbox: cleaner stopped")
		}
	}()
}
