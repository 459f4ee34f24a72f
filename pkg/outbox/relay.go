package outbox

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/autopeca/marketplace/pkg/composables"
)

// conn is what the relay needs from either the pool or a pinned leader connection.
type conn interface {
	composables.TxBeginner
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Relay moves unpublished rows of one outbox table into a Dispatcher.
type Relay struct {
	pool       *pgxpool.Pool
	table      pgx.Identifier
	dispatcher Dispatcher
	opts       RelayOptions

	lockKey    int64
	tableLabel string
	m          *metrics
}

func NewRelay(pool *pgxpool.Pool, table pgx.Identifier, dispatcher Dispatcher, opts RelayOptions) (*Relay, error) {
	switch {
	case pool == nil:
		return nil, invalidConfig("pool is required")
	case len(table) == 0:
		return nil, invalidConfig("table is required")
	case dispatcher == nil:
		return nil, invalidConfig("dispatcher is required")
	}
	opts.setDefaults()

	label := TableLabel(table)
	return &Relay{
		pool:       pool,
		table:      table,
		dispatcher: dispatcher,
		opts:       opts,
		lockKey:    advisoryLockKey("outbox:" + label),
		tableLabel: label,
		m:          getMetrics(),
	}, nil
}

// Run blocks until ctx is done. With SingleActive only the holder of the table's advisory
// lock processes batches; the others keep polling for the lock.
func (r *Relay) Run(ctx context.Context) error {
	if !r.opts.SingleActive {
		r.m.relayLeader.WithLabelValues(r.tableLabel).Set(1)
		return r.loop(ctx, r.pool)
	}

	for {
		held, err := r.lead(ctx)
		if held || ctx.Err() != nil {
			return err
		}
		if err := sleepCtx(ctx, r.opts.PollInterval); err != nil {
			return err
		}
	}
}

// RunOnce processes a single batch on the pool and reports how many messages were handled.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	return r.processBatch(ctx, r.pool)
}

func (r *Relay) lead(ctx context.Context) (bool, error) {
	pinned, err := r.pool.Acquire(ctx)
	if err != nil {
		r.opts.Logger.WithError(err).Warn("outbox: failed to acquire connection for single-active relay")
		return false, nil
	}
	defer pinned.Release()

	var ok bool
	if err := pinned.QueryRow(ctx, `SELECT pg_try_advisory_lock($1::bigint)`, r.lockKey).Scan(&ok); err != nil {
		r.opts.Logger.WithError(err).Warn("outbox: failed to attempt advisory lock")
		return false, nil
	}
	if !ok {
		r.m.relayLeader.WithLabelValues(r.tableLabel).Set(0)
		return false, nil
	}

	r.m.relayLeader.WithLabelValues(r.tableLabel).Set(1)
	r.opts.Logger.WithField("table", r.tableLabel).Info("outbox: relay became leader")
	defer func() {
		r.m.relayLeader.WithLabelValues(r.tableLabel).Set(0)
		var released bool
		_ = pinned.QueryRow(context.Background(), `SELECT pg_advisory_unlock($1::bigint)`, r.lockKey).Scan(&released)
	}()
	return true, r.loop(ctx, pinned)
}

func (r *Relay) loop(ctx context.Context, db conn) error {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	var nextDepthAt time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if now := time.Now(); now.After(nextDepthAt) {
			if err := r.observeQueueDepth(ctx, db); err != nil {
				r.opts.Logger.WithError(err).Debug("outbox: observe queue depth failed")
			}
			nextDepthAt = now.Add(r.opts.ObserveQueueDepthEvery)
		}

		if _, err := r.processBatch(ctx, db); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			r.opts.Logger.WithError(err).Warn("outbox: process tick failed")
		}
	}
}

type claimedRow struct {
	ID          uuid.UUID
	AggregateID uuid.UUID
	Topic       string
	Payload     []byte
	EventID     uuid.UUID
	Sequence    int64
	Attempts    int
}

func (c claimedRow) fields(table string) logrus.Fields {
	return logrus.Fields{
		"table":        table,
		"topic":        c.Topic,
		"event_id":     c.EventID.String(),
		"aggregate_id": c.AggregateID.String(),
		"sequence":     c.Sequence,
		"attempts":     c.Attempts,
	}
}

func (r *Relay) processBatch(ctx context.Context, db conn) (int, error) {
	now := time.Now()
	rows, err := r.claim(ctx, db, now, now.Add(-r.opts.LockTTL))
	if err != nil {
		return 0, err
	}

	for _, c := range rows {
		err := r.dispatch(ctx, c)
		log := r.opts.Logger.WithFields(c.fields(r.tableLabel))
		switch {
		case err == nil:
			if sErr := r.settle(ctx, db, c.ID, statePublished, "", time.Time{}); sErr != nil {
				log.WithError(sErr).Warn("outbox: ack failed")
			}
		case c.Attempts >= r.opts.MaxAttempts:
			r.m.deadTotal.WithLabelValues(r.tableLabel, c.Topic).Inc()
			log.WithError(err).Error("outbox: message is dead")
			if sErr := r.settle(ctx, db, c.ID, stateDead, truncateError(err, r.opts.LastErrorMaxLen), time.Time{}); sErr != nil {
				log.WithError(sErr).Warn("outbox: dead update failed")
			}
		default:
			next := time.Now().Add(backoff(c.Attempts, r.opts.MaxBackoff) + jitter(r.opts.Rand, r.opts.JitterMax))
			if sErr := r.settle(ctx, db, c.ID, stateRetry, truncateError(err, r.opts.LastErrorMaxLen), next); sErr != nil {
				log.WithError(sErr).Warn("outbox: nack failed")
			}
		}
	}
	return len(rows), nil
}

func (r *Relay) dispatch(ctx context.Context, c claimedRow) error {
	if r.opts.DispatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.DispatchTimeout)
		defer cancel()
	}

	start := time.Now()
	err := r.dispatcher.Dispatch(ctx, DispatchedMessage{
		Meta: Meta{
			Table:       r.table,
			AggregateID: c.AggregateID,
			Topic:       c.Topic,
			EventID:     c.EventID,
			Sequence:    c.Sequence,
			Attempts:    c.Attempts,
		},
		Payload: c.Payload,
	})

	result := "success"
	if err != nil {
		result = "failure"
	}
	r.m.dispatchTotal.WithLabelValues(r.tableLabel, c.Topic, result).Inc()
	r.m.dispatchLatency.WithLabelValues(r.tableLabel, c.Topic, result).Observe(time.Since(start).Seconds())
	return err
}

// claim locks up to BatchSize due rows and bumps their attempt counter in one transaction.
func (r *Relay) claim(ctx context.Context, db conn, now, lockCutoff time.Time) ([]claimedRow, error) {
	table := r.table.Sanitize()
	selectQ := fmt.Sprintf(
		`SELECT id, aggregate_id, topic, payload, event_id, sequence, attempts
		   FROM %s
		  WHERE published_at IS NULL
		    AND available_at <= $1
		    AND attempts < $2
		    AND (locked_at IS NULL OR locked_at < $3)
		  ORDER BY available_at, sequence
		  LIMIT $4
		  FOR UPDATE SKIP LOCKED`,
		table,
	)
	updateQ := fmt.Sprintf(`UPDATE %s SET locked_at = $1, attempts = attempts + 1 WHERE id = ANY($2)`, table)

	var out []claimedRow
	err := composables.InTxWith(ctx, db, func(txCtx context.Context) error {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return err
		}
		rows, err := tx.Query(txCtx, selectQ, now, r.opts.MaxAttempts, lockCutoff, r.opts.BatchSize)
		if err != nil {
			return fmt.Errorf("outbox claim select: %w", err)
		}
		defer rows.Close()

		ids := make([]uuid.UUID, 0, r.opts.BatchSize)
		for rows.Next() {
			var c claimedRow
			if err := rows.Scan(&c.ID, &c.AggregateID, &c.Topic, &c.Payload, &c.EventID, &c.Sequence, &c.Attempts); err != nil {
				return fmt.Errorf("outbox claim scan: %w", err)
			}
			c.Attempts++
			out = append(out, c)
			ids = append(ids, c.ID)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("outbox claim rows: %w", err)
		}
		rows.Close()

		if len(ids) == 0 {
			return nil
		}
		if _, err := tx.Exec(txCtx, updateQ, now, pgtype.FlatArray[uuid.UUID](ids)); err != nil {
			return fmt.Errorf("outbox claim update: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type deliveryState int

const (
	statePublished deliveryState = iota
	stateRetry
	stateDead
)

func (r *Relay) settle(ctx context.Context, db conn, id uuid.UUID, state deliveryState, lastError string, nextAvailable time.Time) error {
	table := r.table.Sanitize()
	var (
		q    string
		args []any
	)
	switch state {
	case statePublished:
		q = `UPDATE %s SET published_at = now(), locked_at = NULL, last_error = NULL WHERE id = $1 AND published_at IS NULL`
		args = []any{id}
	case stateRetry:
		q = `UPDATE %s SET locked_at = NULL, last_error = $2, available_at = $3 WHERE id = $1 AND published_at IS NULL`
		args = []any{id, lastError, nextAvailable}
	case stateDead:
		q = `UPDATE %s SET locked_at = NULL, last_error = $2, available_at = now() WHERE id = $1 AND published_at IS NULL`
		args = []any{id, lastError}
	default:
		return fmt.Errorf("outbox: unknown delivery state %d", state)
	}
	if _, err := db.Exec(ctx, fmt.Sprintf(q, table), args...); err != nil {
		return fmt.Errorf("outbox settle: %w", err)
	}
	return nil
}

func (r *Relay) observeQueueDepth(ctx context.Context, db conn) error {
	q := fmt.Sprintf(
		`SELECT count(*), count(*) FILTER (WHERE locked_at IS NOT NULL)
		   FROM %s WHERE published_at IS NULL`,
		r.table.Sanitize(),
	)
	var pending, locked int64
	if err := db.QueryRow(ctx, q).Scan(&pending, &locked); err != nil {
		return fmt.Errorf("outbox queue depth: %w", err)
	}
	r.m.pending.WithLabelValues(r.tableLabel).Set(float64(pending))
	r.m.locked.WithLabelValues(r.tableLabel).Set(float64(locked))
	return nil
}

func advisoryLockKey(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
