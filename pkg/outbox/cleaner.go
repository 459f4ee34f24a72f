package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autopeca/marketplace/pkg/composables"
)

// Cleaner periodically deletes published rows older than Retention and, when DeadRetention
// is set, dead rows older than that.
type Cleaner struct {
	pool       *pgxpool.Pool
	table      pgx.Identifier
	opts       CleanerOptions
	tableLabel string
}

func NewCleaner(pool *pgxpool.Pool, table pgx.Identifier, opts CleanerOptions) (*Cleaner, error) {
	switch {
	case pool == nil:
		return nil, invalidConfig("pool is required")
	case len(table) == 0:
		return nil, invalidConfig("table is required")
	case opts.DeadRetention > 0 && opts.DeadAttemptsThreshold <= 0:
		return nil, invalidConfig("dead retention requires DeadAttemptsThreshold > 0")
	}
	opts.setDefaults()
	return &Cleaner{
		pool:       pool,
		table:      table,
		opts:       opts,
		tableLabel: TableLabel(table),
	}, nil
}

func (c *Cleaner) Run(ctx context.Context) error {
	if !c.opts.Enabled {
		return nil
	}

	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if err := c.CleanOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			c.opts.Logger.WithError(err).WithField("table", c.tableLabel).Warn("outbox: cleaner tick failed")
		}
	}
}

func (c *Cleaner) CleanOnce(ctx context.Context) error {
	table := c.table.Sanitize()
	now := time.Now()

	return composables.InTxWith(ctx, c.pool, func(txCtx context.Context) error {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return err
		}
		q := fmt.Sprintf(`DELETE FROM %s WHERE published_at IS NOT NULL AND published_at < $1`, table)
		if _, err := tx.Exec(txCtx, q, now.Add(-c.opts.Retention)); err != nil {
			return fmt.Errorf("outbox cleaner delete published: %w", err)
		}
		if c.opts.DeadRetention <= 0 {
			return nil
		}
		deadQ := fmt.Sprintf(
			`DELETE FROM %s WHERE published_at IS NULL AND attempts >= $1 AND created_at < $2`,
			table,
		)
		if _, err := tx.Exec(txCtx, deadQ, c.opts.DeadAttemptsThreshold, now.Add(-c.opts.DeadRetention)); err != nil {
			return fmt.Errorf("outbox cleaner delete dead: %w", err)
		}
		return nil
	})
}
