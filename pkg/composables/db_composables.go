package composables

import (
	"context"
	"errors"

	"github.com/autopeca/marketplace/pkg/constants"
	"github.com/autopeca/marketplace/pkg/repo"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNoTx   = errors.New("no transaction found in context")
	ErrNoPool = errors.New("no database pool found in context")
)

// TxBeginner is satisfied by *pgxpool.Pool.
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

func WithTx(ctx context.Context, tx repo.Tx) context.Context {
	return context.WithValue(ctx, constants.TxKey, tx)
}

// UseTx returns the transaction bound to ctx, falling back to the pool.
func UseTx(ctx context.Context) (repo.Tx, error) {
	tx := ctx.Value(constants.TxKey)
	if tx == nil {
		return UsePool(ctx)
	}
	return tx.(repo.Tx), nil
}

func WithPool(ctx context.Context, pool *pgxpool.Pool) context.Context {
	return context.WithValue(ctx, constants.PoolKey, pool)
}

func UsePool(ctx context.Context) (*pgxpool.Pool, error) {
	pool := ctx.Value(constants.PoolKey)
	if pool == nil {
		return nil, ErrNoPool
	}
	p, ok := pool.(*pgxpool.Pool)
	if !ok || p == nil {
		return nil, ErrNoPool
	}
	return p, nil
}

type txConfig struct {
	opts pgx.TxOptions
}

type TxOption func(*txConfig)

// WithIsoLevel sets the isolation level of the transaction started by InTx.
func WithIsoLevel(level pgx.TxIsoLevel) TxOption {
	return func(c *txConfig) {
		c.opts.IsoLevel = level
	}
}

func WithReadOnly() TxOption {
	return func(c *txConfig) {
		c.opts.AccessMode = pgx.ReadOnly
	}
}

// InTx runs the given function in a transaction. ALWAYS creates a new transaction.
func InTx(ctx context.Context, fn func(context.Context) error, opts ...TxOption) error {
	pool, err := UsePool(ctx)
	if err != nil {
		return err
	}
	return InTxWith(ctx, pool, fn, opts...)
}

// InTxWith is InTx over an explicit beginner. A commit failure is returned as is.
func InTxWith(ctx context.Context, db TxBeginner, fn func(context.Context) error, opts ...TxOption) error {
	cfg := txConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	tx, err := db.BeginTx(ctx, cfg.opts)
	if err != nil {
		return err
	}

	if err := fn(WithTx(ctx, tx)); err != nil {
		if rErr := tx.Rollback(ctx); rErr != nil && !errors.Is(rErr, pgx.ErrTxClosed) {
			return errors.Join(err, rErr)
		}
		return err
	}
	return tx.Commit(ctx)
}

// InTxResult is InTx for functions returning a value.
func InTxResult[T any](ctx context.Context, fn func(context.Context) (T, error), opts ...TxOption) (T, error) {
	var out T
	err := InTx(ctx, func(txCtx context.Context) error {
		v, err := fn(txCtx)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
