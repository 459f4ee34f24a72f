package application

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
)

var ErrNoSchema = errors.New("no migration schema registered")

type MigrationStatus struct {
	Version int64
	Path    string
	Applied bool
}

type MigrationManager interface {
	RegisterSchema(fsys fs.FS)
	Up(ctx context.Context) error
	Down(ctx context.Context) error
	Status(ctx context.Context) ([]MigrationStatus, error)
}

// NewMigrationManager runs goose migrations over the pool through database/sql.
func NewMigrationManager(pool *pgxpool.Pool, logger *logrus.Logger) MigrationManager {
	return &migrationManager{pool: pool, logger: logger}
}

type migrationManager struct {
	pool   *pgxpool.Pool
	logger *logrus.Logger
	schema fs.FS
}

func (m *migrationManager) RegisterSchema(fsys fs.FS) {
	m.schema = fsys
}

func (m *migrationManager) withProvider(fn func(p *goose.Provider) error) error {
	if m.schema == nil {
		return ErrNoSchema
	}
	if m.pool == nil {
		return errors.New("migrations: pool is required")
	}
	db := stdlib.OpenDBFromPool(m.pool)
	defer func(db *sql.DB) { _ = db.Close() }(db)

	provider, err := goose.NewProvider(goose.DialectPostgres, db, m.schema)
	if err != nil {
		return fmt.Errorf("migrations: provider: %w", err)
	}
	defer func() { _ = provider.Close() }()
	return fn(provider)
}

func (m *migrationManager) Up(ctx context.Context) error {
	return m.withProvider(func(p *goose.Provider) error {
		results, err := p.Up(ctx)
		for _, r := range results {
			m.log(r)
		}
		if err != nil {
			return fmt.Errorf("migrations: up: %w", err)
		}
		return nil
	})
}

func (m *migrationManager) Down(ctx context.Context) error {
	return m.withProvider(func(p *goose.Provider) error {
		r, err := p.Down(ctx)
		if r != nil {
			m.log(r)
		}
		if err != nil {
			return fmt.Errorf("migrations: down: %w", err)
		}
		return nil
	})
}

func (m *migrationManager) Status(ctx context.Context) ([]MigrationStatus, error) {
	var out []MigrationStatus
	err := m.withProvider(func(p *goose.Provider) error {
		statuses, err := p.Status(ctx)
		if err != nil {
			return fmt.Errorf("migrations: status: %w", err)
		}
		for _, s := range statuses {
			out = append(out, MigrationStatus{
				Version: s.Source.Version,
				Path:    s.Source.Path,
				Applied: s.State == goose.StateApplied,
			})
		}
		return nil
	})
	return out, err
}

func (m *migrationManager) log(r *goose.MigrationResult) {
	if m.logger == nil || r == nil || r.Source == nil {
		return
	}
	m.logger.WithFields(logrus.Fields{
		"version":   r.Source.Version,
		"direction": r.Direction,
		"duration":  r.Duration,
	}).Info("migration applied")
}
