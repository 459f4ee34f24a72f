package seed

import (
	"context"
	"embed"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/autopeca/marketplace/pkg/application"
	"github.com/autopeca/marketplace/pkg/composables"
	"github.com/autopeca/marketplace/pkg/constants"
	"github.com/autopeca/marketplace/pkg/repo"
)

//go:embed dev.yaml
var devFixtures embed.FS

type Customer struct {
	ID    uuid.UUID `yaml:"id" validate:"required"`
	Name  string    `yaml:"name" validate:"required"`
	Phone string    `yaml:"phone"`
	Email string    `yaml:"email" validate:"omitempty,email"`
}

type Store struct {
	ID     uuid.UUID `yaml:"id" validate:"required"`
	Name   string    `yaml:"name" validate:"required"`
	Phone  string    `yaml:"phone"`
	City   string    `yaml:"city" validate:"required"`
	State  string    `yaml:"state" validate:"required"`
	Active *bool     `yaml:"active"`
}

type Agent struct {
	ID      uuid.UUID `yaml:"id" validate:"required"`
	StoreID uuid.UUID `yaml:"store_id" validate:"required"`
	Name    string    `yaml:"name" validate:"required"`
	Phone   string    `yaml:"phone"`
	Email   string    `yaml:"email" validate:"omitempty,email"`
	Active  *bool     `yaml:"active"`
}

type Solicitation struct {
	ID          uuid.UUID `yaml:"id" validate:"required"`
	CustomerID  uuid.UUID `yaml:"customer_id" validate:"required"`
	Description string    `yaml:"description" validate:"required"`
	Make        string    `yaml:"make"`
	Model       string    `yaml:"model"`
	YearFrom    *int32    `yaml:"year_from" validate:"omitempty,gte=1900"`
	YearTo      *int32    `yaml:"year_to" validate:"omitempty,gte=1900"`
	Category    string    `yaml:"category"`
	Color       string    `yaml:"color"`
	Plate       string    `yaml:"plate"`
	City        string    `yaml:"city" validate:"required"`
	State       string    `yaml:"state" validate:"required"`
	Status      string    `yaml:"status" validate:"omitempty,oneof=active fulfilled_by_client cancelled"`
	Images      []string  `yaml:"images" validate:"dive,url"`
}

// Fixtures is a directory plus solicitations dataset loaded from YAML.
type Fixtures struct {
	Customers     []Customer     `yaml:"customers" validate:"dive"`
	Stores        []Store        `yaml:"stores" validate:"dive"`
	Agents        []Agent        `yaml:"agents" validate:"dive"`
	Solicitations []Solicitation `yaml:"solicitations" validate:"dive"`
}

func Load(r io.Reader) (*Fixtures, error) {
	var f Fixtures
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "decode fixtures")
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func LoadFile(path string) (*Fixtures, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open fixtures")
	}
	defer file.Close()
	return Load(file)
}

// Dev returns the embedded development dataset.
func Dev() (*Fixtures, error) {
	file, err := devFixtures.Open("dev.yaml")
	if err != nil {
		return nil, errors.Wrap(err, "open dev fixtures")
	}
	defer file.Close()
	return Load(file)
}

// Validate checks field rules and that every reference points at a row of the same dataset.
func (f *Fixtures) Validate() error {
	if err := constants.Validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return errors.Errorf("invalid fixtures: %s", strings.Join(msgs, "; "))
		}
		return errors.Wrap(err, "validate fixtures")
	}

	customers := make(map[uuid.UUID]struct{}, len(f.Customers))
	for _, c := range f.Customers {
		customers[c.ID] = struct{}{}
	}
	stores := make(map[uuid.UUID]struct{}, len(f.Stores))
	for _, s := range f.Stores {
		stores[s.ID] = struct{}{}
	}
	for _, a := range f.Agents {
		if _, ok := stores[a.StoreID]; !ok {
			return errors.Errorf("invalid fixtures: agent %s references unknown store %s", a.ID, a.StoreID)
		}
	}
	for _, s := range f.Solicitations {
		if _, ok := customers[s.CustomerID]; !ok {
			return errors.Errorf("invalid fixtures: solicitation %s references unknown customer %s", s.ID, s.CustomerID)
		}
		if s.YearFrom != nil && s.YearTo != nil && *s.YearTo < *s.YearFrom {
			return errors.Errorf("invalid fixtures: solicitation %s has year_to before year_from", s.ID)
		}
	}
	return nil
}

const (
	customerUpsert = `INSERT INTO customers (id, name, phone, email) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, phone = EXCLUDED.phone, email = EXCLUDED.email`
	storeUpsert = `INSERT INTO stores (id, name, phone, city, state, active) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, phone = EXCLUDED.phone, city = EXCLUDED.city,
		state = EXCLUDED.state, active = EXCLUDED.active`
	agentUpsert = `INSERT INTO agents (id, store_id, name, phone, email, active) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET store_id = EXCLUDED.store_id, name = EXCLUDED.name, phone = EXCLUDED.phone,
		email = EXCLUDED.email, active = EXCLUDED.active`
	solicitationUpsert = `INSERT INTO solicitations
		(id, customer_id, description, make, model, year_from, year_to, category, color, plate, city, state, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET description = EXCLUDED.description, make = EXCLUDED.make,
		model = EXCLUDED.model, year_from = EXCLUDED.year_from, year_to = EXCLUDED.year_to,
		category = EXCLUDED.category, color = EXCLUDED.color, plate = EXCLUDED.plate,
		city = EXCLUDED.city, state = EXCLUDED.state, status = EXCLUDED.status`
	imagesDelete = `DELETE FROM solicitation_images WHERE solicitation_id = $1`
	imageInsert  = `INSERT INTO solicitation_images (solicitation_id, url, position) VALUES ($1, $2, $3)`
)

// Apply upserts the dataset in one transaction. Images of every listed solicitation are replaced.
func Apply(ctx context.Context, f *Fixtures) error {
	return composables.InTx(ctx, func(txCtx context.Context) error {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return err
		}
		return write(txCtx, tx, f)
	})
}

func write(ctx context.Context, tx repo.Tx, f *Fixtures) error {
	for _, c := range f.Customers {
		if _, err := tx.Exec(ctx, customerUpsert, c.ID, c.Name, c.Phone, c.Email); err != nil {
			return errors.Wrapf(err, "seed customer %s", c.ID)
		}
	}
	for _, s := range f.Stores {
		if _, err := tx.Exec(ctx, storeUpsert, s.ID, s.Name, s.Phone, s.City, s.State, active(s.Active)); err != nil {
			return errors.Wrapf(err, "seed store %s", s.ID)
		}
	}
	for _, a := range f.Agents {
		if _, err := tx.Exec(ctx, agentUpsert, a.ID, a.StoreID, a.Name, a.Phone, a.Email, active(a.Active)); err != nil {
			return errors.Wrapf(err, "seed agent %s", a.ID)
		}
	}
	for _, s := range f.Solicitations {
		status := s.Status
		if status == "" {
			status = "active"
		}
		if _, err := tx.Exec(ctx, solicitationUpsert,
			s.ID, s.CustomerID, s.Description, s.Make, s.Model, s.YearFrom, s.YearTo,
			s.Category, s.Color, s.Plate, s.City, s.State, status,
		); err != nil {
			return errors.Wrapf(err, "seed solicitation %s", s.ID)
		}
		if _, err := tx.Exec(ctx, imagesDelete, s.ID); err != nil {
			return errors.Wrapf(err, "reset images of %s", s.ID)
		}
		for i, url := range s.Images {
			if _, err := tx.Exec(ctx, imageInsert, s.ID, url, int32(i)); err != nil {
				return errors.Wrapf(err, "seed image of %s", s.ID)
			}
		}
	}
	return nil
}

func active(v *bool) bool {
	return v == nil || *v
}

// SeedFunc wraps a dataset for the application seeder.
func SeedFunc(load func() (*Fixtures, error)) application.SeedFunc {
	return func(ctx context.Context, app application.Application) error {
		f, err := load()
		if err != nil {
			return err
		}
		if pool := app.DB(); pool != nil {
			ctx = composables.WithPool(ctx, pool)
		}
		return Apply(ctx, f)
	}
}
