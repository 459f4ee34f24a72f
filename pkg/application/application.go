package application

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/autopeca/marketplace/pkg/eventbus"
)

func NewSeeder(logger *logrus.Logger) Seeder {
	return &seeder{logger: logger}
}

type seeder struct {
	logger    *logrus.Logger
	seedFuncs []SeedFunc
}

func (s *seeder) Seed(ctx context.Context, app Application) error {
	for i, seedFunc := range s.seedFuncs {
		if s.logger != nil {
			s.logger.Infof("Seeding step %d/%d", i+1, len(s.seedFuncs))
		}
		if err := seedFunc(ctx, app); err != nil {
			return err
		}
	}
	return nil
}

func (s *seeder) Register(seedFuncs ...SeedFunc) {
	s.seedFuncs = append(s.seedFuncs, seedFuncs...)
}

type ApplicationOptions struct {
	Pool     *pgxpool.Pool
	EventBus eventbus.EventBusWithError
	Logger   *logrus.Logger
}

func New(opts *ApplicationOptions) Application {
	bus := opts.EventBus
	if bus == nil {
		bus = eventbus.NewEventPublisher(opts.Logger)
	}
	return &application{
		pool:           opts.Pool,
		eventPublisher: bus,
		controllers:    make(map[string]Controller),
		services:       make(map[reflect.Type]interface{}),
		migrations:     NewMigrationManager(opts.Pool, opts.Logger),
		seeder:         NewSeeder(opts.Logger),
	}
}

// application with a dynamically extendable service registry
type application struct {
	pool           *pgxpool.Pool
	eventPublisher eventbus.EventBusWithError
	services       map[reflect.Type]interface{}
	controllers    map[string]Controller
	middleware     []mux.MiddlewareFunc
	migrations     MigrationManager
	seeder         Seeder
}

func (app *application) Middleware() []mux.MiddlewareFunc {
	return app.middleware
}

func (app *application) DB() *pgxpool.Pool {
	return app.pool
}

func (app *application) EventPublisher() eventbus.EventBusWithError {
	return app.eventPublisher
}

// Controllers are returned ordered by key so route registration is deterministic.
func (app *application) Controllers() []Controller {
	keys := make([]string, 0, len(app.controllers))
	for k := range app.controllers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	controllers := make([]Controller, 0, len(keys))
	for _, k := range keys {
		controllers = append(controllers, app.controllers[k])
	}
	return controllers
}

func (app *application) Migrations() MigrationManager {
	return app.migrations
}

func (app *application) Seeder() Seeder {
	return app.seeder
}

func (app *application) RegisterControllers(controllers ...Controller) {
	for _, c := range controllers {
		app.controllers[c.Key()] = c
	}
}

func (app *application) RegisterMiddleware(middleware ...mux.MiddlewareFunc) {
	app.middleware = append(app.middleware, middleware...)
}

// RegisterServices registers a new service in the application by its type
func (app *application) RegisterServices(services ...interface{}) {
	for _, service := range services {
		serviceType := reflect.TypeOf(service).Elem()
		app.services[serviceType] = service
	}
}

// Service retrieves a service by its type
func (app *application) Service(service interface{}) interface{} {
	serviceType := reflect.TypeOf(service)
	svc, exists := app.services[serviceType]
	if !exists {
		panic(fmt.Sprintf("service %s not found", serviceType.Name()))
	}
	return svc
}

func (app *application) Services() map[reflect.Type]interface{} {
	return app.services
}
