package application

import (
	"context"
	"reflect"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autopeca/marketplace/pkg/eventbus"
)

type Controller interface {
	Register(r *mux.Router)
	Key() string
}

type Module interface {
	Name() string
	Register(app Application) error
}

type SeedFunc func(ctx context.Context, app Application) error

type Seeder interface {
	Seed(ctx context.Context, app Application) error
	Register(seedFuncs ...SeedFunc)
}

// Application is the registry modules wire themselves into.
type Application interface {
	DB() *pgxpool.Pool
	EventPublisher() eventbus.EventBusWithError
	Controllers() []Controller
	Middleware() []mux.MiddlewareFunc
	Migrations() MigrationManager
	Seeder() Seeder
	RegisterControllers(controllers ...Controller)
	RegisterMiddleware(middleware ...mux.MiddlewareFunc)
	RegisterServices(services ...interface{})
	Service(service interface{}) interface{}
	Services() map[reflect.Type]interface{}
}
