package attendance

import (
	"github.com/sirupsen/logrus"

	"github.com/autopeca/marketplace/migrations"
	"github.com/autopeca/marketplace/modules/attendance/handlers"
	"github.com/autopeca/marketplace/modules/attendance/infrastructure/cache"
	"github.com/autopeca/marketplace/modules/attendance/infrastructure/persistence"
	"github.com/autopeca/marketplace/modules/attendance/presentation/controllers"
	"github.com/autopeca/marketplace/modules/attendance/seed"
	"github.com/autopeca/marketplace/modules/attendance/services"
	"github.com/autopeca/marketplace/pkg/application"
	"github.com/autopeca/marketplace/pkg/configuration"
	"github.com/autopeca/marketplace/pkg/outbox"
)

type ModuleOptions struct {
	Configuration *configuration.Configuration
	// Notifier receives contact bundles and reopen notices; defaults to logging them.
	Notifier handlers.Notifier
	// StatsCache overrides the redis cache built from DASHBOARD_CACHE_ENABLED.
	StatsCache services.StatsCache
}

func NewModule(opts *ModuleOptions) application.Module {
	if opts == nil {
		opts = &ModuleOptions{}
	}
	return &Module{options: opts}
}

type Module struct {
	options *ModuleOptions
}

func (m *Module) Register(app application.Application) error {
	conf := m.options.Configuration
	if conf == nil {
		conf = configuration.Use()
	}
	logger := conf.Logger()
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	app.Migrations().RegisterSchema(migrations.Attendance())
	app.Seeder().Register(seed.SeedFunc(seed.Dev))

	solicitationRepo := persistence.NewSolicitationRepository()
	attendanceRepo := persistence.NewAttendanceRepository()
	agentRepo := persistence.NewAgentRepository()
	storeRepo := persistence.NewStoreRepository()

	var dashboardOpts []services.DashboardOption
	switch {
	case m.options.StatsCache != nil:
		dashboardOpts = append(dashboardOpts, services.WithStatsCache(m.options.StatsCache, conf.Attendance.DashboardCacheTTL))
	case conf.Attendance.DashboardCacheEnabled:
		statsCache := cache.NewRedisCache(cache.NewRedisClient(conf.RedisURL), "autopeca:")
		dashboardOpts = append(dashboardOpts, services.WithStatsCache(statsCache, conf.Attendance.DashboardCacheTTL))
	}

	app.RegisterServices(
		services.NewClaimService(
			solicitationRepo,
			attendanceRepo,
			agentRepo,
			storeRepo,
			services.NewOutboxSink(outbox.NewPublisher(), services.OutboxTable),
			app.EventPublisher(),
			services.ClaimIsoLevel(conf.Attendance.ClaimIsolation),
		),
		services.NewSeenService(solicitationRepo, attendanceRepo, agentRepo, storeRepo),
		services.NewVisibilityService(solicitationRepo, agentRepo, storeRepo, conf.PageSize, conf.MaxPageSize),
		services.NewDashboardService(
			solicitationRepo,
			attendanceRepo,
			agentRepo,
			storeRepo,
			conf.Attendance.Location(),
			dashboardOpts...,
		),
	)

	app.RegisterControllers(
		controllers.NewAttendanceAPIController(app, conf.AgentIDHeader),
		controllers.NewHealthController(app, services.OutboxTable),
	)

	handlers.RegisterAttendanceEventHandlers(app, m.options.Notifier, logger)
	return nil
}

func (m *Module) Name() string {
	return "attendance"
}
