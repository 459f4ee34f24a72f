package modules

import (
	"github.com/autopeca/marketplace/modules/attendance"
	"github.com/autopeca/marketplace/pkg/application"
	"github.com/autopeca/marketplace/pkg/configuration"
)

// BuiltInModules returns the modules every entrypoint loads.
func BuiltInModules(conf *configuration.Configuration) []application.Module {
	return []application.Module{
		attendance.NewModule(&attendance.ModuleOptions{Configuration: conf}),
	}
}

func Load(app application.Application, externalModules ...application.Module) error {
	for _, module := range externalModules {
		if err := module.Register(app); err != nil {
			return err
		}
	}
	return nil
}
