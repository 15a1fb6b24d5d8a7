package providers

import (
	"log/slog"

	"github.com/samber/do/v2"

	"github.com/Lydia02/E-Library-sub000/internal/fallback"
	"github.com/Lydia02/E-Library-sub000/internal/migration"
	"github.com/Lydia02/E-Library-sub000/internal/service"
)

// ProvideRouter provides the fallback query router.
func ProvideRouter(i do.Injector) (*fallback.Router, error) {
	log := do.MustInvoke[*slog.Logger](i)
	primary := do.MustInvoke[*PrimaryHandle](i)
	secondary := do.MustInvoke[*SecondaryHandle](i)

	return fallback.New(primary.Store, secondary, log), nil
}

// ProvideProcessor provides the migration batch processor.
func ProvideProcessor(i do.Injector) (*migration.Processor, error) {
	log := do.MustInvoke[*slog.Logger](i)
	primary := do.MustInvoke[*PrimaryHandle](i)
	secondary := do.MustInvoke[*SecondaryHandle](i)

	return migration.New(primary.Store, secondary, log), nil
}

// ProvideCatalog provides the catalog service.
func ProvideCatalog(i do.Injector) (*service.Catalog, error) {
	log := do.MustInvoke[*slog.Logger](i)
	primary := do.MustInvoke[*PrimaryHandle](i)
	engine := do.MustInvoke[*SyncEngineHandle](i)
	router := do.MustInvoke[*fallback.Router](i)
	processor := do.MustInvoke[*migration.Processor](i)

	return service.NewCatalog(primary.Store, engine.Engine, router, processor, log), nil
}
