// Package di provides dependency injection configuration for the catalog.
package di

import (
	"log/slog"

	"github.com/samber/do/v2"

	"github.com/Lydia02/E-Library-sub000/internal/config"
	"github.com/Lydia02/E-Library-sub000/internal/di/providers"
	"github.com/Lydia02/E-Library-sub000/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
// args are the command-line arguments configuration is loaded from.
func NewContainer(args []string) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.ProvideValue(injector, providers.Args(args))
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Storage layer
	do.Provide(injector, providers.ProvidePrimary)
	do.Provide(injector, providers.ProvideSecondary)
	do.Provide(injector, providers.ProvideOutbox)

	// Sync
	do.Provide(injector, providers.ProvideSyncEngine)
	do.Provide(injector, providers.ProvideSyncWorker)

	// Business services
	do.Provide(injector, providers.ProvideRouter)
	do.Provide(injector, providers.ProvideProcessor)
	do.Provide(injector, providers.ProvideCatalog)

	return injector
}

// Bootstrap initializes all services. This triggers lazy initialization, so
// configuration and connection errors surface here rather than on first use.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*slog.Logger](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*service.Catalog](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.SyncWorkerHandle](injector); err != nil {
		return err
	}
	return nil
}
