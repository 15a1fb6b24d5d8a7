// Package providers contains dependency injection providers for the catalog.
package providers

import (
	"log/slog"

	"github.com/samber/do/v2"

	"github.com/Lydia02/E-Library-sub000/internal/config"
	"github.com/Lydia02/E-Library-sub000/internal/logger"
)

// Args are the command-line arguments configuration is loaded from.
type Args []string

// ProvideConfig provides the application configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	args, _ := do.Invoke[Args](i)
	return config.LoadConfig(args)
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*slog.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Format:      cfg.Logger.Format,
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Info("Starting catalog",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"primary_path", cfg.Primary.Path,
		"secondary_driver", cfg.Secondary.Driver,
		"outbox_enabled", cfg.Sync.OutboxEnabled,
	)

	return log, nil
}
