package providers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/do/v2"
	"github.com/sethvargo/go-retry"

	"github.com/Lydia02/E-Library-sub000/internal/config"
	domainerrors "github.com/Lydia02/E-Library-sub000/internal/errors"
	"github.com/Lydia02/E-Library-sub000/internal/store"
	"github.com/Lydia02/E-Library-sub000/internal/store/memsql"
	"github.com/Lydia02/E-Library-sub000/internal/store/postgres"
	"github.com/Lydia02/E-Library-sub000/internal/store/sqlite"
)

const (
	// connectAttempts bounds how often an unreachable secondary is retried at startup.
	connectAttempts = 5
	connectBackoff  = 500 * time.Millisecond
)

// PrimaryHandle wraps the document store with shutdown capability.
type PrimaryHandle struct {
	*store.Store
}

// Shutdown implements do.Shutdownable.
func (h *PrimaryHandle) Shutdown() error {
	return h.Close()
}

// ProvidePrimary provides the primary document store.
func ProvidePrimary(i do.Injector) (*PrimaryHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)

	indexes, err := store.ParseIndexes(cfg.Primary.CompositeIndexes)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeValidation, "invalid composite indexes")
	}

	s, err := store.New(store.Options{
		Path:     cfg.Primary.Path,
		InMemory: cfg.Primary.InMemory,
		Timeout:  cfg.Primary.Timeout,
		Indexes:  indexes,
	}, log)
	if err != nil {
		return nil, err
	}

	log.Info("Primary store initialized",
		"path", cfg.Primary.Path,
		"in_memory", cfg.Primary.InMemory,
		"composite_indexes", len(indexes),
	)
	return &PrimaryHandle{Store: s}, nil
}

// SecondaryHandle wraps the relational store with shutdown capability.
type SecondaryHandle struct {
	postgres.Secondary
}

// Shutdown implements do.Shutdownable.
func (h *SecondaryHandle) Shutdown() error {
	h.Close()
	return nil
}

// ProvideSecondary provides the secondary relational store. The postgres driver
// retries an unreachable server a few times before giving up.
func ProvideSecondary(i do.Injector) (*SecondaryHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)

	if cfg.Secondary.Driver == config.DriverMemory {
		log.Warn("Secondary store runs in memory; mirrored rows are lost on exit")
		return &SecondaryHandle{Secondary: memsql.New()}, nil
	}

	ctx := context.Background()
	if cfg.Secondary.AutoMigrate {
		if err := MigrateSecondary(ctx, cfg); err != nil {
			return nil, err
		}
	}

	var db *postgres.DB
	b := retry.WithMaxRetries(connectAttempts-1, retry.NewExponential(connectBackoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		var err error
		db, err = postgres.Open(ctx, postgres.Options{
			DSN:            cfg.Secondary.DSN,
			MaxConns:       int32(cfg.Secondary.MaxConns), //nolint:gosec // validated positive and small
			ConnectTimeout: cfg.Secondary.ConnectTimeout,
			Timeout:        cfg.Secondary.Timeout,
		}, log)
		if domainerrors.CodeOf(err) == domainerrors.CodeUnavailable {
			log.Warn("Secondary store unreachable, retrying", "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &SecondaryHandle{Secondary: db}, nil
}

// MigrateSecondary applies the relational schema. It is a no-op for the memory
// driver.
func MigrateSecondary(ctx context.Context, cfg *config.Config) error {
	if cfg.Secondary.Driver != config.DriverPostgres {
		return nil
	}
	if err := postgres.Migrate(ctx, cfg.Secondary.DSN); err != nil {
		return domainerrors.Unavailable(err, "migrate secondary schema")
	}
	return nil
}

// OutboxHandle wraps the sync outbox with shutdown capability. Outbox is nil
// when the outbox is disabled.
type OutboxHandle struct {
	Outbox *sqlite.Outbox
}

// Shutdown implements do.Shutdownable.
func (h *OutboxHandle) Shutdown() error {
	if h.Outbox == nil {
		return nil
	}
	return h.Outbox.Close()
}

// ProvideOutbox provides the durable sync task queue.
func ProvideOutbox(i do.Injector) (*OutboxHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)

	if !cfg.Sync.OutboxEnabled {
		log.Warn("Sync outbox disabled; failed secondary writes will not be retried")
		return &OutboxHandle{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Sync.OutboxPath), 0o750); err != nil {
		return nil, fmt.Errorf("create outbox directory: %w", err)
	}
	o, err := sqlite.Open(cfg.Sync.OutboxPath, log)
	if err != nil {
		return nil, err
	}
	return &OutboxHandle{Outbox: o}, nil
}
