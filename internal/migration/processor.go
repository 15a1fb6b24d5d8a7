// Package migration copies every primary record of a kind into the secondary
// store. A run is idempotent: running it again on unchanged data leaves the
// secondary store as it was.
package migration

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Lydia02/E-Library-sub000/internal/domain"
	domainerrors "github.com/Lydia02/E-Library-sub000/internal/errors"
	"github.com/Lydia02/E-Library-sub000/internal/logger"
	"github.com/Lydia02/E-Library-sub000/internal/mapper"
	"github.com/Lydia02/E-Library-sub000/internal/store"
	"github.com/Lydia02/E-Library-sub000/internal/store/postgres"
)

// Strategy decides how a record already present in the secondary is treated.
type Strategy string

const (
	// StrategyUpsert writes every record by natural key; the newer stamp wins.
	StrategyUpsert Strategy = "upsert"
	// StrategySkipExisting looks the natural key up first and leaves existing
	// rows untouched.
	StrategySkipExisting Strategy = "skip-existing"
)

// ParseStrategy parses a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyUpsert, StrategySkipExisting:
		return Strategy(s), nil
	}
	return "", domainerrors.Validationf("unknown migration strategy %q (want upsert or skip-existing)", s)
}

// Primary is the read side of the document store.
type Primary interface {
	Scan(ctx context.Context, collection string) iter.Seq2[*store.Document, error]
}

// Secondary is the write side of the relational store.
type Secondary interface {
	Insert(ctx context.Context, r postgres.Row) error
	Upsert(ctx context.Context, r postgres.Row) (bool, error)
	UpdateByPrimaryID(ctx context.Context, r postgres.Row) (bool, error)
	FindByNaturalKey(ctx context.Context, r postgres.Row) (postgres.Row, error)
	PrimaryIDs(ctx context.Context, table domain.Kind) ([]string, error)
}

// Options configures a run.
type Options struct {
	Strategy Strategy
	// Workers bounds concurrent secondary writes. Zero uses the CPU count.
	Workers int
}

// Result holds the counters of a run.
type Result struct {
	Kind     domain.Kind   `json:"kind"`
	Strategy Strategy      `json:"strategy"`
	Migrated int64         `json:"migrated"`
	Skipped  int64         `json:"skipped"`
	Errors   int64         `json:"errors"`
	Total    int64         `json:"total"`
	Duration time.Duration `json:"duration"`
}

// Processor runs migrations.
type Processor struct {
	primary   Primary
	secondary Secondary
	logger    *slog.Logger
}

// New creates a processor.
func New(primary Primary, secondary Secondary, log *slog.Logger) *Processor {
	return &Processor{
		primary:   primary,
		secondary: secondary,
		logger:    logger.Component(log, "migration"),
	}
}

// Run migrates every record of kind. A record that fails is counted and
// logged; the run goes on. Only a failure to read the primary aborts it.
func (p *Processor) Run(ctx context.Context, kind domain.Kind, opts Options) (Result, error) {
	if !kind.Valid() {
		return Result{}, domainerrors.Validationf("unknown entity kind %q", kind)
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyUpsert
	}
	if _, err := ParseStrategy(string(opts.Strategy)); err != nil {
		return Result{}, err
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	start := time.Now()
	var migrated, skipped, failed, total atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var scanErr error
	for doc, err := range p.primary.Scan(gctx, string(kind)) {
		if err != nil {
			scanErr = err
			break
		}
		total.Add(1)
		g.Go(func() error {
			outcome, err := p.migrate(gctx, kind, doc, opts.Strategy)
			switch {
			case err != nil:
				failed.Add(1)
				p.logger.Warn("migration record failed",
					slog.String(logger.KeyKind, string(kind)),
					slog.String(logger.KeyPrimaryID, doc.ID),
					logger.Err(domainerrors.MigrationRecord(err, "record not migrated")),
				)
			case outcome == outcomeSkipped:
				skipped.Add(1)
			default:
				migrated.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := Result{
		Kind:     kind,
		Strategy: opts.Strategy,
		Migrated: migrated.Load(),
		Skipped:  skipped.Load(),
		Errors:   failed.Load(),
		Total:    total.Load(),
		Duration: time.Since(start),
	}
	if scanErr != nil {
		return res, fmt.Errorf("scan %s: %w", kind, scanErr)
	}

	p.logger.Info("migration finished",
		slog.String(logger.KeyKind, string(kind)),
		slog.String("strategy", string(opts.Strategy)),
		slog.Int64("migrated", res.Migrated),
		slog.Int64("skipped", res.Skipped),
		slog.Int64("errors", res.Errors),
		slog.Int64("total", res.Total),
		slog.Duration("duration", res.Duration),
	)
	return res, nil
}

// RunAll migrates every kind, books first.
func (p *Processor) RunAll(ctx context.Context, opts Options) ([]Result, error) {
	out := make([]Result, 0, len(domain.Kinds))
	for _, k := range domain.Kinds {
		res, err := p.Run(ctx, k, opts)
		out = append(out, res)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

type outcome int

const (
	outcomeMigrated outcome = iota
	outcomeSkipped
)

func (p *Processor) migrate(ctx context.Context, kind domain.Kind, doc *store.Document, strategy Strategy) (outcome, error) {
	e, err := mapper.FromDocument(kind, doc)
	if err != nil {
		return 0, err
	}
	row, err := mapper.ToRow(e)
	if err != nil {
		return 0, err
	}

	switch strategy {
	case StrategySkipExisting:
		_, err := p.secondary.FindByNaturalKey(ctx, row)
		if err == nil {
			return outcomeSkipped, nil
		}
		if !domainerrors.Is(err, domainerrors.ErrNotFound) {
			return 0, err
		}
		err = p.secondary.Insert(ctx, row)
		if domainerrors.Is(err, domainerrors.ErrConflict) {
			// Inserted concurrently, or the natural key belongs to another record.
			return outcomeSkipped, nil
		}
		return outcomeMigrated, err
	default:
		// The row already mirrored under this id may carry a stale natural key,
		// which the natural key upsert below would never match.
		applied, err := p.secondary.UpdateByPrimaryID(ctx, row)
		if domainerrors.Is(err, domainerrors.ErrConflict) {
			return outcomeSkipped, nil
		}
		if err != nil {
			return 0, err
		}
		if applied {
			return outcomeMigrated, nil
		}
		applied, err = p.secondary.Upsert(ctx, row)
		if domainerrors.Is(err, domainerrors.ErrConflict) {
			return outcomeSkipped, nil
		}
		if err != nil {
			return 0, err
		}
		if !applied {
			p.logger.Debug("record not applied",
				slog.String(logger.KeyKind, string(kind)),
				slog.String(logger.KeyPrimaryID, doc.ID),
				slog.String(logger.KeyNaturalKey, e.NaturalKey()),
			)
			return outcomeSkipped, nil
		}
		return outcomeMigrated, nil
	}
}
