// Package fallback routes catalog reads to the primary store and falls back to
// the secondary store when the primary cannot serve a query without a composite
// index it does not have.
package fallback

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/Lydia02/E-Library-sub000/internal/domain"
	domainerrors "github.com/Lydia02/E-Library-sub000/internal/errors"
	"github.com/Lydia02/E-Library-sub000/internal/logger"
	"github.com/Lydia02/E-Library-sub000/internal/mapper"
	"github.com/Lydia02/E-Library-sub000/internal/store"
	"github.com/Lydia02/E-Library-sub000/internal/store/postgres"
)

// Primary is the subset of the document store the router reads from.
type Primary interface {
	Get(ctx context.Context, collection, id string) (*store.Document, error)
	Query(ctx context.Context, collection string, q domain.Query) ([]*store.Document, error)
}

// Secondary is the subset of the relational store the router falls back to.
type Secondary interface {
	Get(ctx context.Context, table domain.Kind, primaryID string) (postgres.Row, error)
	Select(ctx context.Context, table domain.Kind, q postgres.Query) ([]postgres.Row, error)
}

// Router serves catalog reads.
type Router struct {
	primary   Primary
	secondary Secondary
	logger    *slog.Logger
	fallbacks atomic.Int64
}

// New creates a router.
func New(primary Primary, secondary Secondary, log *slog.Logger) *Router {
	return &Router{
		primary:   primary,
		secondary: secondary,
		logger:    logger.Component(log, "fallback"),
	}
}

// Query returns the entities of kind matching q. The query runs against the
// primary store; only an INDEX_REQUIRED failure reroutes it to the secondary.
// When the secondary fails too, the primary error is returned.
func (r *Router) Query(ctx context.Context, kind domain.Kind, q domain.Query) ([]domain.Entity, error) {
	dq, err := mapper.ToDocumentQuery(kind, q)
	if err != nil {
		return nil, err
	}

	docs, err := r.primary.Query(ctx, string(kind), dq)
	if err == nil {
		return fromDocuments(kind, docs)
	}

	switch domainerrors.CodeOf(err) {
	case domainerrors.CodeIndexRequired:
		return r.fromSecondary(ctx, kind, q, err)
	case domainerrors.CodeNotFound,
		domainerrors.CodeConflict,
		domainerrors.CodeTransientSync,
		domainerrors.CodeMigrationRecord,
		domainerrors.CodeValidation,
		domainerrors.CodeUnavailable,
		domainerrors.CodeInternal:
		return nil, err
	}
	return nil, err
}

func (r *Router) fromSecondary(ctx context.Context, kind domain.Kind, q domain.Query, primaryErr error) ([]domain.Entity, error) {
	r.fallbacks.Add(1)
	r.logger.Warn("primary query needs an index, serving from secondary",
		slog.String(logger.KeyKind, string(kind)),
		logger.Err(primaryErr),
	)

	rq, err := mapper.ToRowQuery(kind, q)
	if err != nil {
		return nil, err
	}
	rows, err := r.secondary.Select(ctx, kind, rq)
	if err != nil {
		r.logger.Error("secondary fallback failed",
			slog.String(logger.KeyKind, string(kind)),
			logger.Err(err),
		)
		return nil, primaryErr
	}

	out := make([]domain.Entity, 0, len(rows))
	for _, row := range rows {
		e, err := mapper.FromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Fallbacks returns how many queries were served by the secondary store.
func (r *Router) Fallbacks() int64 {
	return r.fallbacks.Load()
}

// ResolveBooks loads books by id, in order. A book missing from the primary is
// looked up in the secondary; books found in neither are left out.
func (r *Router) ResolveBooks(ctx context.Context, ids []string) ([]*domain.Book, error) {
	out := make([]*domain.Book, 0, len(ids))
	for _, id := range ids {
		b, err := r.resolveBook(ctx, id)
		if err != nil {
			return nil, err
		}
		if b != nil {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *Router) resolveBook(ctx context.Context, id string) (*domain.Book, error) {
	doc, err := r.primary.Get(ctx, string(domain.KindBooks), id)
	switch {
	case err == nil:
		e, err := mapper.FromDocument(domain.KindBooks, doc)
		if err != nil {
			return nil, err
		}
		return e.(*domain.Book), nil
	case domainerrors.Is(err, domainerrors.ErrValidation):
		return nil, err
	}
	// A primary failure other than a miss is served from the secondary when it
	// has the book, and returned otherwise.
	var primaryErr error
	if !domainerrors.Is(err, domainerrors.ErrNotFound) {
		primaryErr = err
		r.logger.Warn("primary book lookup failed, trying secondary",
			slog.String(logger.KeyPrimaryID, id), logger.Err(err))
	}

	row, err := r.secondary.Get(ctx, domain.KindBooks, id)
	if domainerrors.Is(err, domainerrors.ErrNotFound) {
		if primaryErr != nil {
			return nil, primaryErr
		}
		r.logger.Debug("book not found in either store", slog.String(logger.KeyPrimaryID, id))
		return nil, nil
	}
	if err != nil {
		if primaryErr != nil {
			return nil, primaryErr
		}
		// The primary answered; an unreachable secondary only hides the extra lookup.
		r.logger.Warn("secondary book lookup failed", slog.String(logger.KeyPrimaryID, id), logger.Err(err))
		return nil, nil
	}
	e, err := mapper.FromRow(row)
	if err != nil {
		return nil, err
	}
	return e.(*domain.Book), nil
}

func fromDocuments(kind domain.Kind, docs []*store.Document) ([]domain.Entity, error) {
	out := make([]domain.Entity, 0, len(docs))
	for _, doc := range docs {
		e, err := mapper.FromDocument(kind, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
