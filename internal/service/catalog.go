// Package service exposes the catalog to the rest of the application. Writes go
// to the primary store and are mirrored to the secondary store in the
// background; reads go through the fallback router.
package service

import (
	"context"
	"log/slog"
	"maps"

	"github.com/Lydia02/E-Library-sub000/internal/domain"
	domainerrors "github.com/Lydia02/E-Library-sub000/internal/errors"
	"github.com/Lydia02/E-Library-sub000/internal/logger"
	"github.com/Lydia02/E-Library-sub000/internal/mapper"
	"github.com/Lydia02/E-Library-sub000/internal/migration"
	"github.com/Lydia02/E-Library-sub000/internal/normalize"
	"github.com/Lydia02/E-Library-sub000/internal/store"
	"github.com/Lydia02/E-Library-sub000/internal/validation"
)

// Primary is the write side of the document store.
type Primary interface {
	Get(ctx context.Context, collection, id string) (*store.Document, error)
	Insert(ctx context.Context, collection string, fields map[string]any, unique ...store.Unique) (*store.Document, error)
	Update(ctx context.Context, collection, id string, patch map[string]any, unique ...store.Unique) (*store.Document, error)
	Delete(ctx context.Context, collection, id string) error
	BatchDelete(ctx context.Context, collection string, ids []string) (int, error)
}

// Syncer mirrors primary writes into the secondary store.
type Syncer interface {
	Submit(ctx context.Context, op domain.SyncOp, entity domain.Entity)
	SubmitBatchDelete(ctx context.Context, kind domain.Kind, primaryIDs []string)
}

// Reader serves catalog reads.
type Reader interface {
	Query(ctx context.Context, kind domain.Kind, q domain.Query) ([]domain.Entity, error)
	ResolveBooks(ctx context.Context, ids []string) ([]*domain.Book, error)
}

// Migrator copies primary records into the secondary store.
type Migrator interface {
	Run(ctx context.Context, kind domain.Kind, opts migration.Options) (migration.Result, error)
}

// Catalog is the caller-facing contract of the dual-store layer.
type Catalog struct {
	primary   Primary
	sync      Syncer
	reader    Reader
	migrator  Migrator
	validator *validation.Validator
	logger    *slog.Logger
}

// NewCatalog creates a catalog service.
func NewCatalog(primary Primary, sync Syncer, reader Reader, migrator Migrator, log *slog.Logger) *Catalog {
	return &Catalog{
		primary:   primary,
		sync:      sync,
		reader:    reader,
		migrator:  migrator,
		validator: validation.New(),
		logger:    logger.Component(log, "catalog"),
	}
}

// GetEntities returns the entities of kind matching q.
func (c *Catalog) GetEntities(ctx context.Context, kind domain.Kind, q domain.Query) ([]domain.Entity, error) {
	return c.reader.Query(ctx, kind, q)
}

// GetEntityByID returns one entity from the primary store.
// Returns NOT_FOUND if it does not exist; the secondary is never consulted.
func (c *Catalog) GetEntityByID(ctx context.Context, kind domain.Kind, id string) (domain.Entity, error) {
	if !kind.Valid() {
		return nil, domainerrors.Validationf("unknown entity kind %q", kind)
	}
	doc, err := c.primary.Get(ctx, string(kind), id)
	if err != nil {
		return nil, err
	}
	return mapper.FromDocument(kind, doc)
}

// CreateEntity validates e, stores it with a new id and mirrors it to the
// secondary store. Returns CONFLICT if its natural key is taken.
func (c *Catalog) CreateEntity(ctx context.Context, kind domain.Kind, e domain.Entity) (domain.Entity, error) {
	if e == nil || e.Kind() != kind {
		return nil, domainerrors.Validationf("expected a %s entity", kind)
	}
	prepare(e)
	if err := c.validator.Validate(e); err != nil {
		return nil, err
	}

	fields, err := mapper.ToDocument(e)
	if err != nil {
		return nil, err
	}
	doc, err := c.primary.Insert(ctx, string(kind), fields, mapper.UniqueGroups(kind)...)
	if err != nil {
		return nil, conflict(kind, e, err)
	}
	created, err := mapper.FromDocument(kind, doc)
	if err != nil {
		return nil, err
	}

	c.logger.Info("entity created",
		slog.String(logger.KeyKind, string(kind)),
		slog.String(logger.KeyPrimaryID, doc.ID),
	)
	c.sync.Submit(ctx, domain.SyncInsert, created)
	return created, nil
}

// UpdateEntity merges patch into an entity. A nil or zero patch value clears
// the field. Returns NOT_FOUND if the entity does not exist.
func (c *Catalog) UpdateEntity(ctx context.Context, kind domain.Kind, id string, patch domain.Patch) (domain.Entity, error) {
	if len(patch) == 0 {
		return nil, domainerrors.Validation("empty patch")
	}
	fields, err := mapper.PatchFields(kind, patch)
	if err != nil {
		return nil, err
	}
	if kind == domain.KindBooks {
		if v, ok := fields["language"].(string); ok {
			fields["language"] = normalize.LanguageCode(v)
		}
	}
	if kind != domain.KindFavorites {
		fields["updatedAt"] = store.TimestampOf(domain.Now())
	}

	current, err := c.primary.Get(ctx, string(kind), id)
	if err != nil {
		return nil, err
	}
	merged, err := mapper.FromDocument(kind, &store.Document{
		ID:         current.ID,
		Fields:     merge(current.Fields, fields),
		CreateTime: current.CreateTime,
		UpdateTime: current.UpdateTime,
	})
	if err != nil {
		return nil, err
	}
	if err := c.validator.Validate(merged); err != nil {
		return nil, err
	}

	doc, err := c.primary.Update(ctx, string(kind), id, fields, mapper.UniqueGroups(kind)...)
	if err != nil {
		return nil, conflict(kind, merged, err)
	}
	updated, err := mapper.FromDocument(kind, doc)
	if err != nil {
		return nil, err
	}

	c.sync.Submit(ctx, domain.SyncUpdate, updated)
	return updated, nil
}

// DeleteEntity removes an entity. Deleting a book also removes its favorites.
// Returns NOT_FOUND if the entity does not exist.
func (c *Catalog) DeleteEntity(ctx context.Context, kind domain.Kind, id string) error {
	if kind == domain.KindBooks {
		return c.DeleteBook(ctx, id)
	}
	return c.delete(ctx, kind, id)
}

func (c *Catalog) delete(ctx context.Context, kind domain.Kind, id string) error {
	if !kind.Valid() {
		return domainerrors.Validationf("unknown entity kind %q", kind)
	}
	if err := c.primary.Delete(ctx, string(kind), id); err != nil {
		return err
	}
	e, _ := domain.New(kind)
	setID(e, id)
	c.sync.Submit(ctx, domain.SyncDelete, e)
	return nil
}

// RunMigration copies every primary record of kind into the secondary store.
func (c *Catalog) RunMigration(ctx context.Context, kind domain.Kind, opts migration.Options) (migration.Result, error) {
	return c.migrator.Run(ctx, kind, opts)
}

// prepare normalizes a new entity and stamps its creation time.
func prepare(e domain.Entity) {
	switch v := e.(type) {
	case *domain.Book:
		if v.CoverImage == "" {
			v.CoverImage = v.CoverURL
		}
		v.SyncCover()
		v.ISBN = normalize.ISBN(v.ISBN)
		v.Genres = normalize.Genres(v.Genres)
		v.Language = normalize.LanguageCode(v.Language)
		v.InitTimestamps()
	case *domain.Favorite:
		v.CreatedAt = domain.Now()
	case *domain.UserBook:
		if v.Status == "" {
			v.Status = domain.StatusWantToRead
		}
		v.InitTimestamps()
	}
}

func setID(e domain.Entity, id string) {
	switch v := e.(type) {
	case *domain.Book:
		v.ID = id
	case *domain.Favorite:
		v.ID = id
	case *domain.UserBook:
		v.ID = id
	}
}

// merge applies a document patch to a copy of fields.
func merge(fields, patch map[string]any) map[string]any {
	out := maps.Clone(fields)
	if out == nil {
		out = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// conflict rewrites a natural key violation in the caller's terms.
func conflict(kind domain.Kind, e domain.Entity, err error) error {
	if domainerrors.CodeOf(err) != domainerrors.CodeConflict {
		return err
	}
	switch kind {
	case domain.KindBooks:
		return domainerrors.Conflictf("a book with ISBN %s already exists", e.NaturalKey()).WithCause(err)
	case domain.KindFavorites:
		return domainerrors.Conflict("favorite already exists").WithCause(err)
	case domain.KindUserBooks:
		return domainerrors.Conflict("book is already on the shelf").WithCause(err)
	}
	return err
}
