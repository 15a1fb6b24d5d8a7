package service

import (
	"context"
	"log/slog"

	"github.com/Lydia02/E-Library-sub000/internal/domain"
	"github.com/Lydia02/E-Library-sub000/internal/logger"
)

// CreateBook adds a book to the catalog.
// Returns CONFLICT if another book has the same ISBN.
func (c *Catalog) CreateBook(ctx context.Context, b *domain.Book) (*domain.Book, error) {
	e, err := c.CreateEntity(ctx, domain.KindBooks, b)
	if err != nil {
		return nil, err
	}
	return e.(*domain.Book), nil
}

// GetBook returns a book from the primary store.
func (c *Catalog) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	e, err := c.GetEntityByID(ctx, domain.KindBooks, id)
	if err != nil {
		return nil, err
	}
	return e.(*domain.Book), nil
}

// UpdateBook merges patch into a book.
func (c *Catalog) UpdateBook(ctx context.Context, id string, patch domain.Patch) (*domain.Book, error) {
	e, err := c.UpdateEntity(ctx, domain.KindBooks, id, patch)
	if err != nil {
		return nil, err
	}
	return e.(*domain.Book), nil
}

// DeleteBook removes a book and every favorite pointing at it. Once the book is
// gone the call succeeds; a failed favorites cleanup is logged and leaves
// dangling favorites behind.
func (c *Catalog) DeleteBook(ctx context.Context, id string) error {
	if err := c.delete(ctx, domain.KindBooks, id); err != nil {
		return err
	}

	favs, err := c.reader.Query(ctx, domain.KindFavorites, domain.Where("bookId", domain.OpEqual, id))
	if err != nil {
		c.logger.Error("failed to find favorites of deleted book",
			slog.String(logger.KeyPrimaryID, id), logger.Err(err))
		return nil
	}
	if len(favs) == 0 {
		return nil
	}
	ids := make([]string, len(favs))
	for i, f := range favs {
		ids[i] = f.EntityID()
	}
	n, err := c.primary.BatchDelete(ctx, string(domain.KindFavorites), ids)
	if err != nil {
		c.logger.Error("failed to delete favorites of deleted book",
			slog.String(logger.KeyPrimaryID, id),
			slog.Int("favorites", len(ids)),
			logger.Err(err),
		)
		return nil
	}
	c.sync.SubmitBatchDelete(ctx, domain.KindFavorites, ids)

	c.logger.Info("book deleted with favorites",
		slog.String(logger.KeyPrimaryID, id),
		slog.Int("favorites", n),
	)
	return nil
}

// SearchBooksByGenre lists the books tagged with genre.
func (c *Catalog) SearchBooksByGenre(ctx context.Context, genre string, limit int) ([]*domain.Book, error) {
	q := domain.Where("genres", domain.OpArrayContains, genre).Page(limit, 0)
	es, err := c.reader.Query(ctx, domain.KindBooks, q)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Book, len(es))
	for i, e := range es {
		out[i] = e.(*domain.Book)
	}
	return out, nil
}
