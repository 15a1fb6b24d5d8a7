package service

import (
	"context"

	"github.com/Lydia02/E-Library-sub000/internal/domain"
)

// AddUserBook puts a catalog book, or a custom entry, on a user's shelf.
// Returns CONFLICT if the catalog book is already on the shelf.
func (c *Catalog) AddUserBook(ctx context.Context, ub *domain.UserBook) (*domain.UserBook, error) {
	e, err := c.CreateEntity(ctx, domain.KindUserBooks, ub)
	if err != nil {
		return nil, err
	}
	return e.(*domain.UserBook), nil
}

// UpdateUserBook merges patch into a shelf entry.
func (c *Catalog) UpdateUserBook(ctx context.Context, id string, patch domain.Patch) (*domain.UserBook, error) {
	e, err := c.UpdateEntity(ctx, domain.KindUserBooks, id, patch)
	if err != nil {
		return nil, err
	}
	return e.(*domain.UserBook), nil
}

// ListUserBooks returns a user's shelf, most recently updated first, with the
// catalog book of every entry that references one.
func (c *Catalog) ListUserBooks(ctx context.Context, userID string) ([]*domain.UserBook, error) {
	q := domain.Where("userId", domain.OpEqual, userID).Order("updatedAt", true)
	es, err := c.reader.Query(ctx, domain.KindUserBooks, q)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.UserBook, len(es))
	var ids []string
	for i, e := range es {
		out[i] = e.(*domain.UserBook)
		if !out[i].IsCustom() {
			ids = append(ids, out[i].BookID)
		}
	}
	books, err := c.reader.ResolveBooks(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.Book, len(books))
	for _, b := range books {
		byID[b.ID] = b
	}
	for _, ub := range out {
		ub.Book = byID[ub.BookID]
	}
	return out, nil
}
