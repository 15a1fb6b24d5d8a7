package service

import (
	"context"

	"github.com/Lydia02/E-Library-sub000/internal/domain"
	domainerrors "github.com/Lydia02/E-Library-sub000/internal/errors"
)

// AddFavorite marks a book as a favorite of a user.
// Returns CONFLICT if the user already favorited the book.
func (c *Catalog) AddFavorite(ctx context.Context, userID, bookID string) (*domain.Favorite, error) {
	e, err := c.CreateEntity(ctx, domain.KindFavorites, &domain.Favorite{UserID: userID, BookID: bookID})
	if err != nil {
		return nil, err
	}
	return e.(*domain.Favorite), nil
}

// RemoveFavorite removes a user's favorite.
// Returns NOT_FOUND if the book is not a favorite of the user.
func (c *Catalog) RemoveFavorite(ctx context.Context, userID, bookID string) error {
	q := domain.Where("userId", domain.OpEqual, userID).Where("bookId", domain.OpEqual, bookID)
	favs, err := c.reader.Query(ctx, domain.KindFavorites, q)
	if err != nil {
		return err
	}
	if len(favs) == 0 {
		return domainerrors.NotFound("favorite not found")
	}
	for _, f := range favs {
		if err := c.delete(ctx, domain.KindFavorites, f.EntityID()); err != nil {
			return err
		}
	}
	return nil
}

// ListFavoriteBooks returns the books a user favorited, newest favorite first.
// Books that no longer exist are left out.
func (c *Catalog) ListFavoriteBooks(ctx context.Context, userID string) ([]*domain.Book, error) {
	q := domain.Where("userId", domain.OpEqual, userID).Order("createdAt", true)
	favs, err := c.reader.Query(ctx, domain.KindFavorites, q)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(favs))
	for _, e := range favs {
		ids = append(ids, e.(*domain.Favorite).BookID)
	}
	return c.reader.ResolveBooks(ctx, ids)
}
