package mapper

import (
	"time"

	"github.com/Lydia02/E-Library-sub000/internal/domain"
	domainerrors "github.com/Lydia02/E-Library-sub000/internal/errors"
	"github.com/Lydia02/E-Library-sub000/internal/normalize"
	"github.com/Lydia02/E-Library-sub000/internal/store/postgres"
)

// ToRow converts an entity to its secondary row. Every column is filled: empty
// scalars become NULL, genres stay an array and title_lower carries the
// search key of the title.
func ToRow(e domain.Entity) (postgres.Row, error) {
	switch v := e.(type) {
	case *domain.Book:
		return &postgres.BookRow{
			PrimaryID:       v.ID,
			Title:           optString(v.Title),
			TitleLower:      optString(normalize.SearchKey(v.Title)),
			Author:          optString(v.Author),
			ISBN:            optString(v.ISBN),
			Description:     optString(v.Description),
			CoverImage:      optString(cover(v)),
			PublishedYear:   optInt(v.PublishedYear),
			Publisher:       optString(v.Publisher),
			PageCount:       optInt(v.PageCount),
			Language:        optString(v.Language),
			Genres:          normalize.Genres(v.Genres),
			Rating:          optFloat(v.Rating),
			TotalRatings:    optInt(v.TotalRatings),
			CreatedBy:       optString(v.CreatedBy),
			IsUserGenerated: v.UserGenerated,
			CreatedAt:       NormalizeTime(v.CreatedAt),
			UpdatedAt:       NormalizeTime(v.UpdatedAt),
		}, nil
	case *domain.Favorite:
		return &postgres.FavoriteRow{
			PrimaryID: v.ID,
			UserID:    optString(v.UserID),
			BookID:    optString(v.BookID),
			CreatedAt: NormalizeTime(v.CreatedAt),
		}, nil
	case *domain.UserBook:
		return &postgres.UserBookRow{
			PrimaryID:        v.ID,
			UserID:           optString(v.UserID),
			BookID:           optString(v.BookID),
			CustomTitle:      optString(v.CustomTitle),
			CustomAuthor:     optString(v.CustomAuthor),
			CustomCoverImage: optString(v.CustomCoverImage),
			Status:           optString(string(v.Status)),
			PersonalRating:   optInt(v.PersonalRating),
			Progress:         optInt(v.Progress),
			Notes:            optString(v.Notes),
			StartedAt:        optTime(v.StartedAt),
			CompletedAt:      optTime(v.CompletedAt),
			CreatedAt:        NormalizeTime(v.CreatedAt),
			UpdatedAt:        NormalizeTime(v.UpdatedAt),
		}, nil
	}
	return nil, domainerrors.Validationf("unsupported entity %T", e)
}

// FromRow converts a secondary row back to its canonical entity.
func FromRow(r postgres.Row) (domain.Entity, error) {
	switch v := r.(type) {
	case *postgres.BookRow:
		b := &domain.Book{
			ID:            v.PrimaryID,
			Title:         deref(v.Title),
			Author:        deref(v.Author),
			ISBN:          deref(v.ISBN),
			Description:   deref(v.Description),
			CoverImage:    deref(v.CoverImage),
			PublishedYear: deref(v.PublishedYear),
			Publisher:     deref(v.Publisher),
			PageCount:     deref(v.PageCount),
			Language:      deref(v.Language),
			Genres:        normalize.Genres(v.Genres),
			Rating:        deref(v.Rating),
			TotalRatings:  deref(v.TotalRatings),
			CreatedBy:     deref(v.CreatedBy),
			UserGenerated: v.IsUserGenerated,
			CreatedAt:     NormalizeTime(v.CreatedAt),
			UpdatedAt:     NormalizeTime(v.UpdatedAt),
		}
		b.SyncCover()
		return b, nil
	case *postgres.FavoriteRow:
		return &domain.Favorite{
			ID:        v.PrimaryID,
			UserID:    deref(v.UserID),
			BookID:    deref(v.BookID),
			CreatedAt: NormalizeTime(v.CreatedAt),
		}, nil
	case *postgres.UserBookRow:
		return &domain.UserBook{
			ID:               v.PrimaryID,
			UserID:           deref(v.UserID),
			BookID:           deref(v.BookID),
			CustomTitle:      deref(v.CustomTitle),
			CustomAuthor:     deref(v.CustomAuthor),
			CustomCoverImage: deref(v.CustomCoverImage),
			Status:           domain.ReadingStatus(deref(v.Status)),
			PersonalRating:   deref(v.PersonalRating),
			Progress:         deref(v.Progress),
			Notes:            deref(v.Notes),
			StartedAt:        optTime(v.StartedAt),
			CompletedAt:      optTime(v.CompletedAt),
			CreatedAt:        NormalizeTime(v.CreatedAt),
			UpdatedAt:        NormalizeTime(v.UpdatedAt),
		}, nil
	}
	return nil, domainerrors.Validationf("unsupported row %T", r)
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optInt(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}

func optFloat(f float64) *float64 {
	if f == 0 {
		return nil
	}
	return &f
}

func optTime(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	n := NormalizeTime(*t)
	return &n
}

func deref[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}
