package mapper

import (
	"fmt"
	"time"

	"github.com/Lydia02/E-Library-sub000/internal/domain"
	domainerrors "github.com/Lydia02/E-Library-sub000/internal/errors"
	"github.com/Lydia02/E-Library-sub000/internal/normalize"
	"github.com/Lydia02/E-Library-sub000/internal/store"
)

// ToDocument returns the primary document fields of an entity. Zero-valued
// scalars are left out; genres are always present.
func ToDocument(e domain.Entity) (map[string]any, error) {
	out := map[string]any{}
	put := func(name string, v any) {
		switch x := v.(type) {
		case string:
			if x != "" {
				out[name] = x
			}
		case int:
			if x != 0 {
				out[name] = x
			}
		case float64:
			if x != 0 {
				out[name] = x
			}
		case time.Time:
			if !x.IsZero() {
				out[name] = store.TimestampOf(NormalizeTime(x))
			}
		case *time.Time:
			if x != nil && !x.IsZero() {
				out[name] = store.TimestampOf(NormalizeTime(*x))
			}
		default:
			out[name] = v
		}
	}

	switch v := e.(type) {
	case *domain.Book:
		put("title", v.Title)
		put("author", v.Author)
		put("isbn", v.ISBN)
		put("description", v.Description)
		put("coverImage", cover(v))
		put("publishedYear", v.PublishedYear)
		put("publisher", v.Publisher)
		put("pageCount", v.PageCount)
		put("language", v.Language)
		out["genres"] = normalize.Genres(v.Genres)
		put("rating", v.Rating)
		put("totalRatings", v.TotalRatings)
		put("createdBy", v.CreatedBy)
		out["isUserGenerated"] = v.UserGenerated
		put("createdAt", v.CreatedAt)
		put("updatedAt", v.UpdatedAt)
	case *domain.Favorite:
		put("userId", v.UserID)
		put("bookId", v.BookID)
		put("createdAt", v.CreatedAt)
	case *domain.UserBook:
		put("userId", v.UserID)
		put("bookId", v.BookID)
		put("customTitle", v.CustomTitle)
		put("customAuthor", v.CustomAuthor)
		put("customCoverImage", v.CustomCoverImage)
		put("status", string(v.Status))
		put("personalRating", v.PersonalRating)
		put("progress", v.Progress)
		put("notes", v.Notes)
		put("startedAt", v.StartedAt)
		put("completedAt", v.CompletedAt)
		put("createdAt", v.CreatedAt)
		put("updatedAt", v.UpdatedAt)
	default:
		return nil, domainerrors.Validationf("unsupported entity %T", e)
	}
	return out, nil
}

// FromDocument converts a primary document to its canonical entity. Legacy
// shapes are accepted: a scalar category instead of genres, and timestamps as
// RFC3339 strings or epoch numbers. Missing createdAt and updatedAt fall back
// to the document's own create and update times.
func FromDocument(k domain.Kind, doc *store.Document) (domain.Entity, error) {
	if doc == nil {
		return nil, domainerrors.Validation("nil document")
	}
	r := &docReader{fields: doc.Fields}

	var e domain.Entity
	switch k {
	case domain.KindBooks:
		b := &domain.Book{
			ID:            doc.ID,
			Title:         r.str("title"),
			Author:        r.str("author"),
			ISBN:          r.str("isbn"),
			Description:   r.str("description"),
			CoverImage:    r.str("coverImage"),
			PublishedYear: r.integer("publishedYear"),
			Publisher:     r.str("publisher"),
			PageCount:     r.integer("pageCount"),
			Language:      r.str("language"),
			Genres:        r.genres(),
			Rating:        r.number("rating"),
			TotalRatings:  r.integer("totalRatings"),
			CreatedBy:     r.str("createdBy"),
			UserGenerated: r.boolean("isUserGenerated"),
			CreatedAt:     r.instant("createdAt", doc.CreateTime),
			UpdatedAt:     r.instant("updatedAt", doc.UpdateTime),
		}
		if b.CoverImage == "" {
			b.CoverImage = r.str("coverUrl")
		}
		b.SyncCover()
		e = b
	case domain.KindFavorites:
		e = &domain.Favorite{
			ID:        doc.ID,
			UserID:    r.str("userId"),
			BookID:    r.str("bookId"),
			CreatedAt: r.instant("createdAt", doc.CreateTime),
		}
	case domain.KindUserBooks:
		e = &domain.UserBook{
			ID:               doc.ID,
			UserID:           r.str("userId"),
			BookID:           r.str("bookId"),
			CustomTitle:      r.str("customTitle"),
			CustomAuthor:     r.str("customAuthor"),
			CustomCoverImage: r.str("customCoverImage"),
			Status:           domain.ReadingStatus(r.str("status")),
			PersonalRating:   r.integer("personalRating"),
			Progress:         r.integer("progress"),
			Notes:            r.str("notes"),
			StartedAt:        r.instantPtr("startedAt"),
			CompletedAt:      r.instantPtr("completedAt"),
			CreatedAt:        r.instant("createdAt", doc.CreateTime),
			UpdatedAt:        r.instant("updatedAt", doc.UpdateTime),
		}
	default:
		return nil, domainerrors.Validationf("unknown entity kind %q", k)
	}

	if r.err != nil {
		return nil, domainerrors.Validationf("%s/%s: %v", k, doc.ID, r.err)
	}
	return e, nil
}

// docReader reads typed fields, keeping the first error.
type docReader struct {
	fields map[string]any
	err    error
}

func (r *docReader) fail(name string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("field %s: %w", name, err)
	}
}

func (r *docReader) str(name string) string {
	s, err := asString(r.fields[name])
	if err != nil {
		r.fail(name, err)
	}
	return s
}

func (r *docReader) integer(name string) int {
	n, err := asInt(r.fields[name])
	if err != nil {
		r.fail(name, err)
	}
	return n
}

func (r *docReader) number(name string) float64 {
	n, err := asFloat(r.fields[name])
	if err != nil {
		r.fail(name, err)
	}
	return n
}

func (r *docReader) boolean(name string) bool {
	b, err := asBool(r.fields[name])
	if err != nil {
		r.fail(name, err)
	}
	return b
}

func (r *docReader) instant(name string, fallback store.Timestamp) time.Time {
	t, err := asTime(r.fields[name])
	if err != nil {
		r.fail(name, err)
	}
	if t.IsZero() {
		return NormalizeTime(fallback.Time())
	}
	return t
}

func (r *docReader) instantPtr(name string) *time.Time {
	t, err := asTime(r.fields[name])
	if err != nil {
		r.fail(name, err)
	}
	if t.IsZero() {
		return nil
	}
	return &t
}

// genres reads the genre list, falling back to the legacy scalar category.
func (r *docReader) genres() []string {
	raw, ok := r.fields["genres"]
	if !ok || raw == nil {
		raw = r.fields["category"]
	}
	list, err := asStrings(raw)
	if err != nil {
		r.fail("genres", err)
	}
	return normalize.Genres(list)
}

func cover(b *domain.Book) string {
	if b.CoverImage != "" {
		return b.CoverImage
	}
	return b.CoverURL
}
