package mapper

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lydia02/E-Library-sub000/internal/domain"
	domainerrors "github.com/Lydia02/E-Library-sub000/internal/errors"
	"github.com/Lydia02/E-Library-sub000/internal/store"
	"github.com/Lydia02/E-Library-sub000/internal/store/postgres"
)

var created = time.Date(2024, 2, 10, 15, 4, 5, 123456789, time.UTC)

func sampleBook() *domain.Book {
	return &domain.Book{
		ID:            "book_abc",
		Title:         "Dune",
		Author:        "Frank Herbert",
		ISBN:          "9780441013593",
		Description:   "Spice.",
		CoverImage:    "https://img.example/dune.jpg",
		PublishedYear: 1965,
		Publisher:     "Chilton",
		PageCount:     412,
		Language:      "en",
		Genres:        []string{"Science Fiction", "Classic"},
		Rating:        4.5,
		TotalRatings:  12,
		CreatedBy:     "user_1",
		UserGenerated: true,
		CreatedAt:     created,
		UpdatedAt:     created.Add(time.Hour),
	}
}

func TestRowRoundTrip(t *testing.T) {
	started := created.Add(24 * time.Hour)
	entities := []domain.Entity{
		sampleBook(),
		&domain.Book{ID: "book_bare", Title: "Untitled", Author: "Anon", Genres: []string{}, CreatedAt: created, UpdatedAt: created},
		&domain.Favorite{ID: "fav_1", UserID: "42", BookID: "7", CreatedAt: created},
		&domain.UserBook{
			ID: "ub_1", UserID: "42", BookID: "7", Status: domain.StatusReading,
			PersonalRating: 4, Progress: 30, Notes: "great", StartedAt: &started,
			CreatedAt: created, UpdatedAt: created,
		},
		&domain.UserBook{ID: "ub_2", UserID: "42", CustomTitle: "Zine", CustomAuthor: "Me", CreatedAt: created, UpdatedAt: created},
	}

	for _, e := range entities {
		t.Run(e.EntityID(), func(t *testing.T) {
			row, err := ToRow(e)
			require.NoError(t, err)
			back, err := FromRow(row)
			require.NoError(t, err)
			assert.Equal(t, normalized(t, e), back)
		})
	}
}

// normalized is the expected round-trip result: timestamps at microsecond
// precision and the cover alias filled.
func normalized(t *testing.T, e domain.Entity) domain.Entity {
	t.Helper()
	switch v := e.(type) {
	case *domain.Book:
		c := *v
		c.CreatedAt = domain.NormalizeTime(c.CreatedAt)
		c.UpdatedAt = domain.NormalizeTime(c.UpdatedAt)
		c.SyncCover()
		return &c
	case *domain.Favorite:
		c := *v
		c.CreatedAt = domain.NormalizeTime(c.CreatedAt)
		return &c
	case *domain.UserBook:
		c := *v
		c.CreatedAt = domain.NormalizeTime(c.CreatedAt)
		c.UpdatedAt = domain.NormalizeTime(c.UpdatedAt)
		c.StartedAt = domain.NormalizeTimePtr(c.StartedAt)
		return &c
	}
	t.Fatalf("unexpected entity %T", e)
	return nil
}

func TestToRow_Book(t *testing.T) {
	b := sampleBook()
	b.Title = "  The   Left Hand of DARKNESS "
	b.Description = ""
	b.Genres = nil

	row, err := ToRow(b)
	require.NoError(t, err)
	br := row.(*postgres.BookRow)

	require.NotNil(t, br.TitleLower)
	assert.Equal(t, "the left hand of darkness", *br.TitleLower)
	assert.Nil(t, br.Description, "empty scalars become NULL")
	assert.NotNil(t, br.Genres)
	assert.Empty(t, br.Genres)
	assert.Equal(t, 123456000, br.CreatedAt.Nanosecond())
	assert.Len(t, br.Values(), len(br.Columns()))
}

func TestToRow_CoverURLAlias(t *testing.T) {
	b := sampleBook()
	b.CoverImage = ""
	b.CoverURL = "https://img.example/alias.jpg"

	row, err := ToRow(b)
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/alias.jpg", *row.(*postgres.BookRow).CoverImage)

	back, err := FromRow(row)
	require.NoError(t, err)
	assert.Equal(t, back.(*domain.Book).CoverImage, back.(*domain.Book).CoverURL)
}

func TestDocumentRoundTrip(t *testing.T) {
	b := sampleBook()
	fields, err := ToDocument(b)
	require.NoError(t, err)
	assert.IsType(t, store.Timestamp{}, fields["createdAt"])
	assert.NotContains(t, fields, "id")
	assert.NotContains(t, fields, "coverUrl")

	e, err := FromDocument(domain.KindBooks, &store.Document{ID: b.ID, Fields: fields})
	require.NoError(t, err)
	assert.Equal(t, normalized(t, b), e)
}

func TestFromDocument_LegacyShapes(t *testing.T) {
	var fields map[string]any
	dec := json.NewDecoder(strings.NewReader(`{
		"title": "Dune",
		"author": "Frank Herbert",
		"category": "Science Fiction",
		"publishedYear": 1965,
		"rating": 4.25,
		"createdAt": "2024-02-10T15:04:05.123456789Z",
		"updatedAt": 1707577445
	}`))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&fields))

	e, err := FromDocument(domain.KindBooks, &store.Document{ID: "book_legacy", Fields: fields})
	require.NoError(t, err)
	b := e.(*domain.Book)

	assert.Equal(t, []string{"Science Fiction"}, b.Genres)
	assert.Equal(t, 1965, b.PublishedYear)
	assert.InDelta(t, 4.25, b.Rating, 1e-9)
	assert.Equal(t, time.Date(2024, 2, 10, 15, 4, 5, 123456000, time.UTC), b.CreatedAt)
	assert.Equal(t, time.Unix(1707577445, 0).UTC(), b.UpdatedAt)
}

func TestFromDocument_TimestampShapes(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  time.Time
	}{
		{"epoch seconds structure", map[string]any{"_seconds": json.Number("1700000000"), "_nanoseconds": json.Number("500000000")}, time.Unix(1700000000, 500000000).UTC()},
		{"native timestamp", store.Timestamp{Seconds: 1700000000}, time.Unix(1700000000, 0).UTC()},
		{"epoch milliseconds", json.Number("1700000000123"), time.UnixMilli(1700000000123).UTC()},
		{"native time", created, domain.NormalizeTime(created)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := FromDocument(domain.KindFavorites, &store.Document{
				ID:     "fav_1",
				Fields: map[string]any{"userId": "42", "bookId": "7", "createdAt": tt.value},
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.(*domain.Favorite).CreatedAt)
		})
	}
}

func TestFromDocument_FallsBackToDocumentTimes(t *testing.T) {
	doc := &store.Document{
		ID:         "fav_1",
		Fields:     map[string]any{"userId": "42", "bookId": "7"},
		CreateTime: store.TimestampOf(created),
	}
	e, err := FromDocument(domain.KindFavorites, doc)
	require.NoError(t, err)
	assert.Equal(t, domain.NormalizeTime(created), e.(*domain.Favorite).CreatedAt)
}

func TestFromDocument_RejectsBadValues(t *testing.T) {
	_, err := FromDocument(domain.KindBooks, &store.Document{ID: "b", Fields: map[string]any{"pageCount": "many"}})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	_, err = FromDocument("shelves", &store.Document{ID: "x"})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestPatchFields(t *testing.T) {
	fields, err := PatchFields(domain.KindBooks, domain.Patch{
		"title":       "Dune Messiah",
		"isbn":        "978-0-593-09823-5",
		"genres":      []any{"Sci-Fi", "sci-fi ", "Space Opera"},
		"description": "",
		"coverUrl":    "https://img.example/m.jpg",
		"updatedAt":   created,
	})
	require.NoError(t, err)
	assert.Equal(t, "Dune Messiah", fields["title"])
	assert.Equal(t, "9780593098235", fields["isbn"])
	assert.Equal(t, []string{"Sci-Fi", "Space Opera"}, fields["genres"])
	assert.Nil(t, fields["description"])
	assert.Contains(t, fields, "description", "zero values remove the field")
	assert.Equal(t, "https://img.example/m.jpg", fields["coverImage"])
	assert.Equal(t, store.TimestampOf(domain.NormalizeTime(created)), fields["updatedAt"])

	_, err = PatchFields(domain.KindBooks, domain.Patch{"id": "other"})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
	_, err = PatchFields(domain.KindFavorites, domain.Patch{"createdAt": created})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
	_, err = PatchFields(domain.KindBooks, domain.Patch{"shelf": "x"})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
	_, err = PatchFields(domain.KindBooks, domain.Patch{"pageCount": 1.5})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestColumn(t *testing.T) {
	col, err := Column(domain.KindUserBooks, "personalRating")
	require.NoError(t, err)
	assert.Equal(t, "personal_rating", col)

	col, err = Column(domain.KindBooks, "coverUrl")
	require.NoError(t, err)
	assert.Equal(t, "cover_image", col)

	_, err = Column(domain.KindFavorites, "title")
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestToRowQuery(t *testing.T) {
	q := domain.Where("userId", domain.OpEqual, "42").Order("createdAt", true).Page(20, 40)
	got, err := ToRowQuery(domain.KindFavorites, q)
	require.NoError(t, err)
	assert.Equal(t, postgres.Query{
		Where:   []postgres.Condition{{Column: "user_id", Op: domain.OpEqual, Value: "42"}},
		OrderBy: "created_at",
		Desc:    true,
		Limit:   20,
		Offset:  40,
	}, got)

	got, err = ToRowQuery(domain.KindBooks, domain.Where("genres", domain.OpArrayContains, "Fantasy").Where("isbn", domain.OpEqual, "0-441-01359-7"))
	require.NoError(t, err)
	assert.Equal(t, []postgres.Condition{
		{Column: "genres", Op: domain.OpArrayContains, Value: "Fantasy"},
		{Column: "isbn", Op: domain.OpEqual, Value: "0441013597"},
	}, got.Where)

	_, err = ToRowQuery(domain.KindBooks, domain.Where("genres", domain.OpEqual, "Fantasy"))
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
	_, err = ToRowQuery(domain.KindBooks, domain.Where("title", domain.OpArrayContains, "Dune"))
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
	_, err = ToRowQuery(domain.KindBooks, domain.Query{}.Order("genres", false))
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestToDocumentQuery(t *testing.T) {
	q, err := ToDocumentQuery(domain.KindUserBooks, domain.Where("userId", domain.OpEqual, "42").Where("status", domain.OpEqual, domain.StatusRead))
	require.NoError(t, err)
	assert.Equal(t, "read", q.Filters[1].Value)

	q, err = ToDocumentQuery(domain.KindBooks, domain.Where("publishedYear", domain.OpEqual, json.Number("1965")))
	require.NoError(t, err)
	assert.Equal(t, 1965, q.Filters[0].Value)

	_, err = ToDocumentQuery(domain.KindBooks, domain.Where("id", domain.OpEqual, "book_1"))
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestUniqueGroups(t *testing.T) {
	assert.Equal(t, []store.Unique{{"isbn"}}, UniqueGroups(domain.KindBooks))
	assert.Equal(t, []store.Unique{{"userId", "bookId"}}, UniqueGroups(domain.KindFavorites))
}
