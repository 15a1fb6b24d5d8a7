package postgres

import (
	"time"

	"github.com/Lydia02/E-Library-sub000/internal/domain"
)

// Row is a typed secondary row. Every table carries primary_id, the id of the
// primary document the row projects.
type Row interface {
	// Table is the kind the row belongs to; the table carries the same name.
	Table() domain.Kind
	// PrimaryKey returns primary_id.
	PrimaryKey() string
	// NaturalKey returns the natural key columns and values, or nil when the
	// row does not carry a complete natural key.
	NaturalKey() (columns []string, values []any)
	// Stamp returns the last-write-wins column and its value.
	Stamp() (column string, value time.Time)
	// Columns lists every column, in table order.
	Columns() []string
	// Values returns the column values in Columns order.
	Values() []any
}

// BookRow is a row of the books table.
type BookRow struct {
	PrimaryID       string    `db:"primary_id"`
	Title           *string   `db:"title"`
	TitleLower      *string   `db:"title_lower"`
	Author          *string   `db:"author"`
	ISBN            *string   `db:"isbn"`
	Description     *string   `db:"description"`
	CoverImage      *string   `db:"cover_image"`
	PublishedYear   *int      `db:"published_year"`
	Publisher       *string   `db:"publisher"`
	PageCount       *int      `db:"page_count"`
	Language        *string   `db:"language"`
	Genres          []string  `db:"genres"`
	Rating          *float64  `db:"rating"`
	TotalRatings    *int      `db:"total_ratings"`
	CreatedBy       *string   `db:"created_by"`
	IsUserGenerated bool      `db:"is_user_generated"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

var bookColumns = []string{
	"primary_id", "title", "title_lower", "author", "isbn", "description", "cover_image",
	"published_year", "publisher", "page_count", "language", "genres", "rating",
	"total_ratings", "created_by", "is_user_generated", "created_at", "updated_at",
}

// Table implements Row.
func (*BookRow) Table() domain.Kind { return domain.KindBooks }

// PrimaryKey implements Row.
func (r *BookRow) PrimaryKey() string { return r.PrimaryID }

// NaturalKey implements Row. Books are keyed by ISBN.
func (r *BookRow) NaturalKey() ([]string, []any) {
	if r.ISBN == nil || *r.ISBN == "" {
		return nil, nil
	}
	return []string{"isbn"}, []any{*r.ISBN}
}

// Stamp implements Row.
func (r *BookRow) Stamp() (string, time.Time) { return "updated_at", r.UpdatedAt }

// Columns implements Row.
func (*BookRow) Columns() []string { return bookColumns }

// Values implements Row.
func (r *BookRow) Values() []any {
	genres := r.Genres
	if genres == nil {
		genres = []string{}
	}
	return []any{
		r.PrimaryID, r.Title, r.TitleLower, r.Author, r.ISBN, r.Description, r.CoverImage,
		r.PublishedYear, r.Publisher, r.PageCount, r.Language, genres, r.Rating,
		r.TotalRatings, r.CreatedBy, r.IsUserGenerated, r.CreatedAt, r.UpdatedAt,
	}
}

// FavoriteRow is a row of the favorites table.
type FavoriteRow struct {
	PrimaryID string    `db:"primary_id"`
	UserID    *string   `db:"user_id"`
	BookID    *string   `db:"book_id"`
	CreatedAt time.Time `db:"created_at"`
}

var favoriteColumns = []string{"primary_id", "user_id", "book_id", "created_at"}

// Table implements Row.
func (*FavoriteRow) Table() domain.Kind { return domain.KindFavorites }

// PrimaryKey implements Row.
func (r *FavoriteRow) PrimaryKey() string { return r.PrimaryID }

// NaturalKey implements Row. Favorites are keyed by (user_id, book_id).
func (r *FavoriteRow) NaturalKey() ([]string, []any) {
	return pairKey(r.UserID, r.BookID)
}

// Stamp implements Row. Favorites are immutable, so creation time orders writes.
func (r *FavoriteRow) Stamp() (string, time.Time) { return "created_at", r.CreatedAt }

// Columns implements Row.
func (*FavoriteRow) Columns() []string { return favoriteColumns }

// Values implements Row.
func (r *FavoriteRow) Values() []any {
	return []any{r.PrimaryID, r.UserID, r.BookID, r.CreatedAt}
}

// UserBookRow is a row of the user_books table.
type UserBookRow struct {
	PrimaryID        string     `db:"primary_id"`
	UserID           *string    `db:"user_id"`
	BookID           *string    `db:"book_id"`
	CustomTitle      *string    `db:"custom_title"`
	CustomAuthor     *string    `db:"custom_author"`
	CustomCoverImage *string    `db:"custom_cover_image"`
	Status           *string    `db:"status"`
	PersonalRating   *int       `db:"personal_rating"`
	Progress         *int       `db:"progress"`
	Notes            *string    `db:"notes"`
	StartedAt        *time.Time `db:"started_at"`
	CompletedAt      *time.Time `db:"completed_at"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

var userBookColumns = []string{
	"primary_id", "user_id", "book_id", "custom_title", "custom_author", "custom_cover_image",
	"status", "personal_rating", "progress", "notes", "started_at", "completed_at",
	"created_at", "updated_at",
}

// Table implements Row.
func (*UserBookRow) Table() domain.Kind { return domain.KindUserBooks }

// PrimaryKey implements Row.
func (r *UserBookRow) PrimaryKey() string { return r.PrimaryID }

// NaturalKey implements Row. Catalog entries are keyed by (user_id, book_id);
// custom entries have no book and no natural key.
func (r *UserBookRow) NaturalKey() ([]string, []any) {
	return pairKey(r.UserID, r.BookID)
}

// Stamp implements Row.
func (r *UserBookRow) Stamp() (string, time.Time) { return "updated_at", r.UpdatedAt }

// Columns implements Row.
func (*UserBookRow) Columns() []string { return userBookColumns }

// Values implements Row.
func (r *UserBookRow) Values() []any {
	return []any{
		r.PrimaryID, r.UserID, r.BookID, r.CustomTitle, r.CustomAuthor, r.CustomCoverImage,
		r.Status, r.PersonalRating, r.Progress, r.Notes, r.StartedAt, r.CompletedAt,
		r.CreatedAt, r.UpdatedAt,
	}
}

func pairKey(userID, bookID *string) ([]string, []any) {
	if userID == nil || bookID == nil || *userID == "" || *bookID == "" {
		return nil, nil
	}
	return []string{"user_id", "book_id"}, []any{*userID, *bookID}
}

// NaturalKeyString renders a row's natural key for logs, or "" when absent.
func NaturalKeyString(r Row) string {
	_, vals := r.NaturalKey()
	switch len(vals) {
	case 0:
		return ""
	case 1:
		s, _ := vals[0].(string)
		return s
	}
	a, _ := vals[0].(string)
	b, _ := vals[1].(string)
	return domain.PairKey(a, b)
}

// NewRow returns an empty row for a kind.
func NewRow(k domain.Kind) (Row, error) {
	switch k {
	case domain.KindBooks:
		return &BookRow{}, nil
	case domain.KindFavorites:
		return &FavoriteRow{}, nil
	case domain.KindUserBooks:
		return &UserBookRow{}, nil
	}
	return nil, errUnknownTable(k)
}

// ColumnsOf lists the columns of a table.
func ColumnsOf(k domain.Kind) []string {
	switch k {
	case domain.KindBooks:
		return bookColumns
	case domain.KindFavorites:
		return favoriteColumns
	case domain.KindUserBooks:
		return userBookColumns
	}
	return nil
}

// NaturalKeyColumns lists the natural key columns of a table.
func NaturalKeyColumns(k domain.Kind) []string {
	switch k {
	case domain.KindBooks:
		return []string{"isbn"}
	case domain.KindFavorites, domain.KindUserBooks:
		return []string{"user_id", "book_id"}
	}
	return nil
}

// IsArrayColumn reports whether a column holds an array.
func IsArrayColumn(k domain.Kind, column string) bool {
	return k == domain.KindBooks && column == "genres"
}
