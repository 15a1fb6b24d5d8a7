package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lydia02/E-Library-sub000/internal/domain"
	domainerrors "github.com/Lydia02/E-Library-sub000/internal/errors"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewWithPool(mock, time.Second, nil), mock
}

func ptr[T any](v T) *T { return &v }

func dune() *BookRow {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &BookRow{
		PrimaryID:  "book_abc",
		Title:      ptr("Dune"),
		TitleLower: ptr("dune"),
		Author:     ptr("Frank Herbert"),
		ISBN:       ptr("9780441013593"),
		Genres:     []string{"Science Fiction"},
		CreatedAt:  at,
		UpdatedAt:  at,
	}
}

func TestBuildSelect(t *testing.T) {
	tests := []struct {
		name  string
		kind  domain.Kind
		query Query
		sql   string
		args  []any
	}{
		{
			name: "equality ordered and paged",
			kind: domain.KindFavorites,
			query: Query{
				Where:   []Condition{{Column: "user_id", Op: domain.OpEqual, Value: "42"}},
				OrderBy: "created_at",
				Desc:    true,
				Limit:   10,
				Offset:  20,
			},
			sql:  "SELECT primary_id, user_id, book_id, created_at FROM favorites WHERE user_id = $1 AND created_at IS NOT NULL ORDER BY created_at DESC, primary_id LIMIT $2 OFFSET $3",
			args: []any{"42", 10, 20},
		},
		{
			name: "array containment",
			kind: domain.KindBooks,
			query: Query{
				Where: []Condition{
					{Column: "genres", Op: domain.OpArrayContains, Value: "Fantasy"},
					{Column: "author", Op: domain.OpEqual, Value: "Tolkien"},
				},
			},
			sql:  "SELECT " + joinColumns(bookColumns) + " FROM books WHERE genres @> ARRAY[$1]::text[] AND author = $2 ORDER BY primary_id",
			args: []any{"Fantasy", "Tolkien"},
		},
		{
			name:  "unfiltered",
			kind:  domain.KindUserBooks,
			query: Query{},
			sql:   "SELECT " + joinColumns(userBookColumns) + " FROM user_books ORDER BY primary_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := buildSelect(tt.kind, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.sql, sql)
			assert.Equal(t, tt.args, []any(args))
		})
	}
}

func TestBuildSelect_RejectsBadColumns(t *testing.T) {
	_, _, err := buildSelect(domain.KindBooks, Query{Where: []Condition{{Column: "title; DROP TABLE books", Op: domain.OpEqual, Value: 1}}})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	_, _, err = buildSelect(domain.KindBooks, Query{Where: []Condition{{Column: "author", Op: domain.OpArrayContains, Value: "x"}}})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	_, _, err = buildSelect(domain.KindBooks, Query{OrderBy: "nope"})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	_, _, err = buildSelect("shelves", Query{})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestUpsertSQL_GuardsOwnershipAndStamp(t *testing.T) {
	sql := upsertSQL(dune())
	assert.Contains(t, sql, "INSERT INTO books AS t (primary_id, title,")
	assert.Contains(t, sql, "ON CONFLICT (isbn) DO UPDATE SET title = EXCLUDED.title,")
	assert.NotContains(t, sql, "primary_id = EXCLUDED.primary_id,")
	assert.NotContains(t, sql, "created_at = EXCLUDED.created_at")
	assert.True(t, regexp.MustCompile(`WHERE t\.primary_id = EXCLUDED\.primary_id AND t\.updated_at <= EXCLUDED\.updated_at$`).MatchString(sql))

	noISBN := dune()
	noISBN.ISBN = nil
	assert.Contains(t, upsertSQL(noISBN), "ON CONFLICT (primary_id)")

	fav := &FavoriteRow{PrimaryID: "fav_1", UserID: ptr("42"), BookID: ptr("7")}
	assert.Contains(t, upsertSQL(fav), "ON CONFLICT (user_id, book_id) DO UPDATE SET user_id = EXCLUDED.user_id, book_id = EXCLUDED.book_id WHERE t.primary_id = EXCLUDED.primary_id AND t.created_at <= EXCLUDED.created_at")
}

func TestUpsert(t *testing.T) {
	db, mock := newDB(t)
	row := dune()

	mock.ExpectExec(regexp.QuoteMeta(upsertSQL(row))).
		WithArgs(row.Values()...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta(upsertSQL(row))).
		WithArgs(row.Values()...).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	applied, err := db.Upsert(context.Background(), row)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = db.Upsert(context.Background(), row)
	require.NoError(t, err)
	assert.False(t, applied, "guarded upsert reports rows it did not touch")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_UniqueViolationIsConflict(t *testing.T) {
	db, mock := newDB(t)
	row := dune()

	mock.ExpectExec(regexp.QuoteMeta(insertSQL(row))).
		WithArgs(row.Values()...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "books_isbn_key"})

	err := db.Insert(context.Background(), row)
	require.Error(t, err)
	assert.ErrorIs(t, err, domainerrors.ErrConflict)
	assert.Contains(t, err.Error(), "books_isbn_key")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateByPrimaryID(t *testing.T) {
	db, mock := newDB(t)
	row := dune()
	query, args := updateSQL(row)

	assert.Equal(t, "UPDATE books SET title = $2, title_lower = $3, author = $4, isbn = $5, description = $6, cover_image = $7, published_year = $8, publisher = $9, page_count = $10, language = $11, genres = $12, rating = $13, total_ratings = $14, created_by = $15, is_user_generated = $16, updated_at = $17 WHERE primary_id = $1 AND updated_at <= $18", query)

	mock.ExpectExec(regexp.QuoteMeta(query)).
		WithArgs(args...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	applied, err := db.UpdateByPrimaryID(context.Background(), row)
	require.NoError(t, err)
	assert.False(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGet(t *testing.T) {
	db, mock := newDB(t)
	row := dune()
	query := "SELECT " + joinColumns(bookColumns) + " FROM books WHERE primary_id = $1"

	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs("book_abc").
		WillReturnRows(pgxmock.NewRows(bookColumns).AddRow(row.Values()...))
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(bookColumns))

	got, err := db.Get(context.Background(), domain.KindBooks, "book_abc")
	require.NoError(t, err)
	book, ok := got.(*BookRow)
	require.True(t, ok)
	assert.Equal(t, "Dune", *book.Title)
	assert.Equal(t, []string{"Science Fiction"}, book.Genres)
	assert.Nil(t, book.Description)

	_, err = db.Get(context.Background(), domain.KindBooks, "missing")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByNaturalKey(t *testing.T) {
	db, mock := newDB(t)
	fav := &FavoriteRow{PrimaryID: "fav_new", UserID: ptr("42"), BookID: ptr("7"), CreatedAt: time.Now().UTC()}
	existing := &FavoriteRow{PrimaryID: "fav_old", UserID: ptr("42"), BookID: ptr("7"), CreatedAt: time.Now().UTC()}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT primary_id, user_id, book_id, created_at FROM favorites WHERE user_id = $1 AND book_id = $2")).
		WithArgs("42", "7").
		WillReturnRows(pgxmock.NewRows(favoriteColumns).AddRow(existing.Values()...))

	got, err := db.FindByNaturalKey(context.Background(), fav)
	require.NoError(t, err)
	assert.Equal(t, "fav_old", got.PrimaryKey())

	custom := &UserBookRow{PrimaryID: "ub_custom", UserID: ptr("42"), CustomTitle: ptr("Zine")}
	mock.ExpectQuery(regexp.QuoteMeta("FROM user_books WHERE primary_id = $1")).
		WithArgs("ub_custom").
		WillReturnRows(pgxmock.NewRows(userBookColumns))

	_, err = db.FindByNaturalKey(context.Background(), custom)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteAndBatchDelete(t *testing.T) {
	db, mock := newDB(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM favorites WHERE primary_id = $1")).
		WithArgs("fav_1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM favorites WHERE primary_id = ANY($1)")).
		WithArgs([]string{"fav_1", "fav_2"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	require.NoError(t, db.Delete(context.Background(), domain.KindFavorites, "fav_1"), "deleting a missing row succeeds")

	n, err := db.BatchDelete(context.Background(), domain.KindFavorites, []string{"fav_1", "fav_2"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = db.BatchDelete(context.Background(), domain.KindFavorites, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPrimaryIDsAndCount(t *testing.T) {
	db, mock := newDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT primary_id FROM books ORDER BY primary_id")).
		WillReturnRows(pgxmock.NewRows([]string{"primary_id"}).AddRow("book_a").AddRow("book_b"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM books")).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(2)))

	ids, err := db.PrimaryIDs(context.Background(), domain.KindBooks)
	require.NoError(t, err)
	assert.Equal(t, []string{"book_a", "book_b"}, ids)

	n, err := db.Count(context.Background(), domain.KindBooks)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectionErrorsAreUnavailable(t *testing.T) {
	db, mock := newDB(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM books WHERE primary_id = $1")).
		WithArgs("book_a").
		WillReturnError(context.DeadlineExceeded)

	err := db.Delete(context.Background(), domain.KindBooks, "book_a")
	assert.ErrorIs(t, err, domainerrors.ErrUnavailable)
}

func TestNaturalKeyString(t *testing.T) {
	assert.Equal(t, "9780441013593", NaturalKeyString(dune()))
	assert.Equal(t, "42/7", NaturalKeyString(&FavoriteRow{UserID: ptr("42"), BookID: ptr("7")}))
	assert.Equal(t, "", NaturalKeyString(&UserBookRow{UserID: ptr("42")}))
}

func joinColumns(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}
