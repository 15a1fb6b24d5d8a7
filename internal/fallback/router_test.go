package fallback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lydia02/E-Library-sub000/internal/domain"
	domainerrors "github.com/Lydia02/E-Library-sub000/internal/errors"
	"github.com/Lydia02/E-Library-sub000/internal/logger"
	"github.com/Lydia02/E-Library-sub000/internal/mapper"
	"github.com/Lydia02/E-Library-sub000/internal/store"
	"github.com/Lydia02/E-Library-sub000/internal/store/memsql"
)

type fixture struct {
	primary   *store.Store
	secondary *memsql.DB
	router    *Router
}

func newFixture(t *testing.T, indexes ...string) *fixture {
	t.Helper()
	parsed, err := store.ParseIndexes(indexes)
	require.NoError(t, err)
	primary, err := store.New(store.Options{InMemory: true, Indexes: parsed}, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = primary.Close() })

	secondary := memsql.New()
	return &fixture{primary: primary, secondary: secondary, router: New(primary, secondary, logger.Discard())}
}

// seed writes e to the named store, or to both when none is named.
func (f *fixture) seed(t *testing.T, e domain.Entity, where ...string) {
	t.Helper()
	ctx := context.Background()
	if len(where) == 0 || where[0] == "primary" {
		fields, err := mapper.ToDocument(e)
		require.NoError(t, err)
		_, err = f.primary.InsertWithID(ctx, string(e.Kind()), e.EntityID(), fields)
		require.NoError(t, err)
	}
	if len(where) == 0 || where[0] == "secondary" {
		row, err := mapper.ToRow(e)
		require.NoError(t, err)
		applied, err := f.secondary.Upsert(ctx, row)
		require.NoError(t, err)
		require.True(t, applied)
	}
}

func favorites(t *testing.T, f *fixture) {
	t.Helper()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, bookID := range []string{"7", "8", "9"} {
		f.seed(t, &domain.Favorite{
			ID:        "fav_" + bookID,
			UserID:    "42",
			BookID:    bookID,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}
	f.seed(t, &domain.Favorite{ID: "fav_other", UserID: "43", BookID: "7", CreatedAt: base})
}

func entityIDs(es []domain.Entity) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.EntityID()
	}
	return out
}

func TestQuery_ServedByPrimary(t *testing.T) {
	f := newFixture(t)
	favorites(t, f)

	got, err := f.router.Query(context.Background(), domain.KindFavorites, domain.Where("userId", domain.OpEqual, "42"))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"fav_7", "fav_8", "fav_9"}, entityIDs(got))
	assert.Zero(t, f.secondary.Calls("select"))
	assert.Zero(t, f.router.Fallbacks())
}

func TestQuery_FallsBackWhenIndexIsMissing(t *testing.T) {
	f := newFixture(t)
	favorites(t, f)

	q := domain.Where("userId", domain.OpEqual, "42").Order("createdAt", true)
	got, err := f.router.Query(context.Background(), domain.KindFavorites, q)
	require.NoError(t, err)

	assert.Equal(t, []string{"fav_9", "fav_8", "fav_7"}, entityIDs(got))
	assert.Equal(t, 1, f.secondary.Calls("select"))
	assert.Equal(t, int64(1), f.router.Fallbacks())

	fav := got[0].(*domain.Favorite)
	assert.Equal(t, "42", fav.UserID)
	assert.Equal(t, time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC), fav.CreatedAt)
}

func TestQuery_DeclaredIndexAvoidsFallback(t *testing.T) {
	f := newFixture(t, "favorites:userId,createdAt desc")
	favorites(t, f)

	q := domain.Where("userId", domain.OpEqual, "42").Order("createdAt", true)
	got, err := f.router.Query(context.Background(), domain.KindFavorites, q)
	require.NoError(t, err)

	assert.Equal(t, []string{"fav_9", "fav_8", "fav_7"}, entityIDs(got))
	assert.Zero(t, f.secondary.Calls("select"))
}

func TestQuery_FallbackPagesOnSecondary(t *testing.T) {
	f := newFixture(t)
	favorites(t, f)

	q := domain.Where("userId", domain.OpEqual, "42").Order("createdAt", false).Page(2, 1)
	got, err := f.router.Query(context.Background(), domain.KindFavorites, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"fav_8", "fav_9"}, entityIDs(got))
}

func TestQuery_SecondaryFailureReturnsPrimaryError(t *testing.T) {
	f := newFixture(t)
	favorites(t, f)
	f.secondary.SetFailure(domainerrors.Unavailable(errors.New("dial tcp: refused"), "secondary select"))

	q := domain.Where("userId", domain.OpEqual, "42").Order("createdAt", true)
	_, err := f.router.Query(context.Background(), domain.KindFavorites, q)

	require.Error(t, err)
	assert.Equal(t, domainerrors.CodeIndexRequired, domainerrors.CodeOf(err))
	assert.Contains(t, err.Error(), "favorites")
}

func TestQuery_InvalidQueryTouchesNoStore(t *testing.T) {
	f := newFixture(t)

	_, err := f.router.Query(context.Background(), domain.KindBooks, domain.Where("shelf", domain.OpEqual, "a"))
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
	assert.Zero(t, f.secondary.Calls("select"))
}

type failingPrimary struct{ err error }

func (p failingPrimary) Get(context.Context, string, string) (*store.Document, error) {
	return nil, p.err
}

func (p failingPrimary) Query(context.Context, string, domain.Query) ([]*store.Document, error) {
	return nil, p.err
}

func TestQuery_OtherPrimaryErrorsPropagate(t *testing.T) {
	secondary := memsql.New()
	unavailable := domainerrors.Unavailable(errors.New("disk gone"), "primary query")
	r := New(failingPrimary{err: unavailable}, secondary, nil)

	_, err := r.Query(context.Background(), domain.KindBooks, domain.Where("author", domain.OpEqual, "Frank Herbert"))
	assert.ErrorIs(t, err, domainerrors.ErrUnavailable)
	assert.Zero(t, secondary.Calls("select"))

	_, err = r.ResolveBooks(context.Background(), []string{"book_1"})
	assert.ErrorIs(t, err, domainerrors.ErrUnavailable)
}

func TestQuery_ArrayContainsOnGenres(t *testing.T) {
	f := newFixture(t)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.seed(t, &domain.Book{ID: "book_1", Title: "Dune", Author: "Frank Herbert", Genres: []string{"Science Fiction"}, CreatedAt: at, UpdatedAt: at})
	f.seed(t, &domain.Book{ID: "book_2", Title: "Emma", Author: "Jane Austen", Genres: []string{"Romance"}, CreatedAt: at, UpdatedAt: at})

	got, err := f.router.Query(context.Background(), domain.KindBooks, domain.Where("genres", domain.OpArrayContains, "Romance"))
	require.NoError(t, err)
	assert.Equal(t, []string{"book_2"}, entityIDs(got))
}

func TestResolveBooks(t *testing.T) {
	f := newFixture(t)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.seed(t, &domain.Book{ID: "book_p", Title: "Dune", Author: "Frank Herbert", CreatedAt: at, UpdatedAt: at}, "primary")
	f.seed(t, &domain.Book{ID: "book_s", Title: "Emma", Author: "Jane Austen", CreatedAt: at, UpdatedAt: at}, "secondary")

	got, err := f.router.ResolveBooks(context.Background(), []string{"book_s", "book_missing", "book_p"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Emma", got[0].Title)
	assert.Equal(t, "Dune", got[1].Title)
	assert.NotNil(t, got[1].Genres)
}

func TestResolveBooks_PrimaryFailureServedBySecondary(t *testing.T) {
	ctx := context.Background()
	secondary := memsql.New()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	row, err := mapper.ToRow(&domain.Book{ID: "book_s", Title: "Emma", Author: "Jane Austen", CreatedAt: at, UpdatedAt: at})
	require.NoError(t, err)
	_, err = secondary.Upsert(ctx, row)
	require.NoError(t, err)

	unavailable := domainerrors.Unavailable(errors.New("disk gone"), "primary get")
	r := New(failingPrimary{err: unavailable}, secondary, logger.Discard())

	got, err := r.ResolveBooks(ctx, []string{"book_s"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Emma", got[0].Title)

	// Without a secondary copy the primary failure is reported.
	_, err = r.ResolveBooks(ctx, []string{"book_s", "book_gone"})
	assert.ErrorIs(t, err, domainerrors.ErrUnavailable)

	invalid := New(failingPrimary{err: domainerrors.Validation("bad id")}, secondary, logger.Discard())
	_, err = invalid.ResolveBooks(ctx, []string{"book_s"})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
	assert.Equal(t, 3, secondary.Calls("get"), "a rejected id never reaches the secondary")
}
