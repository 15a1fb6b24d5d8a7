// Package memsql is an in-memory secondary store with the same semantics as the
// postgres driver. It backs local development and serves as the test double for
// components that write to the secondary store.
package memsql

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Lydia02/E-Library-sub000/internal/domain"
	domainerrors "github.com/Lydia02/E-Library-sub000/internal/errors"
	"github.com/Lydia02/E-Library-sub000/internal/store/postgres"
)

// DB holds the tables in memory. It is safe for concurrent use.
type DB struct {
	mu     sync.RWMutex
	tables map[domain.Kind]map[string]postgres.Row
	fail   error
	calls  map[string]int
}

var _ postgres.Secondary = (*DB)(nil)

// New returns an empty store.
func New() *DB {
	db := &DB{
		tables: make(map[domain.Kind]map[string]postgres.Row, len(domain.Kinds)),
		calls:  make(map[string]int),
	}
	for _, k := range domain.Kinds {
		db.tables[k] = make(map[string]postgres.Row)
	}
	return db
}

// SetFailure makes every following call fail with err until it is cleared with nil.
func (db *DB) SetFailure(err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.fail = err
}

// Calls returns how many times an operation was invoked.
func (db *DB) Calls(op string) int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.calls[op]
}

func (db *DB) enter(ctx context.Context, op string) error {
	db.calls[op]++
	if err := ctx.Err(); err != nil {
		return domainerrors.Unavailable(err, "secondary "+op)
	}
	return db.fail
}

func (db *DB) table(k domain.Kind) (map[string]postgres.Row, error) {
	t, ok := db.tables[k]
	if !ok {
		return nil, domainerrors.Validationf("unknown table %q", k)
	}
	return t, nil
}

// Get implements postgres.Secondary.
func (db *DB) Get(ctx context.Context, table domain.Kind, primaryID string) (postgres.Row, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.enter(ctx, "get"); err != nil {
		return nil, err
	}
	t, err := db.table(table)
	if err != nil {
		return nil, err
	}
	r, ok := t[primaryID]
	if !ok {
		return nil, domainerrors.NotFoundf("%s row %s not found", table, primaryID)
	}
	return clone(r), nil
}

// Select implements postgres.Secondary.
func (db *DB) Select(ctx context.Context, table domain.Kind, q postgres.Query) ([]postgres.Row, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.enter(ctx, "select"); err != nil {
		return nil, err
	}
	t, err := db.table(table)
	if err != nil {
		return nil, err
	}
	cols := postgres.ColumnsOf(table)
	for _, c := range q.Where {
		if !slices.Contains(cols, c.Column) {
			return nil, domainerrors.Validationf("unknown column %s.%s", table, c.Column)
		}
	}
	if q.OrderBy != "" && !slices.Contains(cols, q.OrderBy) {
		return nil, domainerrors.Validationf("unknown column %s.%s", table, q.OrderBy)
	}

	out := []postgres.Row{}
	for _, r := range t {
		if matches(r, q) {
			out = append(out, clone(r))
		}
	}

	slices.SortFunc(out, func(a, b postgres.Row) int {
		if q.OrderBy != "" {
			c := compare(column(a, q.OrderBy), column(b, q.OrderBy))
			if q.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return strings.Compare(a.PrimaryKey(), b.PrimaryKey())
	})

	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return []postgres.Row{}, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out, nil
}

// Insert implements postgres.Secondary.
func (db *DB) Insert(ctx context.Context, r postgres.Row) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.enter(ctx, "insert"); err != nil {
		return err
	}
	t, err := db.table(r.Table())
	if err != nil {
		return err
	}
	if err := checkUnique(t, r, ""); err != nil {
		return err
	}
	t[r.PrimaryKey()] = clone(r)
	return nil
}

// Upsert implements postgres.Secondary.
func (db *DB) Upsert(ctx context.Context, r postgres.Row) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.enter(ctx, "upsert"); err != nil {
		return false, err
	}
	t, err := db.table(r.Table())
	if err != nil {
		return false, err
	}

	existing := conflicting(t, r)
	if existing == nil {
		if err := checkUnique(t, r, ""); err != nil {
			return false, err
		}
		t[r.PrimaryKey()] = clone(r)
		return true, nil
	}
	if existing.PrimaryKey() != r.PrimaryKey() || newer(existing, r) {
		return false, nil
	}
	if err := checkUnique(t, r, existing.PrimaryKey()); err != nil {
		return false, err
	}
	t[r.PrimaryKey()] = replace(existing, r)
	return true, nil
}

// UpdateByPrimaryID implements postgres.Secondary.
func (db *DB) UpdateByPrimaryID(ctx context.Context, r postgres.Row) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.enter(ctx, "update"); err != nil {
		return false, err
	}
	t, err := db.table(r.Table())
	if err != nil {
		return false, err
	}
	existing, ok := t[r.PrimaryKey()]
	if !ok || newer(existing, r) {
		return false, nil
	}
	if err := checkUnique(t, r, r.PrimaryKey()); err != nil {
		return false, err
	}
	t[r.PrimaryKey()] = replace(existing, r)
	return true, nil
}

// FindByNaturalKey implements postgres.Secondary.
func (db *DB) FindByNaturalKey(ctx context.Context, r postgres.Row) (postgres.Row, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.enter(ctx, "find"); err != nil {
		return nil, err
	}
	t, err := db.table(r.Table())
	if err != nil {
		return nil, err
	}
	if found := conflicting(t, r); found != nil {
		return clone(found), nil
	}
	return nil, domainerrors.NotFoundf("%s row with key %s not found", r.Table(), postgres.NaturalKeyString(r))
}

// Delete implements postgres.Secondary.
func (db *DB) Delete(ctx context.Context, table domain.Kind, primaryID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.enter(ctx, "delete"); err != nil {
		return err
	}
	t, err := db.table(table)
	if err != nil {
		return err
	}
	delete(t, primaryID)
	return nil
}

// BatchDelete implements postgres.Secondary.
func (db *DB) BatchDelete(ctx context.Context, table domain.Kind, primaryIDs []string) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.enter(ctx, "batch_delete"); err != nil {
		return 0, err
	}
	t, err := db.table(table)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range primaryIDs {
		if _, ok := t[id]; ok {
			delete(t, id)
			n++
		}
	}
	return n, nil
}

// PrimaryIDs implements postgres.Secondary.
func (db *DB) PrimaryIDs(ctx context.Context, table domain.Kind) ([]string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.enter(ctx, "list_ids"); err != nil {
		return nil, err
	}
	t, err := db.table(table)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// Count implements postgres.Secondary.
func (db *DB) Count(ctx context.Context, table domain.Kind) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.enter(ctx, "count"); err != nil {
		return 0, err
	}
	t, err := db.table(table)
	if err != nil {
		return 0, err
	}
	return len(t), nil
}

// Close implements postgres.Secondary.
func (db *DB) Close() {}

// conflicting returns the row the upsert of r would conflict with: the holder of
// its natural key, or of its primary id when the natural key is incomplete.
func conflicting(t map[string]postgres.Row, r postgres.Row) postgres.Row {
	cols, vals := r.NaturalKey()
	if cols == nil {
		return t[r.PrimaryKey()]
	}
	for _, other := range t {
		if sameKey(other, cols, vals) {
			return other
		}
	}
	return nil
}

// checkUnique fails when r would share its primary id or natural key with a row
// other than the one at self.
func checkUnique(t map[string]postgres.Row, r postgres.Row, self string) error {
	if other, ok := t[r.PrimaryKey()]; ok && other.PrimaryKey() != self {
		return domainerrors.Conflictf("%s row violates %s_primary_id_key", r.Table(), r.Table())
	}
	cols, vals := r.NaturalKey()
	if cols == nil {
		return nil
	}
	for id, other := range t {
		if id != self && sameKey(other, cols, vals) {
			return domainerrors.Conflictf("%s row violates %s_%s_key", r.Table(), r.Table(), strings.Join(cols, "_"))
		}
	}
	return nil
}

func sameKey(r postgres.Row, cols []string, vals []any) bool {
	otherCols, otherVals := r.NaturalKey()
	return slices.Equal(otherCols, cols) && slices.Equal(otherVals, vals)
}

// newer reports whether the stored row carries a later stamp than r.
func newer(stored, r postgres.Row) bool {
	_, a := stored.Stamp()
	_, b := r.Stamp()
	return a.After(b)
}

func matches(r postgres.Row, q postgres.Query) bool {
	for _, c := range q.Where {
		v := column(r, c.Column)
		switch c.Op {
		case domain.OpEqual:
			if v == nil || compare(v, c.Value) != 0 {
				return false
			}
		case domain.OpArrayContains:
			elems, _ := v.([]string)
			s, _ := c.Value.(string)
			if !slices.Contains(elems, s) {
				return false
			}
		default:
			return false
		}
	}
	if q.OrderBy != "" && column(r, q.OrderBy) == nil {
		return false
	}
	return true
}

// column returns a dereferenced column value, nil for NULL.
func column(r postgres.Row, name string) any {
	i := slices.Index(r.Columns(), name)
	if i < 0 {
		return nil
	}
	switch v := r.Values()[i].(type) {
	case *string:
		if v == nil {
			return nil
		}
		return *v
	case *int:
		if v == nil {
			return nil
		}
		return *v
	case *float64:
		if v == nil {
			return nil
		}
		return *v
	case *time.Time:
		if v == nil {
			return nil
		}
		return *v
	default:
		return v
	}
}

// compare orders two non-NULL column values of the same column.
func compare(a, b any) int {
	switch x := a.(type) {
	case string:
		y, _ := b.(string)
		return strings.Compare(x, y)
	case bool:
		y, _ := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case time.Time:
		y, _ := b.(time.Time)
		return x.Compare(y)
	}
	fa, okA := number(a)
	fb, okB := number(b)
	if okA && okB {
		return cmp.Compare(fa, fb)
	}
	return -1
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

func clone(r postgres.Row) postgres.Row {
	switch v := r.(type) {
	case *postgres.BookRow:
		c := *v
		c.Genres = slices.Clone(v.Genres)
		return &c
	case *postgres.FavoriteRow:
		c := *v
		return &c
	case *postgres.UserBookRow:
		c := *v
		return &c
	}
	return r
}

// replace returns r as stored over existing; created_at is never overwritten.
func replace(existing, r postgres.Row) postgres.Row {
	out := clone(r)
	switch v := out.(type) {
	case *postgres.BookRow:
		v.CreatedAt = existing.(*postgres.BookRow).CreatedAt
	case *postgres.FavoriteRow:
		v.CreatedAt = existing.(*postgres.FavoriteRow).CreatedAt
	case *postgres.UserBookRow:
		v.CreatedAt = existing.(*postgres.UserBookRow).CreatedAt
	}
	return out
}
