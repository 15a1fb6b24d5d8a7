package postgres

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Lydia02/E-Library-sub000/internal/domain"
	domainerrors "github.com/Lydia02/E-Library-sub000/internal/errors"
)

// Secondary is the contract shared by the secondary store drivers.
type Secondary interface {
	Get(ctx context.Context, table domain.Kind, primaryID string) (Row, error)
	Select(ctx context.Context, table domain.Kind, q Query) ([]Row, error)
	Insert(ctx context.Context, r Row) error
	Upsert(ctx context.Context, r Row) (bool, error)
	UpdateByPrimaryID(ctx context.Context, r Row) (bool, error)
	FindByNaturalKey(ctx context.Context, r Row) (Row, error)
	Delete(ctx context.Context, table domain.Kind, primaryID string) error
	BatchDelete(ctx context.Context, table domain.Kind, primaryIDs []string) (int, error)
	PrimaryIDs(ctx context.Context, table domain.Kind) ([]string, error)
	Count(ctx context.Context, table domain.Kind) (int, error)
	Close()
}

var _ Secondary = (*DB)(nil)

// Get returns the row projected from a primary document.
// Returns NOT_FOUND if there is none.
func (db *DB) Get(ctx context.Context, table domain.Kind, primaryID string) (Row, error) {
	cols := ColumnsOf(table)
	if cols == nil {
		return nil, errUnknownTable(table)
	}
	ctx, cancel := db.bound(ctx)
	defer cancel()

	query := "SELECT " + strings.Join(cols, ", ") + " FROM " + string(table) + " WHERE primary_id = $1"
	rows, err := db.Pool.Query(ctx, query, primaryID)
	if err != nil {
		return nil, classify(err, "get", table)
	}
	found, err := collect(table, rows)
	if err != nil {
		return nil, classify(err, "get", table)
	}
	if len(found) == 0 {
		return nil, domainerrors.NotFoundf("%s row %s not found", table, primaryID)
	}
	return found[0], nil
}

// Select returns the rows matching q. The result is never nil.
func (db *DB) Select(ctx context.Context, table domain.Kind, q Query) ([]Row, error) {
	query, args, err := buildSelect(table, q)
	if err != nil {
		return nil, err
	}
	ctx, cancel := db.bound(ctx)
	defer cancel()

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err, "select", table)
	}
	found, err := collect(table, rows)
	if err != nil {
		return nil, classify(err, "select", table)
	}
	return found, nil
}

// Insert writes a new row. A taken natural key or primary id fails with CONFLICT.
func (db *DB) Insert(ctx context.Context, r Row) error {
	ctx, cancel := db.bound(ctx)
	defer cancel()

	if _, err := db.Pool.Exec(ctx, insertSQL(r), r.Values()...); err != nil {
		return classify(err, "insert", r.Table())
	}
	return nil
}

// Upsert inserts r or overwrites the row with the same natural key. It reports
// false when the existing row belongs to another primary entity or is newer.
func (db *DB) Upsert(ctx context.Context, r Row) (bool, error) {
	ctx, cancel := db.bound(ctx)
	defer cancel()

	tag, err := db.Pool.Exec(ctx, upsertSQL(r), r.Values()...)
	if err != nil {
		return false, classify(err, "upsert", r.Table())
	}
	applied := tag.RowsAffected() > 0
	if !applied {
		db.logger.Debug("upsert not applied",
			"table", r.Table(),
			"primary_id", r.PrimaryKey(),
			"natural_key", NaturalKeyString(r),
		)
	}
	return applied, nil
}

// UpdateByPrimaryID overwrites the row of r's primary entity unless it is newer.
// It reports false when no row was changed.
func (db *DB) UpdateByPrimaryID(ctx context.Context, r Row) (bool, error) {
	ctx, cancel := db.bound(ctx)
	defer cancel()

	query, args := updateSQL(r)
	tag, err := db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return false, classify(err, "update", r.Table())
	}
	return tag.RowsAffected() > 0, nil
}

// FindByNaturalKey returns the row holding r's natural key, or r's primary id
// when the natural key is incomplete. Returns NOT_FOUND if there is none.
func (db *DB) FindByNaturalKey(ctx context.Context, r Row) (Row, error) {
	table := r.Table()
	pred, args := keyPredicate(r)
	ctx, cancel := db.bound(ctx)
	defer cancel()

	query := "SELECT " + strings.Join(r.Columns(), ", ") + " FROM " + string(table) + " WHERE " + pred
	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err, "find", table)
	}
	found, err := collect(table, rows)
	if err != nil {
		return nil, classify(err, "find", table)
	}
	if len(found) == 0 {
		return nil, domainerrors.NotFoundf("%s row with key %s not found", table, NaturalKeyString(r))
	}
	return found[0], nil
}

// Delete removes the row of a primary entity. Deleting a missing row succeeds.
func (db *DB) Delete(ctx context.Context, table domain.Kind, primaryID string) error {
	if ColumnsOf(table) == nil {
		return errUnknownTable(table)
	}
	ctx, cancel := db.bound(ctx)
	defer cancel()

	if _, err := db.Pool.Exec(ctx, "DELETE FROM "+string(table)+" WHERE primary_id = $1", primaryID); err != nil {
		return classify(err, "delete", table)
	}
	return nil
}

// BatchDelete removes the rows of many primary entities and returns how many existed.
func (db *DB) BatchDelete(ctx context.Context, table domain.Kind, primaryIDs []string) (int, error) {
	if ColumnsOf(table) == nil {
		return 0, errUnknownTable(table)
	}
	if len(primaryIDs) == 0 {
		return 0, nil
	}
	ctx, cancel := db.bound(ctx)
	defer cancel()

	tag, err := db.Pool.Exec(ctx, "DELETE FROM "+string(table)+" WHERE primary_id = ANY($1)", primaryIDs)
	if err != nil {
		return 0, classify(err, "batch delete", table)
	}
	return int(tag.RowsAffected()), nil
}

// PrimaryIDs lists the primary ids of every row, sorted.
func (db *DB) PrimaryIDs(ctx context.Context, table domain.Kind) ([]string, error) {
	if ColumnsOf(table) == nil {
		return nil, errUnknownTable(table)
	}
	ctx, cancel := db.bound(ctx)
	defer cancel()

	rows, err := db.Pool.Query(ctx, "SELECT primary_id FROM "+string(table)+" ORDER BY primary_id")
	if err != nil {
		return nil, classify(err, "list ids", table)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, classify(err, "list ids", table)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// Count returns the number of rows in a table.
func (db *DB) Count(ctx context.Context, table domain.Kind) (int, error) {
	if ColumnsOf(table) == nil {
		return 0, errUnknownTable(table)
	}
	ctx, cancel := db.bound(ctx)
	defer cancel()

	var n int64
	if err := db.Pool.QueryRow(ctx, "SELECT count(*) FROM "+string(table)).Scan(&n); err != nil {
		return 0, classify(err, "count", table)
	}
	return int(n), nil
}

func collect(table domain.Kind, rows pgx.Rows) ([]Row, error) {
	switch table {
	case domain.KindBooks:
		return collectAs[BookRow](rows, pgx.RowToAddrOfStructByName[BookRow])
	case domain.KindFavorites:
		return collectAs[FavoriteRow](rows, pgx.RowToAddrOfStructByName[FavoriteRow])
	case domain.KindUserBooks:
		return collectAs[UserBookRow](rows, pgx.RowToAddrOfStructByName[UserBookRow])
	}
	rows.Close()
	return nil, errUnknownTable(table)
}

func collectAs[T any, P interface {
	*T
	Row
}](rows pgx.Rows, fn pgx.RowToFunc[*T]) ([]Row, error) {
	typed, err := pgx.CollectRows(rows, fn)
	if err != nil {
		return nil, err
	}
	out := make([]Row, len(typed))
	for i, r := range typed {
		out[i] = P(r)
	}
	return out, nil
}
