package postgres

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/Lydia02/E-Library-sub000/internal/domain"
	domainerrors "github.com/Lydia02/E-Library-sub000/internal/errors"
)

// Condition is one predicate on a column. OpEqual compares the column to Value;
// OpArrayContains requires the array column to hold Value.
type Condition struct {
	Column string
	Op     domain.Op
	Value  any
}

// Query selects rows of one table.
type Query struct {
	Where []Condition
	// OrderBy is a column name; rows where it is NULL are excluded.
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

// args collects positional parameters.
type args []any

func (a *args) add(v any) string {
	*a = append(*a, v)
	return "$" + strconv.Itoa(len(*a))
}

func checkColumn(k domain.Kind, column string) error {
	if !slices.Contains(ColumnsOf(k), column) {
		return domainerrors.Validationf("unknown column %s.%s", k, column)
	}
	return nil
}

// buildSelect renders q against table k.
func buildSelect(k domain.Kind, q Query) (string, []any, error) {
	cols := ColumnsOf(k)
	if cols == nil {
		return "", nil, errUnknownTable(k)
	}

	var a args
	var where []string
	for _, c := range q.Where {
		if err := checkColumn(k, c.Column); err != nil {
			return "", nil, err
		}
		switch c.Op {
		case domain.OpEqual:
			if IsArrayColumn(k, c.Column) {
				return "", nil, domainerrors.Validationf("column %s is an array; use array-contains", c.Column)
			}
			where = append(where, c.Column+" = "+a.add(c.Value))
		case domain.OpArrayContains:
			if !IsArrayColumn(k, c.Column) {
				return "", nil, domainerrors.Validationf("column %s is not an array", c.Column)
			}
			where = append(where, c.Column+" @> ARRAY["+a.add(c.Value)+"]::text[]")
		default:
			return "", nil, domainerrors.Validationf("unsupported operator %q", c.Op)
		}
	}

	order := "primary_id"
	if q.OrderBy != "" {
		if err := checkColumn(k, q.OrderBy); err != nil {
			return "", nil, err
		}
		where = append(where, q.OrderBy+" IS NOT NULL")
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		order = fmt.Sprintf("%s %s, primary_id", q.OrderBy, dir)
	}

	var b strings.Builder
	b.WriteString("SELECT " + strings.Join(cols, ", ") + " FROM " + string(k))
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY " + order)
	if q.Limit > 0 {
		b.WriteString(" LIMIT " + a.add(q.Limit))
	}
	if q.Offset > 0 {
		b.WriteString(" OFFSET " + a.add(q.Offset))
	}
	return b.String(), a, nil
}

func placeholders(n int) string {
	p := make([]string, n)
	for i := range p {
		p[i] = "$" + strconv.Itoa(i+1)
	}
	return strings.Join(p, ", ")
}

func insertSQL(r Row) string {
	cols := r.Columns()
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", r.Table(), strings.Join(cols, ", "), placeholders(len(cols)))
}

// upsertSQL inserts r, or overwrites the row holding the same natural key when
// that row belongs to the same primary entity and is not newer. Rows without a
// complete natural key conflict on primary_id instead.
func upsertSQL(r Row) string {
	target, _ := r.NaturalKey()
	if target == nil {
		target = []string{"primary_id"}
	}
	stamp, _ := r.Stamp()

	var set []string
	for _, c := range r.Columns() {
		if c == "primary_id" || c == "created_at" {
			continue
		}
		set = append(set, c+" = EXCLUDED."+c)
	}
	var b strings.Builder
	b.WriteString(strings.Replace(insertSQL(r), "INSERT INTO "+string(r.Table()), "INSERT INTO "+string(r.Table())+" AS t", 1))
	b.WriteString(" ON CONFLICT (" + strings.Join(target, ", ") + ") DO UPDATE SET ")
	b.WriteString(strings.Join(set, ", "))
	b.WriteString(" WHERE t.primary_id = EXCLUDED.primary_id AND t." + stamp + " <= EXCLUDED." + stamp)
	return b.String()
}

// updateSQL overwrites the row of r.PrimaryKey unless it is newer.
func updateSQL(r Row) (string, []any) {
	stamp, at := r.Stamp()
	var a args
	a.add(r.PrimaryKey())
	var set []string
	vals := r.Values()
	for i, c := range r.Columns() {
		if c == "primary_id" || c == "created_at" {
			continue
		}
		set = append(set, c+" = "+a.add(vals[i]))
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE primary_id = $1 AND %s <= %s",
		r.Table(), strings.Join(set, ", "), stamp, a.add(at))
	return query, a
}

// keyPredicate matches the row's natural key, or its primary id when the
// natural key is incomplete.
func keyPredicate(r Row) (string, []any) {
	cols, vals := r.NaturalKey()
	if cols == nil {
		return "primary_id = $1", []any{r.PrimaryKey()}
	}
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = c + " = $" + strconv.Itoa(i+1)
	}
	return strings.Join(parts, " AND "), vals
}
