package store

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Lydia02/E-Library-sub000/internal/domain"
	domainerrors "github.com/Lydia02/E-Library-sub000/internal/errors"
)

// IndexField is one field of a composite index.
type IndexField struct {
	Name string
	Desc bool
}

// CompositeIndex is a declared multi-field index. The last field is the sort
// field; the others are the equality or array-contains fields it serves.
type CompositeIndex struct {
	Collection string
	Fields     []IndexField
}

// ParseIndex parses a declaration of the form
// "collection:field[ asc|desc],field[ asc|desc]".
func ParseIndex(spec string) (CompositeIndex, error) {
	coll, rest, ok := strings.Cut(strings.TrimSpace(spec), ":")
	coll = strings.TrimSpace(coll)
	if !ok || coll == "" {
		return CompositeIndex{}, fmt.Errorf("composite index %q: missing collection", spec)
	}

	idx := CompositeIndex{Collection: coll}
	for _, part := range strings.Split(rest, ",") {
		words := strings.Fields(part)
		switch {
		case len(words) == 1:
			idx.Fields = append(idx.Fields, IndexField{Name: words[0]})
		case len(words) == 2 && strings.EqualFold(words[1], "asc"):
			idx.Fields = append(idx.Fields, IndexField{Name: words[0]})
		case len(words) == 2 && strings.EqualFold(words[1], "desc"):
			idx.Fields = append(idx.Fields, IndexField{Name: words[0], Desc: true})
		default:
			return CompositeIndex{}, fmt.Errorf("composite index %q: bad field %q", spec, strings.TrimSpace(part))
		}
	}
	if len(idx.Fields) < 2 {
		return CompositeIndex{}, fmt.Errorf("composite index %q: needs at least two fields", spec)
	}
	return idx, nil
}

// ParseIndexes parses a list of declarations.
func ParseIndexes(specs []string) ([]CompositeIndex, error) {
	out := make([]CompositeIndex, 0, len(specs))
	for _, spec := range specs {
		idx, err := ParseIndex(spec)
		if err != nil {
			return nil, err
		}
		out = append(out, idx)
	}
	return out, nil
}

// String returns the declaration form accepted by ParseIndex.
func (c CompositeIndex) String() string {
	parts := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		parts[i] = f.Name
		if f.Desc {
			parts[i] += " desc"
		}
	}
	return c.Collection + ":" + strings.Join(parts, ",")
}

// Describe renders the index for humans, e.g. "favorites (userId ASC, createdAt DESC)".
func (c CompositeIndex) Describe() string {
	parts := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		dir := "ASC"
		if f.Desc {
			dir = "DESC"
		}
		parts[i] = f.Name + " " + dir
	}
	return c.Collection + " (" + strings.Join(parts, ", ") + ")"
}

// serves reports whether the index can serve equality filters on fields with an
// order on order.
func (c CompositeIndex) serves(filterFields []string, order domain.Order) bool {
	last := c.Fields[len(c.Fields)-1]
	if last.Name != order.Field || last.Desc != order.Desc {
		return false
	}
	prefix := make([]string, 0, len(c.Fields)-1)
	for _, f := range c.Fields[:len(c.Fields)-1] {
		prefix = append(prefix, f.Name)
	}
	slices.Sort(prefix)
	return slices.Equal(prefix, filterFields)
}

type planner struct {
	byCollection map[string][]CompositeIndex
}

func newPlanner(indexes []CompositeIndex) *planner {
	p := &planner{byCollection: make(map[string][]CompositeIndex)}
	for _, idx := range indexes {
		p.byCollection[idx.Collection] = append(p.byCollection[idx.Collection], idx)
	}
	return p
}

func (p *planner) declared() []CompositeIndex {
	var out []CompositeIndex
	for _, list := range p.byCollection {
		out = append(out, list...)
	}
	slices.SortFunc(out, func(a, b CompositeIndex) int { return strings.Compare(a.String(), b.String()) })
	return out
}

// check decides whether a query can be served. Single-field indexes exist for
// every field, and equality filters merge freely across them. Ordering needs a
// composite index unless the order field is the only field filtered on.
func (p *planner) check(collection string, q domain.Query) error {
	arrayContains := 0
	fieldSet := make(map[string]struct{}, len(q.Filters))
	for _, f := range q.Filters {
		switch f.Op {
		case domain.OpEqual:
		case domain.OpArrayContains:
			arrayContains++
		default:
			return domainerrors.Validationf("unsupported filter operator %q on %s", f.Op, f.Field)
		}
		fieldSet[f.Field] = struct{}{}
	}
	if arrayContains > 1 {
		return domainerrors.Validation("a query may contain at most one array-contains filter")
	}

	if q.OrderBy == nil || len(fieldSet) == 0 {
		return nil
	}
	if _, ok := fieldSet[q.OrderBy.Field]; ok && len(fieldSet) == 1 {
		return nil
	}

	filterFields := make([]string, 0, len(fieldSet))
	for name := range fieldSet {
		if name != q.OrderBy.Field {
			filterFields = append(filterFields, name)
		}
	}
	slices.Sort(filterFields)

	for _, idx := range p.byCollection[collection] {
		if idx.serves(filterFields, *q.OrderBy) {
			return nil
		}
	}

	need := CompositeIndex{Collection: collection}
	for _, name := range filterFields {
		need.Fields = append(need.Fields, IndexField{Name: name})
	}
	need.Fields = append(need.Fields, IndexField{Name: q.OrderBy.Field, Desc: q.OrderBy.Desc})

	return domainerrors.IndexRequiredf(
		"the query requires an index: %s; declare it with PRIMARY_COMPOSITE_INDEXES=%q",
		need.Describe(), need.String(),
	).WithDetails(need)
}
