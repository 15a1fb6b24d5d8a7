package domain

// Op is a filter operator.
type Op string

// Filter operators supported by both stores.
const (
	OpEqual         Op = "=="
	OpArrayContains Op = "array-contains"
)

// Filter is a single predicate on a canonical field.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Order sorts a query by a canonical field.
type Order struct {
	Field string
	Desc  bool
}

// Query is a store-agnostic read over one kind, in canonical field names.
// Filters are combined with AND.
type Query struct {
	Filters []Filter
	OrderBy *Order
	Limit   int
	Offset  int
}

// Where returns a query with a single filter.
func Where(field string, op Op, value any) Query {
	return Query{Filters: []Filter{{Field: field, Op: op, Value: value}}}
}

// Where appends a filter.
func (q Query) Where(field string, op Op, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Op: op, Value: value})
	return q
}

// Order sets the sort order.
func (q Query) Order(field string, desc bool) Query {
	q.OrderBy = &Order{Field: field, Desc: desc}
	return q
}

// Page sets limit and offset.
func (q Query) Page(limit, offset int) Query {
	q.Limit = limit
	q.Offset = offset
	return q
}

// Patch is a partial update in canonical field names.
type Patch map[string]any
