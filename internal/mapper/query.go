package mapper

import (
	"time"

	"github.com/Lydia02/E-Library-sub000/internal/domain"
	domainerrors "github.com/Lydia02/E-Library-sub000/internal/errors"
	"github.com/Lydia02/E-Library-sub000/internal/normalize"
	"github.com/Lydia02/E-Library-sub000/internal/store"
	"github.com/Lydia02/E-Library-sub000/internal/store/postgres"
)

// PatchFields converts a canonical patch to primary document fields. Immutable
// fields are rejected; a nil or zero value removes the field.
func PatchFields(k domain.Kind, patch domain.Patch) (map[string]any, error) {
	out := make(map[string]any, len(patch))
	for name, v := range patch {
		f, err := lookup(k, name)
		if err != nil {
			return nil, err
		}
		if f.immutable {
			return nil, domainerrors.ValidationWithDetails("immutable field", map[string]string{name: "cannot be changed"})
		}
		value, err := coerce(f, v)
		if err != nil {
			return nil, domainerrors.ValidationWithDetails("invalid patch", map[string]string{name: err.Error()})
		}
		out[f.name] = documentValue(k, f, value)
	}
	return out, nil
}

// documentValue shapes a coerced value for storage in a primary document.
func documentValue(k domain.Kind, f field, v any) any {
	switch x := v.(type) {
	case time.Time:
		return store.TimestampOf(x)
	case []string:
		return normalize.Genres(x)
	case string:
		if k == domain.KindBooks && f.name == "isbn" {
			return normalize.ISBN(x)
		}
	}
	return v
}

// filterValue coerces a filter operand. The operand of array-contains is one
// element of the array.
func filterValue(k domain.Kind, f domain.Filter) (field, any, error) {
	fd, err := lookup(k, f.Field)
	if err != nil {
		return field{}, nil, err
	}
	if fd.name == "id" {
		return field{}, nil, domainerrors.Validation("filter on id is not supported; look the entity up directly")
	}

	switch f.Op {
	case domain.OpEqual:
		if fd.typ == typeStrings {
			return field{}, nil, domainerrors.Validationf("field %s is an array; use array-contains", f.Field)
		}
		v, err := coerce(fd, f.Value)
		if err != nil {
			return field{}, nil, domainerrors.Validationf("filter %s: %v", f.Field, err)
		}
		if v == nil {
			return field{}, nil, domainerrors.Validationf("filter %s: empty value", f.Field)
		}
		return fd, v, nil
	case domain.OpArrayContains:
		if fd.typ != typeStrings {
			return field{}, nil, domainerrors.Validationf("field %s is not an array", f.Field)
		}
		s, err := asString(f.Value)
		if err != nil || s == "" {
			return field{}, nil, domainerrors.Validationf("filter %s: expected a non-empty string", f.Field)
		}
		return fd, s, nil
	}
	return field{}, nil, domainerrors.Validationf("unsupported operator %q", f.Op)
}

func orderField(k domain.Kind, o *domain.Order) (field, error) {
	fd, err := lookup(k, o.Field)
	if err != nil {
		return field{}, err
	}
	if fd.name == "id" || fd.typ == typeStrings {
		return field{}, domainerrors.Validationf("cannot order by %s", o.Field)
	}
	return fd, nil
}

// ToDocumentQuery validates a canonical query and coerces its operands to
// primary document values.
func ToDocumentQuery(k domain.Kind, q domain.Query) (domain.Query, error) {
	out := domain.Query{Limit: q.Limit, Offset: q.Offset}
	for _, f := range q.Filters {
		fd, v, err := filterValue(k, f)
		if err != nil {
			return domain.Query{}, err
		}
		out.Filters = append(out.Filters, domain.Filter{Field: fd.name, Op: f.Op, Value: documentValue(k, fd, v)})
	}
	if q.OrderBy != nil {
		fd, err := orderField(k, q.OrderBy)
		if err != nil {
			return domain.Query{}, err
		}
		out.OrderBy = &domain.Order{Field: fd.name, Desc: q.OrderBy.Desc}
	}
	return out, nil
}

// ToRowQuery translates a canonical query to the secondary dialect.
func ToRowQuery(k domain.Kind, q domain.Query) (postgres.Query, error) {
	out := postgres.Query{Limit: q.Limit, Offset: q.Offset}
	for _, f := range q.Filters {
		fd, v, err := filterValue(k, f)
		if err != nil {
			return postgres.Query{}, err
		}
		if s, ok := v.(string); ok && k == domain.KindBooks && fd.name == "isbn" {
			v = normalize.ISBN(s)
		}
		out.Where = append(out.Where, postgres.Condition{Column: fd.column, Op: f.Op, Value: v})
	}
	if q.OrderBy != nil {
		fd, err := orderField(k, q.OrderBy)
		if err != nil {
			return postgres.Query{}, err
		}
		out.OrderBy = fd.column
		out.Desc = q.OrderBy.Desc
	}
	return out, nil
}
