package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/Lydia02/E-Library-sub000/internal/domain"
	domainerrors "github.com/Lydia02/E-Library-sub000/internal/errors"
)

// Get retrieves a document by id.
// Returns a NOT_FOUND error if the document does not exist.
func (s *Store) Get(ctx context.Context, collection, id string) (*Document, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err, "get")
	}

	var doc *Document
	err := s.db.View(func(txn *badger.Txn) error {
		r, err := loadRecord(txn, collection, id)
		if err != nil {
			return err
		}
		doc = &r.Document
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Query returns the documents of a collection matching q, ordered and paged.
// Queries the planner cannot serve fail with INDEX_REQUIRED before any data is read.
// Documents without the order field are excluded from ordered results.
func (s *Store) Query(ctx context.Context, collection string, q domain.Query) ([]*Document, error) {
	if err := s.planner.check(collection, q); err != nil {
		return nil, err
	}

	filters := make([]domain.Filter, len(q.Filters))
	for i, f := range q.Filters {
		v, err := normalizeValue(f.Value)
		if err != nil {
			return nil, domainerrors.Validationf("filter %s: %v", f.Field, err)
		}
		filters[i] = domain.Filter{Field: f.Field, Op: f.Op, Value: v}
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	var docs []*Document
	err := s.db.View(func(txn *badger.Txn) error {
		ids, scanned, err := candidates(ctx, txn, collection, filters)
		if err != nil {
			return err
		}
		if scanned != nil {
			docs = scanned
			return nil
		}
		for _, id := range ids {
			r, err := loadRecord(txn, collection, id)
			if domainerrors.Is(err, domainerrors.ErrNotFound) {
				continue // stale index entry
			}
			if err != nil {
				return err
			}
			docs = append(docs, &r.Document)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	docs = slices.DeleteFunc(docs, func(d *Document) bool { return !matches(d.Fields, filters) })

	if q.OrderBy != nil {
		field, desc := q.OrderBy.Field, q.OrderBy.Desc
		docs = slices.DeleteFunc(docs, func(d *Document) bool {
			_, ok := d.Fields[field]
			return !ok
		})
		slices.SortStableFunc(docs, func(a, b *Document) int {
			c := compareValues(a.Fields[field], b.Fields[field])
			if desc {
				c = -c
			}
			if c != 0 {
				return c
			}
			return strings.Compare(a.ID, b.ID)
		})
	} else {
		slices.SortFunc(docs, func(a, b *Document) int { return strings.Compare(a.ID, b.ID) })
	}

	return page(docs, q.Offset, q.Limit), nil
}

// Scan iterates every document of a collection in id order.
func (s *Store) Scan(ctx context.Context, collection string) iter.Seq2[*Document, error] {
	return func(yield func(*Document, error) bool) {
		err := s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = docScanPrefix(collection)
			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Rewind(); it.Valid(); it.Next() {
				if err := ctx.Err(); err != nil {
					return err
				}
				var r *record
				err := it.Item().Value(func(val []byte) error {
					var derr error
					r, derr = decodeRecord(val)
					return derr
				})
				if err != nil {
					if !yield(nil, fmt.Errorf("scan %s: %w", collection, err)) {
						return errStopScan
					}
					continue
				}
				if !yield(&r.Document, nil) {
					return errStopScan
				}
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStopScan) {
			yield(nil, err)
		}
	}
}

var errStopScan = errors.New("scan stopped")

// candidates resolves the filters through the indexes. When no filter is
// indexable it falls back to a collection scan and returns the documents.
func candidates(ctx context.Context, txn *badger.Txn, collection string, filters []domain.Filter) ([]string, []*Document, error) {
	var ids []string
	indexed := false

	for _, f := range filters {
		enc, ok := encodeScalar(f.Value)
		if !ok {
			continue
		}
		prefix := eqScanPrefix(collection, f.Field, enc)
		if f.Op == domain.OpArrayContains {
			prefix = arrScanPrefix(collection, f.Field, enc)
		}

		found, err := scanIDs(ctx, txn, prefix)
		if err != nil {
			return nil, nil, err
		}
		if !indexed {
			ids, indexed = found, true
		} else {
			ids = intersect(ids, found)
		}
		if len(ids) == 0 {
			return nil, nil, nil
		}
	}

	if indexed {
		return ids, nil, nil
	}

	docs, err := scanDocs(ctx, txn, collection)
	if err != nil {
		return nil, nil, err
	}
	if docs == nil {
		docs = []*Document{}
	}
	return nil, docs, nil
}

func scanIDs(ctx context.Context, txn *badger.Txn, prefix []byte) ([]string, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	for it.Rewind(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, unavailable(err, "index scan")
		}
		ids = append(ids, idFromIndexKey(it.Item().Key()))
	}
	return ids, nil
}

func scanDocs(ctx context.Context, txn *badger.Txn, collection string) ([]*Document, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = docScanPrefix(collection)
	it := txn.NewIterator(opts)
	defer it.Close()

	var docs []*Document
	for it.Rewind(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, unavailable(err, "collection scan")
		}
		err := it.Item().Value(func(val []byte) error {
			r, err := decodeRecord(val)
			if err != nil {
				return err
			}
			docs = append(docs, &r.Document)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return docs, nil
}

func loadRecord(txn *badger.Txn, collection, id string) (*record, error) {
	item, err := txn.Get(docKey(collection, id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domainerrors.NotFoundf("%s/%s not found", collection, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	var r *record
	err = item.Value(func(val []byte) error {
		var derr error
		r, derr = decodeRecord(val)
		return derr
	})
	return r, err
}

// intersect keeps the ids of a present in b. Both are sorted, as index scans
// return keys in order.
func intersect(a, b []string) []string {
	out := a[:0]
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch c := strings.Compare(a[i], b[j]); {
		case c == 0:
			out = append(out, a[i])
			i++
			j++
		case c < 0:
			i++
		default:
			j++
		}
	}
	return out
}

func page(docs []*Document, offset, limit int) []*Document {
	if offset > 0 {
		if offset >= len(docs) {
			return []*Document{}
		}
		docs = docs[offset:]
	}
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	if docs == nil {
		return []*Document{}
	}
	return docs
}

func unavailable(err error, op string) error {
	return domainerrors.Unavailable(err, "primary store "+op)
}
