package store

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/Lydia02/E-Library-sub000/internal/domain"
	domainerrors "github.com/Lydia02/E-Library-sub000/internal/errors"
	"github.com/Lydia02/E-Library-sub000/internal/id"
)

// Unique names a group of fields whose combined values must be unique within a
// collection. A group is only enforced when every field holds a non-empty value.
type Unique []string

// Insert creates a document with a store-assigned id. Unique groups are checked
// in the same transaction; a taken group fails with CONFLICT.
func (s *Store) Insert(ctx context.Context, collection string, fields map[string]any, unique ...Unique) (*Document, error) {
	docID, err := id.ForKind(domain.Kind(collection))
	if err != nil {
		return nil, err
	}
	return s.InsertWithID(ctx, collection, docID, fields, unique...)
}

// InsertWithID creates a document with a caller chosen id.
// Returns CONFLICT if the id or a unique group is taken.
func (s *Store) InsertWithID(ctx context.Context, collection, docID string, fields map[string]any, unique ...Unique) (*Document, error) {
	normalized, err := normalizeFields(fields)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	ts := TimestampOf(domain.NormalizeTime(s.now()))
	r := &record{Document: Document{ID: docID, Fields: normalized, CreateTime: ts, UpdateTime: ts}}

	err = s.update(ctx, func(txn *badger.Txn) error {
		_, err := txn.Get(docKey(collection, docID))
		if err == nil {
			return domainerrors.Conflictf("%s/%s already exists", collection, docID)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check existing document: %w", err)
		}

		claims, err := takeClaims(txn, collection, docID, normalized, unique)
		if err != nil {
			return err
		}
		r.Claims = claims
		return writeRecord(txn, collection, r, nil)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("document inserted", "collection", collection, "id", docID)
	return &r.Document, nil
}

// Update merges patch into a document. A nil patch value removes the field.
// Unique groups held by the document are re-checked along with any given.
func (s *Store) Update(ctx context.Context, collection, docID string, patch map[string]any, unique ...Unique) (*Document, error) {
	normalized := make(map[string]any, len(patch))
	for k, v := range patch {
		nv, err := normalizeValue(v)
		if err != nil {
			return nil, domainerrors.Validationf("field %s: %v", k, err)
		}
		normalized[k] = nv
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	var updated *record
	err := s.update(ctx, func(txn *badger.Txn) error {
		old, err := loadRecord(txn, collection, docID)
		if err != nil {
			return err
		}

		next := &record{Document: old.Document}
		next.Fields = maps.Clone(old.Fields)
		for k, v := range normalized {
			if v == nil {
				delete(next.Fields, k)
				continue
			}
			next.Fields[k] = v
		}
		next.UpdateTime = TimestampOf(domain.NormalizeTime(s.now()))

		groups := slices.Clone(unique)
		for _, c := range old.Claims {
			if !slices.ContainsFunc(groups, func(g Unique) bool { return slices.Equal(g, c.Fields) }) {
				groups = append(groups, c.Fields)
			}
		}

		claims, err := takeClaims(txn, collection, docID, next.Fields, groups)
		if err != nil {
			return err
		}
		for _, c := range old.Claims {
			if !slices.ContainsFunc(claims, func(n claim) bool { return n.Key == c.Key }) {
				if err := txn.Delete([]byte(c.Key)); err != nil {
					return fmt.Errorf("release claim: %w", err)
				}
			}
		}
		next.Claims = claims

		if err := writeRecord(txn, collection, next, old); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("document updated", "collection", collection, "id", docID, "fields", len(patch))
	return &updated.Document, nil
}

// Delete removes a document and its index entries.
// Returns NOT_FOUND if the document does not exist.
func (s *Store) Delete(ctx context.Context, collection, docID string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	return s.update(ctx, func(txn *badger.Txn) error {
		r, err := loadRecord(txn, collection, docID)
		if err != nil {
			return err
		}
		for _, key := range ownedKeys(collection, r) {
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("delete %s/%s: %w", collection, docID, err)
			}
		}
		return nil
	})
}

// BatchDelete removes many documents with a single write batch and returns the
// number that existed. Missing ids are ignored.
func (s *Store) BatchDelete(ctx context.Context, collection string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	var keys [][]byte
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		for _, docID := range ids {
			if err := ctx.Err(); err != nil {
				return unavailable(err, "batch delete")
			}
			r, err := loadRecord(txn, collection, docID)
			if domainerrors.Is(err, domainerrors.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			keys = append(keys, ownedKeys(collection, r)...)
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("batch delete: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flush batch delete: %w", err)
	}

	s.logger.Debug("documents batch deleted", "collection", collection, "requested", len(ids), "deleted", count)
	return count, nil
}

func normalizeFields(fields map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		nv, err := normalizeValue(v)
		if err != nil {
			return nil, domainerrors.Validationf("field %s: %v", k, err)
		}
		if nv != nil {
			out[k] = nv
		}
	}
	return out, nil
}

// takeClaims claims every complete unique group for docID.
func takeClaims(txn *badger.Txn, collection, docID string, fields map[string]any, groups []Unique) ([]claim, error) {
	claims := make([]claim, 0, len(groups))
	for _, group := range groups {
		values := make([]string, 0, len(group))
		for _, f := range group {
			enc, ok := encodeScalar(fields[f])
			if !ok || enc == "s" {
				break
			}
			values = append(values, enc)
		}
		if len(values) != len(group) {
			continue
		}

		key := claimKey(collection, group, values)
		item, err := txn.Get([]byte(key))
		switch {
		case err == nil:
			owner, verr := item.ValueCopy(nil)
			if verr != nil {
				return nil, fmt.Errorf("read claim: %w", verr)
			}
			if string(owner) != docID {
				return nil, domainerrors.Conflictf("%s with %s already exists", collection, describeGroup(group, fields)).
					WithDetails(map[string]string{"existing_id": string(owner)})
			}
		case errors.Is(err, badger.ErrKeyNotFound):
			if err := txn.Set([]byte(key), []byte(docID)); err != nil {
				return nil, fmt.Errorf("set claim: %w", err)
			}
		default:
			return nil, fmt.Errorf("check claim: %w", err)
		}
		claims = append(claims, claim{Fields: group, Key: key})
	}
	return claims, nil
}

func describeGroup(group Unique, fields map[string]any) string {
	parts := make([]string, len(group))
	for i, f := range group {
		parts[i] = fmt.Sprintf("%s=%v", f, fields[f])
	}
	return strings.Join(parts, ", ")
}

// writeRecord stores r and its index entries, dropping the entries of old.
func writeRecord(txn *badger.Txn, collection string, r, old *record) error {
	if old != nil {
		for _, key := range indexKeys(collection, old.ID, old.Fields) {
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("drop index entry: %w", err)
			}
		}
	}
	for _, key := range indexKeys(collection, r.ID, r.Fields) {
		if err := txn.Set(key, nil); err != nil {
			return fmt.Errorf("set index entry: %w", err)
		}
	}
	data, err := encodeRecord(r)
	if err != nil {
		return err
	}
	return txn.Set(docKey(collection, r.ID), data)
}

// ownedKeys lists the document key, its index entries and its claims.
func ownedKeys(collection string, r *record) [][]byte {
	keys := indexKeys(collection, r.ID, r.Fields)
	for _, c := range r.Claims {
		keys = append(keys, []byte(c.Key))
	}
	return append(keys, docKey(collection, r.ID))
}
