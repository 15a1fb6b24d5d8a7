// Package domain contains the canonical catalog entities shared by both stores.
package domain

import (
	"fmt"
	"time"
)

// Kind names a logical entity collection. The same name is used for the primary
// collection and the secondary table.
type Kind string

// Entity kinds.
const (
	KindBooks     Kind = "books"
	KindFavorites Kind = "favorites"
	KindUserBooks Kind = "user_books"
)

// Kinds lists every kind in migration order. Books come first so that favorites
// and user books migrated afterwards can resolve their book ids.
var Kinds = []Kind{KindBooks, KindFavorites, KindUserBooks}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindBooks, KindFavorites, KindUserBooks:
		return true
	}
	return false
}

// ParseKind parses a kind name, accepting the hyphenated "user-books" form used on
// the command line.
func ParseKind(s string) (Kind, error) {
	if s == "user-books" {
		return KindUserBooks, nil
	}
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown entity kind %q", s)
	}
	return k, nil
}

// Entity is implemented by every canonical entity.
type Entity interface {
	Kind() Kind
	EntityID() string
	// NaturalKey returns the domain key used to deduplicate across stores,
	// or "" when the entity does not carry a complete one.
	NaturalKey() string
}

// New returns an empty entity of the given kind.
func New(k Kind) (Entity, error) {
	switch k {
	case KindBooks:
		return &Book{}, nil
	case KindFavorites:
		return &Favorite{}, nil
	case KindUserBooks:
		return &UserBook{}, nil
	}
	return nil, fmt.Errorf("unknown entity kind %q", k)
}

// Now returns the current time in the canonical instant representation.
func Now() time.Time {
	return NormalizeTime(time.Now())
}

// NormalizeTime converts t to UTC at microsecond precision, the finest precision
// both stores can represent.
func NormalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC().Truncate(time.Microsecond)
}

// NormalizeTimePtr is NormalizeTime for optional timestamps.
func NormalizeTimePtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	n := NormalizeTime(*t)
	return &n
}
