package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/oklog/ulid/v2"

	"github.com/Lydia02/E-Library-sub000/internal/domain"
)

// Generate creates a prefixed unique ID using NanoID
// Format: prefix-nanoid (e.g., "book-V1StGXR8_Z5jdHi6B-myT")
//
// Returns an error if the system has insufficient entropy for secure random generation.
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}

// Prefix returns the document id prefix for a kind.
func Prefix(k domain.Kind) string {
	switch k {
	case domain.KindBooks:
		return "book"
	case domain.KindFavorites:
		return "fav"
	case domain.KindUserBooks:
		return "ub"
	}
	return "doc"
}

// ForKind generates a primary document id for a kind.
func ForKind(k domain.Kind) (string, error) {
	return Generate(Prefix(k))
}

// Task returns a new sync task id. ULIDs sort by creation time, so the outbox
// can drain tasks in submission order by id alone.
func Task() string {
	return ulid.Make().String()
}
