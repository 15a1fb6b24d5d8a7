// Package mapper translates canonical entities to and from the native shapes of
// both stores. It performs no I/O.
//
// Canonical field names (camelCase) double as primary document field names.
// Secondary column names are snake_case; Column resolves one from the other.
package mapper

import (
	"github.com/Lydia02/E-Library-sub000/internal/domain"
	domainerrors "github.com/Lydia02/E-Library-sub000/internal/errors"
	"github.com/Lydia02/E-Library-sub000/internal/store"
)

type fieldType int

const (
	typeString fieldType = iota
	typeInt
	typeFloat
	typeBool
	typeTime
	typeStrings
)

type field struct {
	name      string
	column    string
	typ       fieldType
	immutable bool
}

var bookFields = []field{
	{name: "id", column: "primary_id", typ: typeString, immutable: true},
	{name: "title", column: "title", typ: typeString},
	{name: "author", column: "author", typ: typeString},
	{name: "isbn", column: "isbn", typ: typeString},
	{name: "description", column: "description", typ: typeString},
	{name: "coverImage", column: "cover_image", typ: typeString},
	{name: "publishedYear", column: "published_year", typ: typeInt},
	{name: "publisher", column: "publisher", typ: typeString},
	{name: "pageCount", column: "page_count", typ: typeInt},
	{name: "language", column: "language", typ: typeString},
	{name: "genres", column: "genres", typ: typeStrings},
	{name: "rating", column: "rating", typ: typeFloat},
	{name: "totalRatings", column: "total_ratings", typ: typeInt},
	{name: "createdBy", column: "created_by", typ: typeString},
	{name: "isUserGenerated", column: "is_user_generated", typ: typeBool},
	{name: "createdAt", column: "created_at", typ: typeTime, immutable: true},
	{name: "updatedAt", column: "updated_at", typ: typeTime},
}

var favoriteFields = []field{
	{name: "id", column: "primary_id", typ: typeString, immutable: true},
	{name: "userId", column: "user_id", typ: typeString},
	{name: "bookId", column: "book_id", typ: typeString},
	{name: "createdAt", column: "created_at", typ: typeTime, immutable: true},
}

var userBookFields = []field{
	{name: "id", column: "primary_id", typ: typeString, immutable: true},
	{name: "userId", column: "user_id", typ: typeString},
	{name: "bookId", column: "book_id", typ: typeString},
	{name: "customTitle", column: "custom_title", typ: typeString},
	{name: "customAuthor", column: "custom_author", typ: typeString},
	{name: "customCoverImage", column: "custom_cover_image", typ: typeString},
	{name: "status", column: "status", typ: typeString},
	{name: "personalRating", column: "personal_rating", typ: typeInt},
	{name: "progress", column: "progress", typ: typeInt},
	{name: "notes", column: "notes", typ: typeString},
	{name: "startedAt", column: "started_at", typ: typeTime},
	{name: "completedAt", column: "completed_at", typ: typeTime},
	{name: "createdAt", column: "created_at", typ: typeTime, immutable: true},
	{name: "updatedAt", column: "updated_at", typ: typeTime},
}

func fieldsOf(k domain.Kind) ([]field, error) {
	switch k {
	case domain.KindBooks:
		return bookFields, nil
	case domain.KindFavorites:
		return favoriteFields, nil
	case domain.KindUserBooks:
		return userBookFields, nil
	}
	return nil, domainerrors.Validationf("unknown entity kind %q", k)
}

func lookup(k domain.Kind, name string) (field, error) {
	fields, err := fieldsOf(k)
	if err != nil {
		return field{}, err
	}
	if k == domain.KindBooks && name == "coverUrl" {
		name = "coverImage"
	}
	for _, f := range fields {
		if f.name == name {
			return f, nil
		}
	}
	return field{}, domainerrors.Validationf("unknown %s field %q", k, name)
}

// Column returns the secondary column holding a canonical field.
func Column(k domain.Kind, name string) (string, error) {
	f, err := lookup(k, name)
	if err != nil {
		return "", err
	}
	return f.column, nil
}

// UniqueGroups lists the primary document fields that make up the natural key
// of a kind. The primary store enforces them on insert and update.
func UniqueGroups(k domain.Kind) []store.Unique {
	switch k {
	case domain.KindBooks:
		return []store.Unique{{"isbn"}}
	case domain.KindFavorites, domain.KindUserBooks:
		return []store.Unique{{"userId", "bookId"}}
	}
	return nil
}
