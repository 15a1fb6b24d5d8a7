package id

import (
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lydia02/E-Library-sub000/internal/domain"
)

func TestGenerate_Uniqueness(t *testing.T) {
	ids := make(map[string]bool)
	count := 1000

	for i := 0; i < count; i++ {
		id, err := Generate("test")
		require.NoError(t, err)
		assert.False(t, ids[id], "ID should be unique: %s", id)
		ids[id] = true
	}

	assert.Len(t, ids, count)
}

func TestForKind_Prefix(t *testing.T) {
	tests := []struct {
		kind   domain.Kind
		prefix string
	}{
		{domain.KindBooks, "book-"},
		{domain.KindFavorites, "fav-"},
		{domain.KindUserBooks, "ub-"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			id, err := ForKind(tt.kind)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(id, tt.prefix), id)
			// prefix + hyphen + 21 character nanoid
			assert.Len(t, id, len(tt.prefix)+21)
		})
	}
}

func TestTask_SortsByCreation(t *testing.T) {
	first := Task()
	second := Task()

	_, err := ulid.Parse(first)
	require.NoError(t, err)
	assert.Less(t, first, second)
}

func TestMustGenerate(t *testing.T) {
	assert.NotPanics(t, func() {
		id := MustGenerate("book")
		assert.NotEmpty(t, id)
	})
}
