package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLanguageCode(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		// ISO 639-1 codes (passthrough)
		{"en", "en"},
		{"fr", "fr"},
		// ISO 639-2 codes
		{"eng", "en"},
		{"deu", "de"},
		// Locale codes
		{"en-US", "en"},
		{"en_GB", "en"},
		// Language names
		{"English", "en"},
		{"YORUBA", "yo"},
		// Edge cases
		{"", ""},
		{"  en  ", "en"},
		{"unknown", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, LanguageCode(tt.input))
		})
	}
}

func TestSearchKey(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Dune", "dune"},
		{"  The   Left Hand\tof Darkness ", "the left hand of darkness"},
		{"ＤＵＮＥ", "dune"}, // fullwidth folds under NFKC
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, SearchKey(tt.input))
		})
	}
}

func TestGenres(t *testing.T) {
	got := Genres([]string{" Science  Fiction", "", "science fiction", "Classics"})
	assert.Equal(t, []string{"Science Fiction", "Classics"}, got)

	assert.NotNil(t, Genres(nil))
	assert.Empty(t, Genres(nil))
}

func TestISBN(t *testing.T) {
	assert.Equal(t, "9780441013593", ISBN("978-0-441-01359-3"))
	assert.Equal(t, "044101359X", ISBN("0 441 01359 x"))
	assert.Empty(t, ISBN(""))
}
