// Package normalize provides utilities for normalizing and sanitizing catalog data
// before it is written to either store.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// languageNameToCode maps common language names to ISO 639-1 codes.
// Codes themselves (ISO 639-1, ISO 639-2, locales) are resolved by x/text.
//
//nolint:gochecknoglobals // Static lookup table for language normalization
var languageNameToCode = map[string]string{
	"english": "en", "spanish": "es", "french": "fr", "german": "de",
	"italian": "it", "portuguese": "pt", "dutch": "nl", "russian": "ru",
	"japanese": "ja", "chinese": "zh", "korean": "ko", "arabic": "ar",
	"hindi": "hi", "polish": "pl", "swedish": "sv", "norwegian": "no",
	"danish": "da", "finnish": "fi", "turkish": "tr", "greek": "el",
	"hebrew": "he", "czech": "cs", "hungarian": "hu", "romanian": "ro",
	"yoruba": "yo", "igbo": "ig", "hausa": "ha", "swahili": "sw",
	"zulu": "zu", "xhosa": "xh", "amharic": "am", "afrikaans": "af",
	"mandarin": "zh", "cantonese": "zh", "farsi": "fa", "persian": "fa",
}

// LanguageCode converts various language representations to ISO 639-1 codes.
// It handles:
//   - ISO 639-1 codes: "en" -> "en"
//   - ISO 639-2 codes: "eng" -> "en"
//   - Locale codes: "en-US", "en_GB" -> "en"
//   - Language names: "English", "ENGLISH" -> "en"
//
// Returns empty string for unrecognized values.
func LanguageCode(raw string) string {
	s := strings.ToLower(strings.TrimSpace(sanitizeString(raw)))
	if s == "" {
		return ""
	}

	if code, ok := languageNameToCode[s]; ok {
		return code
	}

	if idx := strings.IndexAny(s, "-_"); idx > 0 {
		s = s[:idx]
	}
	if len(s) < 2 || len(s) > 3 {
		return ""
	}

	base, err := language.ParseBase(s)
	if err != nil {
		return ""
	}
	code := base.String()
	if len(code) != 2 {
		// No two-letter form exists; keep the data rather than guess.
		return ""
	}
	return code
}

// SearchKey derives the case-insensitive lookup key stored alongside text fields:
// NFKC-normalized, lower-cased, with runs of whitespace collapsed to one space.
func SearchKey(s string) string {
	s = norm.NFKC.String(sanitizeString(s))
	// cases.Caser is stateful, String resets it, but it is not safe for
	// concurrent use, so each call gets its own.
	s = cases.Lower(language.Und).String(s)
	return strings.Join(strings.Fields(s), " ")
}

// Genres cleans a genre list: trims entries, drops blanks and duplicates
// (compared by search key) and keeps the first spelling in original order.
// The result is never nil.
func Genres(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, g := range raw {
		g = strings.Join(strings.Fields(sanitizeString(g)), " ")
		if g == "" {
			continue
		}
		key := SearchKey(g)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, g)
	}
	return out
}

// ISBN strips separators from an ISBN so "978-0-441-01359-3" and
// "9780441013593" share one natural key. A trailing check character x is
// upper-cased.
func ISBN(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == 'x' || r == 'X':
			b.WriteRune('X')
		}
	}
	return b.String()
}

// sanitizeString removes null bytes from strings, which can cause
// issues in databases and JSON parsing.
func sanitizeString(s string) string {
	return strings.Map(func(r rune) rune {
		if r == 0 {
			return -1
		}
		return r
	}, s)
}
