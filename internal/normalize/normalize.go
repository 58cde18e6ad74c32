// Package normalize canonicalizes free text coming from spreadsheet exports
// so that names, emails and codes compare consistently across imports.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Name trims, collapses inner whitespace and title-cases a personal or
// organizational name.
func Name(s string) string {
	s = collapse(s)
	if s == "" {
		return ""
	}
	return cases.Title(language.BrazilianPortuguese).String(s)
}

// Text trims and collapses inner whitespace, keeping the original casing.
func Text(s string) string {
	return collapse(s)
}

// Email lowercases and trims an address.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Key returns the case-insensitive lookup key for a name.
func Key(s string) string {
	return strings.ToLower(Name(s))
}

// Fold lowercases s and strips diacritics, so "Mecânica" and "mecanica" fold
// to the same value.
func Fold(s string) string {
	decomposed := norm.NFD.String(strings.ToLower(collapse(s)))
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ContainsFold reports whether needle occurs in haystack as a run of whole
// words after folding both. An empty needle never matches.
func ContainsFold(haystack, needle string) bool {
	n := strings.Join(splitWords(Fold(needle)), " ")
	if n == "" {
		return false
	}
	h := strings.Join(splitWords(Fold(haystack)), " ")
	return strings.Contains(" "+h+" ", " "+n+" ")
}

// SplitList splits a delimited cell into trimmed, non-empty items.
func SplitList(s string, sep string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = collapse(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// EnsureURLScheme prefixes https:// to a non-empty URL that has no scheme.
func EnsureURLScheme(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.Contains(s, "://") {
		return s
	}
	return "https://" + s
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
