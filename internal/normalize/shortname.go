package normalize

import (
	"strings"
	"unicode"
)

// NotInformed is the short name given to a group imported without a name.
const NotInformed = "non-informed"

const (
	campusSuffixLen   = 3
	fallbackPrefixLen = 4
	campusCodeLen     = 3
)

// stopWords are skipped when building acronyms. Keys are folded.
var stopWords = map[string]struct{}{
	// Portuguese
	"a": {}, "o": {}, "as": {}, "os": {}, "um": {}, "uma": {}, "uns": {}, "umas": {},
	"de": {}, "da": {}, "do": {}, "das": {}, "dos": {},
	"em": {}, "na": {}, "no": {}, "nas": {}, "nos": {},
	"ao": {}, "aos": {}, "para": {}, "pra": {}, "por": {}, "pela": {}, "pelo": {}, "pelas": {}, "pelos": {},
	"com": {}, "sem": {}, "sob": {}, "sobre": {}, "entre": {},
	"e": {}, "ou": {}, "mas": {}, "nem": {},
	// English
	"the": {}, "an": {}, "of": {}, "in": {}, "on": {}, "at": {}, "by": {},
	"for": {}, "to": {}, "with": {}, "from": {}, "into": {},
	"and": {}, "or": {}, "nor": {}, "but": {},
}

// ShortName builds an acronym for a group name from the initials of its
// significant words, optionally suffixed with a truncated campus code:
//
//	ShortName("Análise e Desenvolvimento em Sistemas Mecânicos", "VIT") == "ADSM-VIT"
//
// When every word is a stop word the first letters of the first word are used
// instead. An empty name yields NotInformed.
func ShortName(fullName, campusCode string) string {
	words := splitWords(fullName)
	if len(words) == 0 {
		return NotInformed
	}

	var b strings.Builder
	for _, w := range words {
		folded := Fold(w)
		if _, skip := stopWords[folded]; skip {
			continue
		}
		for _, r := range folded {
			b.WriteRune(unicode.ToUpper(r))
			break
		}
	}

	acronym := b.String()
	if acronym == "" {
		acronym = strings.ToUpper(truncate(Fold(words[0]), fallbackPrefixLen))
	}

	if suffix := strings.ToUpper(truncate(strings.TrimSpace(campusCode), campusSuffixLen)); suffix != "" {
		acronym += "-" + suffix
	}
	return acronym
}

// CampusCode derives the base code for a campus from its name: the first
// letters of the folded name, uppercased. Collisions are resolved by the caller.
func CampusCode(name string) string {
	var b strings.Builder
	n := 0
	for _, r := range Fold(name) {
		if n == campusCodeLen {
			break
		}
		if unicode.IsLetter(r) {
			b.WriteRune(unicode.ToUpper(r))
			n++
		}
	}
	if b.Len() == 0 {
		return "UNK"
	}
	return b.String()
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
