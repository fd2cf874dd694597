// Package normalize converts raw identity fragments (names, phones, emails,
// postal addresses) into canonical forms that can be compared directly.
//
// Every function is pure and safe for concurrent use. Malformed input never
// panics: it degrades to an empty or invalid result which callers treat as
// an absent field.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// PersonName is a normalized, position-split personal name.
type PersonName struct {
	First  string `json:"first,omitempty"`
	Middle string `json:"middle,omitempty"`
	Last   string `json:"last,omitempty"`
	Suffix string `json:"suffix,omitempty"`
}

// Empty reports whether neither a first nor a last name is present.
func (n PersonName) Empty() bool {
	return n.First == "" && n.Last == ""
}

// honorifics are leading titles dropped from names.
var honorifics = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "miss": {}, "mx": {}, "dr": {}, "rev": {},
	"reverend": {}, "prof": {}, "professor": {}, "hon": {}, "honorable": {},
	"sir": {}, "dame": {}, "madam": {}, "fr": {}, "father": {}, "pastor": {},
	"capt": {}, "col": {}, "gen": {}, "lt": {}, "sgt": {}, "judge": {},
}

// nameSuffixes are generational and professional suffixes split off names.
var nameSuffixes = map[string]struct{}{
	"jr": {}, "sr": {}, "ii": {}, "iii": {}, "iv": {}, "v": {}, "2nd": {}, "3rd": {},
	"phd": {}, "md": {}, "esq": {}, "dds": {}, "dmd": {}, "dvm": {}, "cpa": {},
	"jd": {}, "rn": {}, "mba": {}, "cfa": {}, "pe": {}, "ret": {},
}

// Name splits and normalizes a free-form personal name. "Last, First Middle"
// ordering is recognised when the part after the comma is not just a suffix.
func Name(raw string) PersonName {
	s := cleanName(raw)
	if s == "" {
		return PersonName{}
	}

	if left, right, ok := strings.Cut(s, ","); ok {
		rightTokens := strings.Fields(strings.ReplaceAll(right, ",", " "))
		if len(rightTokens) > 0 && !allSuffixes(rightTokens) {
			// "smith, john a jr" -> "john a jr smith" with the suffix kept last.
			tokens := append(rightTokens, strings.Fields(left)...)
			return fromTokens(reorderSuffix(tokens))
		}
		s = left + " " + strings.Join(rightTokens, " ")
	}

	return fromTokens(strings.Fields(strings.ReplaceAll(s, ",", " ")))
}

// NameParts normalizes a name that a source already split into components.
// A full name stuffed into the first-name field is re-split.
func NameParts(first, middle, last, suffix string) PersonName {
	first = cleanName(first)
	last = cleanName(last)
	if last == "" && strings.Contains(first, " ") {
		n := Name(first + " " + middle)
		if n.Suffix == "" {
			n.Suffix = cleanToken(suffix)
		}
		return n
	}

	n := PersonName{
		First:  stripHonorifics(first),
		Middle: cleanName(middle),
		Last:   last,
		Suffix: cleanToken(suffix),
	}
	if tokens := strings.Fields(n.Last); len(tokens) > 1 {
		if _, ok := nameSuffixes[tokens[len(tokens)-1]]; ok {
			if n.Suffix == "" {
				n.Suffix = tokens[len(tokens)-1]
			}
			n.Last = strings.Join(tokens[:len(tokens)-1], " ")
		}
	}
	n.First = strings.ReplaceAll(n.First, ",", "")
	n.Last = strings.ReplaceAll(n.Last, ",", "")
	return n
}

// FirstToken returns the first token of a normalized given name, ignoring
// any leading honorific.
func FirstToken(s string) string {
	fields := strings.Fields(stripHonorifics(cleanToken(s)))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// IsSuffix reports whether token is a generational or professional name
// suffix such as "Jr." or "PhD".
func IsSuffix(token string) bool {
	_, ok := nameSuffixes[cleanToken(token)]
	return ok
}

func fromTokens(tokens []string) PersonName {
	for len(tokens) > 0 {
		if _, ok := honorifics[tokens[0]]; !ok {
			break
		}
		tokens = tokens[1:]
	}

	var suffixes []string
	for len(tokens) > 1 {
		last := tokens[len(tokens)-1]
		if _, ok := nameSuffixes[last]; !ok {
			break
		}
		suffixes = append([]string{last}, suffixes...)
		tokens = tokens[:len(tokens)-1]
	}

	n := PersonName{Suffix: strings.Join(suffixes, " ")}
	switch len(tokens) {
	case 0:
	case 1:
		n.First = tokens[0]
	case 2:
		n.First, n.Last = tokens[0], tokens[1]
	default:
		n.First = tokens[0]
		n.Middle = strings.Join(tokens[1:len(tokens)-1], " ")
		n.Last = tokens[len(tokens)-1]
	}
	return n
}

// reorderSuffix moves suffix tokens that came from the given-name side of a
// "last, first jr" form to the end of the token list.
func reorderSuffix(tokens []string) []string {
	var names, sufs []string
	for _, t := range tokens {
		if _, ok := nameSuffixes[t]; ok {
			sufs = append(sufs, t)
			continue
		}
		names = append(names, t)
	}
	return append(names, sufs...)
}

func allSuffixes(tokens []string) bool {
	for _, t := range tokens {
		if _, ok := nameSuffixes[t]; !ok {
			return false
		}
	}
	return true
}

func stripHonorifics(s string) string {
	tokens := strings.Fields(s)
	for len(tokens) > 1 {
		if _, ok := honorifics[tokens[0]]; !ok {
			break
		}
		tokens = tokens[1:]
	}
	return strings.Join(tokens, " ")
}

// cleanName lower-cases, folds diacritics and drops punctuation other than
// hyphens and commas. Whitespace is collapsed.
func cleanName(raw string) string {
	s := strings.ToLower(fold(raw))
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := true
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == ',':
			b.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '_' || r == '/':
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		}
	}
	return strings.TrimSpace(strings.ReplaceAll(b.String(), " ,", ","))
}

func cleanToken(raw string) string {
	return strings.ReplaceAll(cleanName(raw), ",", "")
}

// fold strips combining marks so "José" and "Jose" compare equal.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
