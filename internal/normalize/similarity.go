package normalize

import (
	"strings"

	"github.com/agext/levenshtein"
)

// StringSimilarity returns a symmetric similarity ratio in [0,1] derived
// from the Levenshtein edit distance. Two empty strings are identical; one
// empty string shares nothing with a non-empty one.
func StringSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	sim := levenshtein.Similarity(a, b, nil)
	switch {
	case sim < 0:
		return 0
	case sim > 1:
		return 1
	}
	return sim
}

// soundexCodes holds the digit for each consonant group; vowels and h, w, y
// map to zero.
var soundexCodes = [26]byte{
	'0', '1', '2', '3', '0', '1', '2', '0', '0', '2', '2', '4', '5',
	'5', '0', '1', '2', '6', '2', '3', '0', '1', '0', '2', '0', '2',
}

// Soundex returns the American Soundex code of a name, or "" when it has
// no letters.
func Soundex(s string) string {
	s = strings.ToLower(fold(s))
	var letters []byte
	for i := 0; i < len(s); i++ {
		if s[i] >= 'a' && s[i] <= 'z' {
			letters = append(letters, s[i])
		}
	}
	if len(letters) == 0 {
		return ""
	}

	code := []byte{letters[0] - 'a' + 'A'}
	prev := soundexCodes[letters[0]-'a']
	for _, c := range letters[1:] {
		d := soundexCodes[c-'a']
		if d != '0' && d != prev {
			code = append(code, d)
			if len(code) == 4 {
				break
			}
		}
		// h and w do not separate letters with the same code.
		if c != 'h' && c != 'w' {
			prev = d
		}
	}
	for len(code) < 4 {
		code = append(code, '0')
	}
	return string(code)
}
