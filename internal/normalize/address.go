package normalize

import (
	"strings"
	"unicode"

	"github.com/sells-group/lead-identity/internal/identity"
)

// NormalizedAddress is an address reduced to comparable components. It is
// used for matching only; the reported address is never rewritten.
type NormalizedAddress struct {
	Street string `json:"street,omitempty"`
	City   string `json:"city,omitempty"`
	State  string `json:"state,omitempty"`
	Zip    string `json:"zip,omitempty"`
}

// Empty reports whether no component survived normalization.
func (a NormalizedAddress) Empty() bool {
	return a.Street == "" && a.City == "" && a.State == "" && a.Zip == ""
}

// Key returns a single string identifying the address, suitable for
// grouping duplicates.
func (a NormalizedAddress) Key() string {
	if a.Empty() {
		return ""
	}
	return a.Street + "|" + a.City + "|" + a.State + "|" + a.Zip
}

// abbrToState maps lowercase state abbreviations to lowercase full names.
var abbrToState = map[string]string{
	"al": "alabama", "ak": "alaska", "az": "arizona", "ar": "arkansas",
	"ca": "california", "co": "colorado", "ct": "connecticut", "de": "delaware",
	"fl": "florida", "ga": "georgia", "hi": "hawaii", "id": "idaho",
	"il": "illinois", "in": "indiana", "ia": "iowa", "ks": "kansas",
	"ky": "kentucky", "la": "louisiana", "me": "maine", "md": "maryland",
	"ma": "massachusetts", "mi": "michigan", "mn": "minnesota", "ms": "mississippi",
	"mo": "missouri", "mt": "montana", "ne": "nebraska", "nv": "nevada",
	"nh": "new hampshire", "nj": "new jersey", "nm": "new mexico", "ny": "new york",
	"nc": "north carolina", "nd": "north dakota", "oh": "ohio", "ok": "oklahoma",
	"or": "oregon", "pa": "pennsylvania", "ri": "rhode island", "sc": "south carolina",
	"sd": "south dakota", "tn": "tennessee", "tx": "texas", "ut": "utah",
	"vt": "vermont", "va": "virginia", "wa": "washington", "wv": "west virginia",
	"wi": "wisconsin", "wy": "wyoming", "dc": "district of columbia",
	"pr": "puerto rico", "gu": "guam", "vi": "virgin islands",
}

// stateToAbbr maps lowercase full names to lowercase abbreviations.
var stateToAbbr = func() map[string]string {
	m := make(map[string]string, len(abbrToState))
	for abbr, full := range abbrToState {
		m[full] = abbr
	}
	return m
}()

// streetTokens maps street types and directionals, spelled out or in common
// variant abbreviations, to the USPS abbreviation.
var streetTokens = map[string]string{
	"street": "st", "str": "st", "st": "st",
	"avenue": "ave", "av": "ave", "ave": "ave", "avn": "ave",
	"boulevard": "blvd", "boul": "blvd", "blvd": "blvd",
	"drive": "dr", "drv": "dr", "dr": "dr",
	"road": "rd", "rd": "rd",
	"lane": "ln", "ln": "ln",
	"court": "ct", "crt": "ct", "ct": "ct",
	"circle": "cir", "circ": "cir", "cir": "cir",
	"place": "pl", "pl": "pl",
	"parkway": "pkwy", "pkway": "pkwy", "pky": "pkwy", "pkwy": "pkwy",
	"highway": "hwy", "hiway": "hwy", "hwy": "hwy",
	"terrace": "ter", "terr": "ter", "ter": "ter",
	"trail": "trl", "trl": "trl",
	"way": "way", "wy": "way",
	"square": "sq", "sq": "sq",
	"expressway": "expy", "expy": "expy",
	"freeway": "fwy", "fwy": "fwy",
	"point": "pt", "pt": "pt",
	"north": "n", "south": "s", "east": "e", "west": "w",
	"northeast": "ne", "northwest": "nw", "southeast": "se", "southwest": "sw",
	"n": "n", "s": "s", "e": "e", "w": "w", "ne": "ne", "nw": "nw", "se": "se", "sw": "sw",
}

var directionals = map[string]bool{
	"n": true, "s": true, "e": true, "w": true, "ne": true, "nw": true, "se": true, "sw": true,
}

// unitDesignators start the secondary unit portion of a street line.
var unitDesignators = map[string]struct{}{
	"apt": {}, "apartment": {}, "unit": {}, "ste": {}, "suite": {}, "#": {},
	"rm": {}, "room": {}, "fl": {}, "floor": {}, "bldg": {}, "building": {},
	"lot": {}, "spc": {}, "space": {}, "trlr": {}, "dept": {},
}

// cityTokens contracts common city name prefixes.
var cityTokens = map[string]string{
	"saint": "st", "ste": "st", "fort": "ft", "mount": "mt", "mt": "mt", "ft": "ft",
}

// Address normalizes every component of a reported address.
func Address(a identity.Address) NormalizedAddress {
	return NormalizedAddress{
		Street: Street(a.Street),
		City:   City(a.City),
		State:  State(a.State),
		Zip:    Zip5(a.Zip),
	}
}

// Street normalizes a street line: lower case, no punctuation, USPS
// abbreviations and no secondary unit designator.
func Street(raw string) string {
	tokens := addressTokens(raw)
	for i, t := range tokens {
		if _, ok := unitDesignators[t]; ok && i > 0 {
			tokens = tokens[:i]
			break
		}
	}
	for i, t := range tokens {
		if abbr, ok := streetTokens[t]; ok && i > 0 {
			tokens[i] = abbr
		}
	}
	// "123 main st 4b": a trailing token with digits after the street type is a unit.
	for len(tokens) > 2 && hasDigit(tokens[len(tokens)-1]) {
		prev, ok := streetTokens[tokens[len(tokens)-2]]
		if !ok || directionals[prev] || prev == "hwy" || prev == "fwy" || prev == "expy" {
			break
		}
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

// City normalizes a city name.
func City(raw string) string {
	tokens := addressTokens(raw)
	for i, t := range tokens {
		if c, ok := cityTokens[t]; ok {
			tokens[i] = c
		}
	}
	return strings.Join(tokens, " ")
}

// State returns the lowercase two-letter code for a state name or code.
// Unknown values are returned cleaned but otherwise unchanged.
func State(raw string) string {
	s := strings.Join(addressTokens(strings.ReplaceAll(raw, ".", "")), " ")
	if s == "" {
		return ""
	}
	if _, ok := abbrToState[s]; ok {
		return s
	}
	if abbr, ok := stateToAbbr[s]; ok {
		return abbr
	}
	return s
}

// Zip5 returns the five-digit ZIP code. ZIP+4 is truncated, and four-digit
// values whose leading zero was lost in a spreadsheet are re-padded.
func Zip5(raw string) string {
	s := strings.TrimSpace(raw)
	if before, after, ok := strings.Cut(s, "."); ok && strings.Trim(after, "0") == "" {
		s = before
	}
	d := Digits(s)
	switch {
	case len(d) >= 5:
		return d[:5]
	case len(d) == 4:
		return "0" + d
	default:
		return ""
	}
}

func addressTokens(raw string) []string {
	s := strings.ToLower(fold(raw))
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '#':
			b.WriteString(" # ")
		case r == '\'' || r == '.':
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Fields(b.String())
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}
