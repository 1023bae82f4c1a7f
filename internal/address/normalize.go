// Package address standardizes free-text addresses and resolves them to
// parcels using tiered exact, normalized-exact and fuzzy strategies.
package address

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// streetTypes maps street suffix abbreviations to their standard form.
var streetTypes = map[string]string{
	"ST":   "STREET",
	"AVE":  "AVENUE",
	"AV":   "AVENUE",
	"BLVD": "BOULEVARD",
	"DR":   "DRIVE",
	"RD":   "ROAD",
	"LN":   "LANE",
	"CT":   "COURT",
	"PL":   "PLACE",
	"TER":  "TERRACE",
	"CIR":  "CIRCLE",
	"HWY":  "HIGHWAY",
	"PKWY": "PARKWAY",
}

// directions maps directional abbreviations to their standard form.
var directions = map[string]string{
	"N":  "NORTH",
	"S":  "SOUTH",
	"E":  "EAST",
	"W":  "WEST",
	"NE": "NORTHEAST",
	"NW": "NORTHWEST",
	"SE": "SOUTHEAST",
	"SW": "SOUTHWEST",
}

// unitDesignators introduce a secondary unit. The token that follows one is a unit
// identifier and is never expanded ("APT E" stays "APT E").
var unitDesignators = map[string]bool{
	"UNIT":      true,
	"APT":       true,
	"APARTMENT": true,
	"SUITE":     true,
	"STE":       true,
	"#":         true,
}

// fold strips diacritics and upper-cases s. Casers are not safe for concurrent
// use, so one is built per call.
func fold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return cases.Upper(language.English).String(out)
}

// tokenize folds s and splits it into expanded address tokens.
// A "#" is kept as its own token so callers can find the unit that follows it.
func tokenize(s string) []string {
	folded := fold(s)

	var b strings.Builder
	b.Grow(len(folded) + 8)
	for _, r := range folded {
		switch {
		case r == '#':
			b.WriteString(" # ")
		case r == '-' || r == '/' || r == '&':
			b.WriteRune(r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	raw := strings.Fields(b.String())
	out := make([]string, 0, len(raw))
	afterUnit := false
	for _, tok := range raw {
		if afterUnit {
			out = append(out, tok)
			afterUnit = tok == "#"
			continue
		}
		if unitDesignators[tok] {
			out = append(out, tok)
			afterUnit = true
			continue
		}
		if full, ok := streetTypes[tok]; ok {
			tok = full
		} else if full, ok := directions[tok]; ok {
			tok = full
		}
		out = append(out, tok)
	}
	return out
}

// Normalize returns the standardized form used for tier-1 equality: case-folded,
// punctuation removed, whitespace collapsed and abbreviations expanded.
//
//	Normalize("123 Main St. #5")           == "123 MAIN STREET 5"
//	Normalize("789 SW 1st Blvd, Apt #4")   == "789 SOUTHWEST 1ST BOULEVARD APT 4"
func Normalize(s string) string {
	toks := tokenize(s)
	out := toks[:0]
	for _, tok := range toks {
		if tok != "#" {
			out = append(out, tok)
		}
	}
	return strings.Join(out, " ")
}

// Primary returns the normalized primary address line: secondary lines (anything
// after the first comma or newline) and unit/suite designators with their
// identifiers are removed.
func Primary(s string) string {
	if i := strings.IndexAny(s, ",\n\r"); i >= 0 {
		s = s[:i]
	}
	toks := tokenize(s)
	out := make([]string, 0, len(toks))
	for i := 0; i < len(toks); i++ {
		if unitDesignators[toks[i]] {
			// Skip the designator, any chained "#", and the unit identifier.
			for i+1 < len(toks) && toks[i+1] == "#" {
				i++
			}
			if i+1 < len(toks) {
				i++
			}
			continue
		}
		out = append(out, toks[i])
	}
	return strings.Join(out, " ")
}
