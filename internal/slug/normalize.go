package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)
)

// Normalize converts free text into a candidate name.
//
// Accents are stripped (NFD decomposition, combining marks removed), the result
// is lowercased, every run of characters outside [a-z0-9] becomes a single
// hyphen, and leading/trailing hyphens are trimmed:
//
//	Normalize("Crème Brûlée!")  // "creme-brulee"
//	Normalize("  Hello, World") // "hello-world"
//
// Runs of hyphens collapse, so the default "--" separator never appears inside
// a normalized name.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	folded = nonAlphanumeric.ReplaceAllString(folded, "-")
	return strings.Trim(folded, "-")
}

// OccursInName reports whether sep can appear inside a Normalize result.
// Normalized names are runs of [a-z0-9] joined by single hyphens, so any
// non-empty sep built from those characters without a "--" can.
func OccursInName(sep string) bool {
	if sep == "" || strings.Contains(sep, "--") {
		return false
	}
	for i := 0; i < len(sep); i++ {
		c := sep[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' {
			return false
		}
	}
	return true
}
