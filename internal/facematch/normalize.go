package facematch

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// IdentityKey normalizes an identity name into the gallery's unique key:
// lowercase, no diacritics, dashes and underscores as spaces, single spaces.
// "Jan_Novák" and "jan-novak" share the key "jan novak".
func IdentityKey(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}

// DisplayName turns a dataset directory name into a human readable identity name.
func DisplayName(dir string) string {
	dir = strings.NewReplacer("_", " ").Replace(dir)
	return strings.Join(strings.Fields(dir), " ")
}
