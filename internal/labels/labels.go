// Package labels normalizes identity names so that differently spelled folder names
// of the same person ("Jiří", "jiri", "JIRI") are recognised as one identity.
package labels

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

// Normalize returns the comparison key of an identity name
// (lowercase, no diacritics, dashes and underscores as spaces, single spaced).
func Normalize(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}

// Conflicts returns the entries of added whose normalized form already appears in
// existing or earlier in added. The result keeps the order of added.
func Conflicts(existing, added []string) []string {
	seen := make(map[string]bool, len(existing)+len(added))
	for _, name := range existing {
		seen[Normalize(name)] = true
	}

	var conflicts []string
	for _, name := range added {
		key := Normalize(name)
		if seen[key] {
			conflicts = append(conflicts, name)
			continue
		}
		seen[key] = true
	}
	return conflicts
}
