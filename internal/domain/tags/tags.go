// Package tags computes topic identities: a hash over a set of tags that
// ignores tag order, case, repeats and accents.
package tags

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Letters that carry no combining mark under NFD and so survive decomposition.
var fold = map[rune]string{
	'Æ': "AE", 'æ': "AE",
	'Œ': "OE", 'œ': "OE",
	'Ø': "O", 'ø': "O",
	'Đ': "D", 'đ': "D",
	'Ð': "D", 'ð': "D",
	'Ł': "L", 'ł': "L",
	'Þ': "TH", 'þ': "TH",
	'ß': "SS", 'ẞ': "SS",
	'Ħ': "H", 'ħ': "H",
	'Ŧ': "T", 'ŧ': "T",
	'Ŀ': "L", 'ŀ': "L",
	'ı': "I",
}

// Normalize returns the canonical form of a single tag: accents stripped,
// non alphanumerics dropped, upper case ASCII.
func Normalize(tag string) string {
	stripped, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn))),
		strings.TrimSpace(tag),
	)
	if err != nil {
		stripped = tag
	}

	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		if s, ok := fold[r]; ok {
			b.WriteString(s)
			continue
		}
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 'a' + 'A')
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Set normalizes tags and returns the distinct non-empty results, sorted.
func Set(tags ...string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		n := Normalize(t)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Hash returns the hex SHA-256 of the sorted, concatenated tag set.
func Hash(tags ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(Set(tags...), "")))
	return hex.EncodeToString(sum[:])
}

// Split breaks a free-form tag string on whitespace and commas.
func Split(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}

// FromString hashes the tags found in s.
func FromString(s string) string {
	return Hash(Split(s)...)
}
