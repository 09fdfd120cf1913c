// Package slug builds URL-safe identifiers from Spanish titles.
package slug

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxBaseLen bounds the base slug so numeric suffixes still fit the column.
const MaxBaseLen = 150

// Make lowercases s, strips accents and joins alphanumeric runs with "-".
// "Energía Eólica: ¿Qué sigue?" becomes "energia-eolica-que-sigue".
func Make(s string) string {
	out := strings.Join(Words(s), "-")
	if len(out) > MaxBaseLen {
		out = strings.TrimRight(out[:MaxBaseLen], "-")
	}
	return out
}

// Words returns the lower-case, accent-free alphanumeric words of s.
func Words(s string) []string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.FieldsFunc(strings.ToLower(folded), func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9')
	})
}

// MakeOr returns Make(s), or fallback when nothing is left.
func MakeOr(s, fallback string) string {
	if out := Make(s); out != "" {
		return out
	}
	return fallback
}

// ExistsFunc reports whether a candidate slug is already taken.
type ExistsFunc func(ctx context.Context, candidate string) (bool, error)

// Unique returns base if free, otherwise the first free base-2, base-3, ...
func Unique(ctx context.Context, base string, exists ExistsFunc) (string, error) {
	candidate := base
	for n := 2; ; n++ {
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check slug %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
}
