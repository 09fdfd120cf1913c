package content

import (
	"strings"
	"unicode/utf8"

	"github.com/canalenergetico/canal-web/internal/slug"
)

// Column widths of tags.nombre and tags.slug.
const (
	MaxTagNameLen = 50
	MaxTagSlugLen = 60
)

// TagSlug derives the unique key of a tag name. Compatibility forms such as
// "ﬃ" expand under NFKD, so the result is capped separately from the name.
func TagSlug(name string) string {
	key := slug.Make(name)
	if len(key) > MaxTagSlugLen {
		key = strings.TrimRight(key[:MaxTagSlugLen], "-")
	}
	return key
}

// ParseTags splits a comma separated list, trims each entry and keeps the
// first spelling of every distinct slug, preserving input order.
func ParseTags(csv string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, part := range strings.Split(csv, ",") {
		name := truncateRunes(strings.TrimSpace(part), MaxTagNameLen)
		if name == "" {
			continue
		}
		key := TagSlug(name)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}
	return out
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}

var tagColorRules = []struct {
	color    string
	keywords []string
}{
	{"danger", []string{"combustible", "gas", "oil", "petróleo", "petroleo", "diesel", "carbón", "carbon"}},
	{"success", []string{"renovable", "solar", "eólica", "hidrógeno", "hidrogeno", "geotérmica", "geotermica",
		"biomasa", "hidráulica", "hidraulica"}},
	{"primary", []string{"sistema eléctrico", "red eléctrica", "transmisión", "distribución", "grid"}},
	{"info", []string{"innovación", "innovacion"}},
	{"primary", []string{"movilidad", "transporte"}},
	{"success", []string{"sostenibilidad", "sostenible"}},
}

// TagColor maps a tag name to a Bootstrap badge color by topic keyword.
func TagColor(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return "dark"
	}
	for _, rule := range tagColorRules {
		for _, kw := range rule.keywords {
			if strings.Contains(n, kw) {
				return rule.color
			}
		}
	}
	return "dark"
}
