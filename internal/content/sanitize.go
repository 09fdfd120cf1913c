package content

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	articlePolicy = newArticlePolicy()
	stripPolicy   = bluemonday.StrictPolicy()
)

func newArticlePolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").OnElements("p", "span", "div", "figure", "img", "table")
	p.AllowElements("figure", "figcaption")
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

// SanitizeHTML keeps the formatting editors produce and drops scripts and handlers.
func SanitizeHTML(s string) string {
	return articlePolicy.Sanitize(s)
}

// PlainText strips every tag and collapses whitespace, for excerpts and meta tags.
func PlainText(s string) string {
	text := html.UnescapeString(stripPolicy.Sanitize(s))
	return strings.Join(strings.Fields(text), " ")
}

// Excerpt returns PlainText cut to at most n runes on a word boundary.
func Excerpt(s string, n int) string {
	text := []rune(PlainText(s))
	if len(text) <= n {
		return string(text)
	}
	cut := string(text[:n])
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return cut + "…"
}
