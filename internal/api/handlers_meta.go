package api

import (
	"encoding/xml"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/canalenergetico/canal-web/internal/store"
)

const (
	sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"
	newsNS    = "http://www.google.com/schemas/sitemap-news/0.9"
	newsAge   = 48 * time.Hour
)

// sitemapPages are the public pages that take no parameters.
var sitemapPages = []string{
	"/",
	"/articulos",
	"/buscar-por-tags",
	"/sobre-nosotros",
	"/proximamente",
	"/privacidad",
	"/mercados",
	"/normativa",
	"/registrarse",
	"/login",
	"/forgot-password",
}

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	NS      string       `xml:"xmlns,attr"`
	NewsNS  string       `xml:"xmlns:news,attr,omitempty"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc        string    `xml:"loc"`
	LastMod    string    `xml:"lastmod,omitempty"`
	ChangeFreq string    `xml:"changefreq,omitempty"`
	Priority   string    `xml:"priority,omitempty"`
	News       *newsItem `xml:"news:news,omitempty"`
}

type newsItem struct {
	Publication newsPublication `xml:"news:publication"`
	Date        string          `xml:"news:publication_date"`
	Title       string          `xml:"news:title"`
}

type newsPublication struct {
	Name     string `xml:"news:name"`
	Language string `xml:"news:language"`
}

func (s *Server) robots(w http.ResponseWriter, r *http.Request) {
	body, err := robotsTxt()
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(body)
}

func (s *Server) sitemap(w http.ResponseWriter, r *http.Request) {
	articles, err := s.svc.Store.ListRecentArticles(r.Context(), 0)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	base := s.origin(r)
	today := s.now().Format("2006-01-02")
	set := urlSet{NS: sitemapNS, URLs: make([]sitemapURL, 0, len(sitemapPages)+len(articles))}
	for _, p := range sitemapPages {
		set.URLs = append(set.URLs, sitemapURL{Loc: base + p, LastMod: today, ChangeFreq: "weekly", Priority: "0.6"})
	}
	for _, a := range articles {
		last := today
		if !a.Date.IsZero() {
			last = a.Date.Format("2006-01-02")
		}
		set.URLs = append(set.URLs, sitemapURL{Loc: articleURL(base, a), LastMod: last, ChangeFreq: "weekly", Priority: "0.8"})
	}
	s.writeXML(w, set)
}

func (s *Server) newsSitemap(w http.ResponseWriter, r *http.Request) {
	articles, err := s.svc.Store.ListRecentArticles(r.Context(), 0)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	base := s.origin(r)
	cutoff := s.now().Add(-newsAge)
	set := urlSet{NS: sitemapNS, NewsNS: newsNS, URLs: []sitemapURL{}}
	for _, a := range newsArticles(articles, cutoff) {
		set.URLs = append(set.URLs, sitemapURL{
			Loc: articleURL(base, a),
			News: &newsItem{
				Publication: newsPublication{Name: s.cfg.Site.Name, Language: "es"},
				Date:        noon(a.Date).Format("2006-01-02T15:04:05Z"),
				Title:       a.Title,
			},
		})
	}
	s.writeXML(w, set)
}

// newsArticles keeps articles published since cutoff (dated at noon UTC).
// When none qualify, the most recent dated article is returned alone.
func newsArticles(articles []store.Article, cutoff time.Time) []store.Article {
	var out []store.Article
	var newest *store.Article
	for i := range articles {
		a := articles[i]
		if a.Date.IsZero() {
			continue
		}
		if newest == nil {
			newest = &articles[i]
		}
		if !noon(a.Date).Before(cutoff) {
			out = append(out, a)
		}
	}
	if len(out) == 0 && newest != nil {
		out = append(out, *newest)
	}
	return out
}

func noon(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 12, 0, 0, 0, time.UTC)
}

func articleURL(base string, a store.Article) string {
	return base + "/articulos/" + a.Slug
}

func (s *Server) writeXML(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	_, _ = w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		s.logger.Warn("Failed to encode sitemap", zap.Error(err))
	}
}
