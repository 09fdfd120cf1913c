package api

import (
	"bytes"
	"embed"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/canalenergetico/canal-web/internal/auth"
	"github.com/canalenergetico/canal-web/internal/config"
	"github.com/canalenergetico/canal-web/internal/content"
	"github.com/canalenergetico/canal-web/internal/store"
)

//go:embed templates/*.html static/robots.txt
var assets embed.FS

const flashCookie = "canal_flash"

var pageNames = []string{
	"index",
	"articulos",
	"post",
	"make-post",
	"articulos_por_tag",
	"buscar_por_tags",
	"nosotros",
	"proximamente",
	"privacidad",
	"mercados",
	"normativa",
	"registrarse",
	"iniciar_sesion",
	"forgot_password",
	"reset_password",
	"error",
}

type renderer struct {
	site  config.SiteConfig
	pages map[string]*template.Template
}

func newRenderer(site config.SiteConfig) (*renderer, error) {
	funcs := template.FuncMap{
		"tagColor": content.TagColor,
		"tagSlug":  content.TagSlug,
		"excerpt":  content.Excerpt,
		"date": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02/01/2006")
		},
		"isoDate": func(t time.Time) string { return t.Format("2006-01-02") },
		// Article bodies are sanitized on write.
		"trustedHTML": func(s string) template.HTML { return template.HTML(s) }, //nolint:gosec // sanitized by bluemonday
	}
	r := &renderer{site: site, pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(assets, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

func robotsTxt() ([]byte, error) {
	return fs.ReadFile(assets, "static/robots.txt")
}

type flashMessage struct {
	Category string `json:"c"`
	Message  string `json:"m"`
}

// pageData is the model every template receives.
type pageData struct {
	Title   string
	Site    config.SiteConfig
	User    *store.User
	CanEdit bool
	CSRF    string
	Path    string
	Flashes []flashMessage
	Facts   []content.Fact
	Recent  []store.Article
	Data    any
}

// render executes a page with the layout and writes it with status.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	s.renderPage(w, r, status, name, title, data)
}

// renderPage is render with extra flash messages for this response only.
func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, name, title string, data any, extra ...flashMessage) {
	t, ok := s.pages.pages[name]
	if !ok {
		s.logger.Error("Unknown template", zap.String("name", name))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	user := CurrentUser(r.Context())
	pd := pageData{
		Title:   title,
		Site:    s.pages.site,
		User:    user,
		CanEdit: s.svc.Authz != nil && s.svc.Authz.Allowed(user, auth.ObjArticles, auth.ActWrite),
		CSRF:    csrfToken(r.Context()),
		Path:    r.URL.Path,
		Flashes: append(s.takeFlashes(w, r), extra...),
		Data:    data,
	}
	if s.svc.Content != nil {
		pd.Facts = s.svc.Content.Facts()
		recent, err := s.svc.Content.Recent(r.Context())
		if err != nil {
			s.logger.Warn("Sidebar articles unavailable", zap.Error(err))
		}
		pd.Recent = recent
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, pd); err != nil {
		s.logger.Error("Template execution failed", zap.String("name", name), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Debug("Write page failed", zap.Error(err))
	}
}

type errorPage struct {
	Status  int
	Message string
}

var errorMessages = map[int]string{
	http.StatusForbidden:           "No tienes permiso para acceder a esta página.",
	http.StatusNotFound:            "La página que buscas no existe.",
	http.StatusTooManyRequests:     "Demasiados intentos. Espera un momento y vuelve a intentarlo.",
	http.StatusInternalServerError: "Ha ocurrido un error inesperado. Inténtalo más tarde.",
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int) {
	msg, ok := errorMessages[status]
	if !ok {
		msg = http.StatusText(status)
	}
	s.render(w, r, status, "error", http.StatusText(status), errorPage{Status: status, Message: msg})
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	s.renderError(w, r, http.StatusNotFound)
}

// serverError logs err and renders the 500 page.
func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("Request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", RequestID(r.Context())),
		zap.Error(err),
	)
	s.renderError(w, r, http.StatusInternalServerError)
}

func (s *Server) tooManyRequests(w http.ResponseWriter, r *http.Request) {
	s.renderError(w, r, http.StatusTooManyRequests)
}

// flash queues messages for the next rendered page.
func (s *Server) flash(w http.ResponseWriter, category, message string) {
	s.flashes(w, flashMessage{Category: category, Message: message})
}

func (s *Server) flashes(w http.ResponseWriter, msgs ...flashMessage) {
	value, err := encodeFlashes(msgs)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		Secure:   s.cfg.Auth.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func encodeFlashes(msgs []flashMessage) (string, error) {
	raw, err := json.Marshal(msgs)
	if err != nil {
		return "", fmt.Errorf("encode flashes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// takeFlashes reads and clears the pending flash messages.
func (s *Server) takeFlashes(w http.ResponseWriter, r *http.Request) []flashMessage {
	c, err := r.Cookie(flashCookie)
	if err != nil || c.Value == "" {
		return nil
	}
	s.clearCookie(w, flashCookie)
	raw, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return nil
	}
	var msgs []flashMessage
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil
	}
	return msgs
}

func (s *Server) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.Auth.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		zap.L().Error("Write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// pageNumber parses the page query parameter, defaulting to 1.
func pageNumber(r *http.Request) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("page")))
	if err != nil || n < 1 {
		return 1
	}
	return n
}
