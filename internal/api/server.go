package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/canalenergetico/canal-web/internal/auth"
	"github.com/canalenergetico/canal-web/internal/config"
	"github.com/canalenergetico/canal-web/internal/content"
	"github.com/canalenergetico/canal-web/internal/logging"
	"github.com/canalenergetico/canal-web/internal/mail"
	"github.com/canalenergetico/canal-web/internal/markets"
	"github.com/canalenergetico/canal-web/internal/metrics"
	"github.com/canalenergetico/canal-web/internal/policy/ratelimit"
	"github.com/canalenergetico/canal-web/internal/regulations"
	"github.com/canalenergetico/canal-web/internal/store"
)

// Services are the collaborators the handlers call into.
type Services struct {
	Store       store.Store
	Content     *content.Service
	Auth        *auth.Service
	Authz       *auth.Authorizer
	Markets     *markets.Service
	Regulations *regulations.Service
	Mailer      mail.Sender
	// Media serves uploaded images under /media when the blob store is local.
	Media http.Handler
}

// Server wires HTTP handlers to the site services.
type Server struct {
	router  chi.Router
	svc     Services
	cfg     config.Config
	pages   *renderer
	limiter *ratelimit.Limiter
	logger  *zap.Logger
	now     func() time.Time
}

// NewServer constructs a Server with middleware and routes.
func NewServer(svc Services, cfg config.Config, logger *zap.Logger) (*Server, error) {
	logger = logging.OrNop(logger).Named("http")
	pages, err := newRenderer(cfg.Site)
	if err != nil {
		return nil, err
	}
	s := &Server{
		svc:   svc,
		cfg:   cfg,
		pages: pages,
		limiter: ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.RateLimit.RPS,
			DefaultBurst: cfg.RateLimit.Burst,
			IdleTTL:      10 * time.Minute,
		}),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	if cfg.Server.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(middleware.Compress(5))
	if d := cfg.RequestTimeout(); d > 0 {
		r.Use(timeoutMiddleware(d))
	}
	r.Use(s.sessionMiddleware)
	r.Use(s.csrfMiddleware)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.notFound(w, r)
	})

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/robots.txt", s.robots)
	r.Get("/sitemap.xml", s.sitemap)
	r.Get("/news-sitemap.xml", s.newsSitemap)
	if svc.Media != nil {
		r.Handle("/media/*", http.StripPrefix("/media", svc.Media))
	}

	r.Get("/", s.home)
	r.Get("/sobre-nosotros", s.staticPage("nosotros", "Sobre nosotros"))
	r.Get("/proximamente", s.staticPage("proximamente", "Próximamente"))
	r.Get("/privacidad", s.staticPage("privacidad", "Privacidad"))

	r.Get("/articulos", s.listArticles)
	r.Get("/articulos/{slug}", s.showArticle)
	r.Post("/articulos/{slug}", s.postComment)
	r.Get("/tags/{slug}", s.articlesByTag)
	r.Get("/buscar-por-tags", s.searchByTags)
	r.Group(func(r chi.Router) {
		r.Use(s.requirePermission(auth.ObjArticles, auth.ActWrite))
		r.Get("/new-post", s.newArticleForm)
		r.Post("/new-post", s.createArticle)
		r.Get("/edit-post/{slug}", s.editArticleForm)
		r.Post("/edit-post/{slug}", s.updateArticle)
		r.Post("/delete-post/{slug}", s.deleteArticle)
	})
	r.Group(func(r chi.Router) {
		r.Use(s.requireLogin)
		r.Post("/comentarios/{id}/edit", s.editComment)
		r.Post("/comentarios/{id}/delete", s.deleteComment)
		r.Post("/resend-verification", s.resendVerification)
	})

	r.Get("/mercados", s.marketsPage)
	r.Get("/mercados/dashboard.json", s.marketsDashboard)
	r.With(s.requirePermission(auth.ObjMarketsNote, auth.ActWrite)).
		Post("/admin/markets-note", s.updateMarketsNote)

	r.Get("/normativa", s.regulationsPage)
	r.Get("/normativa/api/list", s.regulationsJSON)
	r.With(s.limiter.Middleware("normativa_sugerir", nil)).
		Post("/normativa/sugerir", s.suggestRegulation)
	r.With(s.requirePermission(auth.ObjRegulations, auth.ActWrite)).
		Post("/normativa/admin/create", s.createRegulation)

	r.Group(func(r chi.Router) {
		r.Use(s.limiter.Middleware("auth", http.HandlerFunc(s.tooManyRequests)))
		r.Get("/registrarse", s.registerForm)
		r.Post("/registrarse", s.register)
		r.Get("/login", s.loginForm)
		r.Post("/login", s.login)
		r.Get("/forgot-password", s.forgotPasswordForm)
		r.Post("/forgot-password", s.forgotPassword)
		r.Get("/reset-password/{token}", s.resetPasswordForm)
		r.Post("/reset-password/{token}", s.resetPassword)
	})
	r.Get("/logout", s.logout)
	r.Get("/verify-email/{token}", s.verifyEmail)
	r.With(s.requirePermission(auth.ObjMail, auth.ActTest)).
		Get("/test-mail", s.testMail)

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.svc.Store.Ping(ctx); err != nil {
		s.logger.Warn("Readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// origin is the external scheme and host used for absolute links.
func (s *Server) origin(r *http.Request) string {
	if s.cfg.Server.BaseURL != "" {
		return s.cfg.Server.BaseURL
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
