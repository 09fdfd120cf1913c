// Package metrics exposes Prometheus collectors for the site.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	eiaRequestsTotal           *prometheus.CounterVec
	eiaRetriesTotal            *prometheus.CounterVec
	marketRefreshTotal         *prometheus.CounterVec
	marketEvictionsTotal       *prometheus.CounterVec
	marketLastClose            *prometheus.GaugeVec
	articlesTotal              *prometheus.CounterVec
	commentsTotal              *prometheus.CounterVec
	emailsTotal                *prometheus.CounterVec
	loginsTotal                *prometheus.CounterVec
	rateLimitedTotal           *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		eiaRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canal_eia_requests_total",
				Help: "EIA API requests, labeled by request mode and outcome.",
			},
			[]string{"mode", "outcome"},
		)

		eiaRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canal_eia_retries_total",
				Help: "EIA API retries, labeled by the reason that triggered them.",
			},
			[]string{"reason"},
		)

		marketRefreshTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canal_market_refresh_total",
				Help: "Market refreshes per symbol, labeled by outcome.",
			},
			[]string{"symbol", "outcome"},
		)

		marketEvictionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canal_market_window_evictions_total",
				Help: "Daily closes evicted from the rolling window per symbol.",
			},
			[]string{"symbol"},
		)

		marketLastClose = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "canal_market_last_close",
				Help: "Most recent stored close per symbol.",
			},
			[]string{"symbol"},
		)

		articlesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canal_articles_total",
				Help: "Article writes, labeled by action.",
			},
			[]string{"action"},
		)

		commentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canal_comments_total",
				Help: "Comment writes, labeled by action.",
			},
			[]string{"action"},
		)

		emailsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canal_emails_total",
				Help: "Outgoing emails, labeled by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		loginsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canal_logins_total",
				Help: "Login attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		rateLimitedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canal_rate_limited_total",
				Help: "Requests rejected by the form rate limiter, labeled by route.",
			},
			[]string{"route"},
		)
	})
}

// SanitizeLabel lowercases a free-form label value and keeps it short and
// printable. It returns "unknown" when nothing usable is left.
func SanitizeLabel(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		if b.Len() >= 32 {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	Init()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			routePattern = rctx.RoutePattern()
		}
		if routePattern == "" {
			routePattern = "unknown"
		}
		ObserveHTTPRequest(r.Method, routePattern, ww.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveEIARequest counts one EIA API call.
func ObserveEIARequest(mode, outcome string) {
	Init()
	eiaRequestsTotal.WithLabelValues(mode, outcome).Inc()
}

// ObserveEIARetry counts one retried EIA call.
func ObserveEIARetry(reason string) {
	Init()
	eiaRetriesTotal.WithLabelValues(SanitizeLabel(reason)).Inc()
}

// ObserveMarketRefresh records the outcome of refreshing one symbol.
func ObserveMarketRefresh(symbol, outcome string) {
	Init()
	marketRefreshTotal.WithLabelValues(SanitizeLabel(symbol), outcome).Inc()
}

// ObserveMarketWindow records evictions and the newest close after an upsert.
func ObserveMarketWindow(symbol string, evicted int, lastClose float64) {
	Init()
	label := SanitizeLabel(symbol)
	if evicted > 0 {
		marketEvictionsTotal.WithLabelValues(label).Add(float64(evicted))
	}
	marketLastClose.WithLabelValues(label).Set(lastClose)
}

// ObserveArticle counts an article write.
func ObserveArticle(action string) {
	Init()
	articlesTotal.WithLabelValues(action).Inc()
}

// ObserveComment counts a comment write.
func ObserveComment(action string) {
	Init()
	commentsTotal.WithLabelValues(action).Inc()
}

// ObserveEmail counts an outgoing email.
func ObserveEmail(kind, outcome string) {
	Init()
	emailsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveLogin counts a login attempt.
func ObserveLogin(outcome string) {
	Init()
	loginsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRateLimited counts a throttled request.
func ObserveRateLimited(route string) {
	Init()
	rateLimitedTotal.WithLabelValues(route).Inc()
}
