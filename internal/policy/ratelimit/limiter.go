// Package ratelimit implements keyed token bucket limiters used to throttle
// outbound API calls per host and sensitive form posts per client address.
package ratelimit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/canalenergetico/canal-web/internal/metrics"
)

// maxIdleKeys is the map size at which idle entries are pruned, at most
// once per idle TTL.
const maxIdleKeys = 10000

// Limiter manages one token bucket per key.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*entry
	defaultRate  rate.Limit
	defaultBurst int
	idleTTL      time.Duration
	lastPrune    time.Time
	now          func() time.Time
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Config holds rate limiter configuration.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
	// IdleTTL drops buckets unused for this long once the map grows large.
	IdleTTL time.Duration
}

// New creates a new Limiter. A non-positive rate disables limiting.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.DefaultRPS)
	if cfg.DefaultRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	idle := cfg.IdleTTL
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &Limiter{
		limiters:     make(map[string]*entry),
		defaultRate:  r,
		defaultBurst: burst,
		idleTTL:      idle,
		now:          time.Now,
	}
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	// A full map of active keys would otherwise be rescanned on every call.
	if len(l.limiters) >= maxIdleKeys && now.Sub(l.lastPrune) >= l.idleTTL {
		l.lastPrune = now
		for k, e := range l.limiters {
			if now.Sub(e.lastSeen) > l.idleTTL {
				delete(l.limiters, k)
			}
		}
	}
	e, ok := l.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.defaultRate, l.defaultBurst)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// Wait blocks until a token is available for key, respecting the context.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if err := l.get(key).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// Allow consumes a token for key without blocking.
func (l *Limiter) Allow(key string) bool {
	return l.get(key).Allow()
}

// Len reports how many keys currently hold a bucket.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// HostKey returns the host of rawURL, or "unknown".
func HostKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}

// ClientKey returns the client address of r without its port. It relies on
// RealIP running first when the site sits behind a proxy.
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware throttles unsafe requests per client address. Safe methods pass
// through untouched. Rejected requests are served by onLimit, or a bare 429.
func (l *Limiter) Middleware(route string, onLimit http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			if l.Allow(route + "|" + ClientKey(r)) {
				next.ServeHTTP(w, r)
				return
			}
			metrics.ObserveRateLimited(route)
			w.Header().Set("Retry-After", strconv.Itoa(l.retryAfterSeconds()))
			if onLimit != nil {
				onLimit.ServeHTTP(w, r)
				return
			}
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		})
	}
}

func (l *Limiter) retryAfterSeconds() int {
	if l.defaultRate == rate.Inf || l.defaultRate <= 0 {
		return 1
	}
	secs := int(1/float64(l.defaultRate) + 0.999)
	if secs < 1 {
		secs = 1
	}
	return secs
}
