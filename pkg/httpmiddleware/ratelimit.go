package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures a sliding window limiter.
type RateLimitConfig struct {
	// Max requests per Window for a single key.
	Max    int
	Window time.Duration
	// KeyFunc derives the limiter key; the client IP by default.
	KeyFunc func(*http.Request) string
	// Match restricts the limiter to some requests. Others pass untouched.
	Match func(*http.Request) bool
}

// window holds the counts of the current and previous fixed windows. The
// effective count weights the previous window by its remaining overlap.
type window struct {
	start time.Time
	curr  float64
	prev  float64
}

type limiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu   sync.Mutex
	keys map[string]*window
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &limiter{cfg: cfg, now: time.Now, keys: make(map[string]*window)}
}

// take records one request for key, returning whether it is admitted, the
// number of requests left and when the current window ends.
func (l *limiter) take(key string) (ok bool, remaining int, reset time.Time) {
	now := l.now()
	size := l.cfg.Window

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.keys[key]
	if w == nil {
		w = &window{start: now.Truncate(size)}
		l.keys[key] = w
	}
	switch elapsed := now.Sub(w.start); {
	case elapsed >= 2*size:
		*w = window{start: now.Truncate(size)}
	case elapsed >= size:
		*w = window{start: w.start.Add(size), prev: w.curr}
	}

	overlap := 1 - float64(now.Sub(w.start))/float64(size)
	count := w.prev*max(overlap, 0) + w.curr
	reset = w.start.Add(size)
	if count >= float64(l.cfg.Max) {
		return false, 0, reset
	}
	w.curr++
	return true, max(int(float64(l.cfg.Max)-count-1), 0), reset
}

// evict drops keys idle for more than two windows.
func (l *limiter) evict() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.keys {
		if now.Sub(w.start) >= 2*l.cfg.Window {
			delete(l.keys, key)
		}
	}
}

// RateLimit limits requests per key. Rejected requests get 429 with a
// Retry-After header, and every limited response carries X-RateLimit-*
// headers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newLimiter(cfg).middleware
}

// RateLimitWithCleanup is RateLimit with a goroutine evicting idle keys
// until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go func() {
		ticker := time.NewTicker(2 * l.cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.evict()
			}
		}
	}()
	return l.middleware
}

func (l *limiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.cfg.Match != nil && !l.cfg.Match(r) {
			next.ServeHTTP(w, r)
			return
		}

		ok, remaining, reset := l.take(l.cfg.KeyFunc(r))
		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Max))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
		if !ok {
			wait := max(reset.Sub(l.now()), 0)
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			writeStatus(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// remote address host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// MatchRoute matches requests with the given method and exact path.
func MatchRoute(method, path string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		return r.Method == method && r.URL.Path == path
	}
}
