package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/sunup/pkg/auth"
	"github.com/platinummonkey/sunup/pkg/config"
	"github.com/platinummonkey/sunup/pkg/httputil"
	"github.com/platinummonkey/sunup/pkg/observability"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
	// BurstSize allows temporary bursts above the rate
	BurstSize int
}

// DefaultRateLimitConfig returns the anonymous limit
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 60,
		WindowDuration:    time.Minute,
		BurstSize:         10,
	}
}

// Decision is the outcome of one rate limit check
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Duration
}

// Limiter decides whether a request keyed by key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// RateLimiter implements Limiter in process with a token bucket per key
type RateLimiter struct {
	config  *RateLimitConfig
	buckets map[string]*bucket
	mu      sync.RWMutex
}

type bucket struct {
	tokens     int
	lastUpdate time.Time
	mu         sync.Mutex
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}

	return &RateLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
	}
}

func (rl *RateLimiter) capacity() int {
	return rl.config.RequestsPerWindow + rl.config.BurstSize
}

// Allow takes a token from the bucket for key
func (rl *RateLimiter) Allow(_ context.Context, key string) (Decision, error) {
	rl.mu.Lock()
	b, exists := rl.buckets[key]
	if !exists {
		b = &bucket{tokens: rl.capacity(), lastUpdate: time.Now()}
		rl.buckets[key] = b
	}
	rl.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastUpdate)

	tokensToAdd := int(elapsed.Seconds() * float64(rl.config.RequestsPerWindow) / rl.config.WindowDuration.Seconds())
	if tokensToAdd > 0 {
		b.tokens += tokensToAdd
		if b.tokens > rl.capacity() {
			b.tokens = rl.capacity()
		}
		b.lastUpdate = now
	}

	d := Decision{Limit: rl.config.RequestsPerWindow, Reset: rl.config.WindowDuration}
	if b.tokens > 0 {
		b.tokens--
		d.Allowed = true
	}
	d.Remaining = b.tokens
	return d, nil
}

// Remaining returns the number of remaining tokens for a key
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.RLock()
	b, exists := rl.buckets[key]
	rl.mu.RUnlock()

	if !exists {
		return rl.capacity()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}

// Cleanup removes buckets idle for more than two windows
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for key, b := range rl.buckets {
		b.mu.Lock()
		if now.Sub(b.lastUpdate) > rl.config.WindowDuration*2 {
			delete(rl.buckets, key)
		}
		b.mu.Unlock()
	}
}

// StartCleanup runs Cleanup every window until ctx is done
func (rl *RateLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.config.WindowDuration)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RateLimitMiddleware limits identified callers by subject and anonymous
// callers by client IP
type RateLimitMiddleware struct {
	identified Limiter
	anonymous  Limiter
	failOpen   bool
}

// NewRateLimitMiddleware creates a rate limit middleware. Limiter errors let
// the request through unless SetFailOpen(false) is called.
func NewRateLimitMiddleware(identified, anonymous Limiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		identified: identified,
		anonymous:  anonymous,
		failOpen:   true,
	}
}

// SetFailOpen controls whether limiter errors allow (true) or refuse requests
func (m *RateLimitMiddleware) SetFailOpen(enabled bool) {
	m.failOpen = enabled
}

// Handler wraps an HTTP handler with rate limiting. It must run after
// IdentityMiddleware.
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		limiter, key := m.anonymous, "ip:"+getClientIP(r)
		if identity, ok := auth.IdentityFromContext(ctx); ok {
			limiter, key = m.identified, "sub:"+identity.Subject
		}

		d, err := limiter.Allow(ctx, key)
		if err != nil {
			observability.FromContext(ctx).WithError(err).Warn("Rate limiter unavailable")
			if m.failOpen {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteServiceUnavailable(w, "Service temporarily unavailable")
			return
		}

		setRateLimitHeaders(w, d)
		if !d.Allowed {
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", d.Reset.Seconds()))
			httputil.WriteTooManyRequests(w, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func setRateLimitHeaders(w http.ResponseWriter, d Decision) {
	remaining := d.Remaining
	if remaining < 0 {
		remaining = 0
	}
	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", d.Limit))
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
	w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(d.Reset).Unix()))
}

// LimitersFromConfig builds the identified and anonymous limiters. Redis
// backs them when client is non-nil.
func LimitersFromConfig(cfg config.RateLimitConfig, client *redis.Client) (identified, anonymous Limiter) {
	idCfg := &RateLimitConfig{RequestsPerWindow: cfg.IdentifiedRequests, WindowDuration: cfg.Window, BurstSize: cfg.Burst}
	anonCfg := &RateLimitConfig{RequestsPerWindow: cfg.AnonymousRequests, WindowDuration: cfg.Window, BurstSize: cfg.Burst}

	if client != nil {
		return NewDistributedRateLimiter(client, idCfg, "sunup:ratelimit:sub"),
			NewDistributedRateLimiter(client, anonCfg, "sunup:ratelimit:ip")
	}
	return NewRateLimiter(idCfg), NewRateLimiter(anonCfg)
}

// getClientIP returns the first X-Forwarded-For hop, X-Real-IP, or the
// remote address without its port
func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
