// Package server middleware for rate limiting and CORS
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// rateLimiterConfig holds rate limiting configuration
type rateLimiterConfig struct {
	enabled        bool
	requestsPerIP  int            // Max requests per IP per window
	window         time.Duration  // Time window for rate limiting
	trustedProxies []netip.Prefix // Peers whose X-Forwarded-For header is believed (TRUSTED_PROXIES)
}

// loadRateLimiterConfig reads rate limiter configuration from environment
func loadRateLimiterConfig() *rateLimiterConfig {
	enabled := os.Getenv("RATE_LIMIT_ENABLED") != "0" // Enabled by default
	requestsPerIP := 30                                 // Default: 30 requests per window
	window := 1 * time.Minute                           // Default: 1 minute window

	if v := os.Getenv("RATE_LIMIT_REQUESTS_PER_IP"); v != "" {
		if n := parseInt(v, requestsPerIP); n > 0 {
			requestsPerIP = n
		}
	}

	if v := os.Getenv("RATE_LIMIT_WINDOW_SECONDS"); v != "" {
		if n := parseInt(v, 60); n > 0 {
			window = time.Duration(n) * time.Second
		}
	}

	return &rateLimiterConfig{
		enabled:        enabled,
		requestsPerIP:  requestsPerIP,
		window:         window,
		trustedProxies: parsePrefixes(os.Getenv("TRUSTED_PROXIES")),
	}
}

// parsePrefixes reads a comma separated list of CIDRs or bare addresses.
// Invalid entries are logged and skipped.
func parsePrefixes(list string) []netip.Prefix {
	var out []netip.Prefix
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if p, err := netip.ParsePrefix(item); err == nil {
			out = append(out, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(item); err == nil {
			out = append(out, netip.PrefixFrom(a, a.BitLen()))
			continue
		}
		slog.Warn("ignoring invalid TRUSTED_PROXIES entry", slog.String("value", item))
	}
	return out
}

func (c *rateLimiterConfig) trusts(a netip.Addr) bool {
	a = a.Unmap()
	return slices.ContainsFunc(c.trustedProxies, func(p netip.Prefix) bool { return p.Contains(a) })
}

// ipRateLimiter hands out one token bucket per client IP. A bucket refills
// requestsPerIP tokens per window and allows a full window's burst.
type ipRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	cfg      *rateLimiterConfig
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newIPRateLimiter creates a new rate limiter
func newIPRateLimiter(ctx context.Context, cfg *rateLimiterConfig) *ipRateLimiter {
	limiter := &ipRateLimiter{
		visitors: make(map[string]*visitor),
		cfg:      cfg,
	}

	// Start cleanup goroutine to remove stale entries
	go limiter.cleanupLoop(ctx)

	return limiter
}

// cleanupLoop periodically removes stale visitor entries
func (rl *ipRateLimiter) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-ctx.Done():
			return
		}
	}
}

// cleanup removes visitors idle for more than two windows; their bucket
// would be full again anyway.
func (rl *ipRateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for ip, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.cfg.window*2 {
			delete(rl.visitors, ip)
		}
	}
}

// allow checks if a request from the given IP should be allowed
func (rl *ipRateLimiter) allow(ip string) bool {
	if !rl.cfg.enabled {
		return true
	}

	rl.mu.Lock()
	v, exists := rl.visitors[ip]
	if !exists {
		every := rl.cfg.window / time.Duration(rl.cfg.requestsPerIP)
		v = &visitor{limiter: rate.NewLimiter(rate.Every(every), rl.cfg.requestsPerIP)}
		rl.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	rl.mu.Unlock()

	return v.limiter.Allow()
}

// clientIP returns the address the limiter keys on. X-Forwarded-For is only
// consulted when the direct peer is a trusted proxy; it is then walked from
// the right, skipping trusted hops, so a client cannot pick its own key by
// prepending entries.
func (c *rateLimiterConfig) clientIP(r *http.Request) string {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	peer, err := netip.ParseAddr(host)
	if err != nil || !c.trusts(peer) {
		return host
	}

	candidate := peer.Unmap().String()
	hops := r.Header.Values("X-Forwarded-For")
	var all []string
	for _, h := range hops {
		all = append(all, strings.Split(h, ",")...)
	}
	for i := len(all) - 1; i >= 0; i-- {
		hop, err := netip.ParseAddr(strings.TrimSpace(all[i]))
		if err != nil {
			break
		}
		candidate = hop.Unmap().String()
		if !c.trusts(hop) {
			break
		}
	}
	return candidate
}

// rateLimitMiddleware applies rate limiting to mutating endpoints
func rateLimitMiddleware(next http.Handler, limiter *ipRateLimiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := limiter.cfg.clientIP(r)
		if !limiter.allow(ip) {
			w.Header().Set("Retry-After", strconv.Itoa(int(limiter.cfg.window.Seconds())))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			slog.Warn("rate limit exceeded", slog.String("ip", ip), slog.String("path", r.URL.Path))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// parseInt safely parses a string to int, returning default on error
func parseInt(s string, defaultVal int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return defaultVal
	}
	return n
}

// corsConfig holds CORS configuration. Exact origins are compared verbatim;
// "*.example.com" entries match any subdomain host of example.com.
type corsConfig struct {
	origins        []string
	wildcardSuffix []string // ".example.com" for "*.example.com"
	permissive     bool     // dev mode: any origin
}

// loadCORSConfig reads ENV, CORS_PERMISSIVE and CORS_ALLOWED_ORIGINS.
func loadCORSConfig() *corsConfig {
	mode := strings.ToLower(os.Getenv("ENV"))
	cfg := &corsConfig{permissive: mode == "" || mode == "dev" || mode == "development"}
	if v := os.Getenv("CORS_PERMISSIVE"); v != "" {
		cfg.permissive = v == "1" || strings.EqualFold(v, "true")
	}

	for _, origin := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		switch {
		case origin == "":
		case strings.HasPrefix(origin, "*."):
			cfg.wildcardSuffix = append(cfg.wildcardSuffix, strings.ToLower(origin[1:]))
		default:
			cfg.origins = append(cfg.origins, origin)
		}
	}

	if !cfg.permissive && len(cfg.origins) == 0 && len(cfg.wildcardSuffix) == 0 {
		slog.Warn("CORS restricted mode enabled but no CORS_ALLOWED_ORIGINS configured - all CORS requests will be blocked")
	}
	return cfg
}

const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Content-Type, X-Correlation-ID"
	corsMaxAge       = "600"
)

// withCORSConfig wraps a handler with CORS headers based on configuration
func withCORSConfig(next http.Handler, cfg *corsConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		switch origin := r.Header.Get("Origin"); {
		case cfg.permissive:
			h.Set("Access-Control-Allow-Origin", "*")
		case origin != "" && cfg.allows(origin):
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
		}
		if h.Get("Access-Control-Allow-Origin") != "" {
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Max-Age", corsMaxAge)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allows reports whether origin may call the API in restricted mode.
func (c *corsConfig) allows(origin string) bool {
	if slices.Contains(c.origins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return slices.ContainsFunc(c.wildcardSuffix, func(suffix string) bool {
		return strings.HasSuffix(host, suffix) && len(host) > len(suffix)
	})
}
