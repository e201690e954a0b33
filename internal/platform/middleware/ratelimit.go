package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// OnLimit renders the rejection. Defaults to a 429 with Retry-After.
	OnLimit func(c echo.Context) error
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPLimiter keeps one token bucket per client IP.
type IPLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rps      rate.Limit
	burst    int
	idle     time.Duration
}

func NewIPLimiter(rps float64, burst int) *IPLimiter {
	return &IPLimiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
		idle:     10 * time.Minute,
	}
}

// Allow consumes a token for key.
func (l *IPLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	l.sweep(now)
	return v.limiter.Allow()
}

// sweep drops visitors idle longer than l.idle. Caller holds l.mu.
func (l *IPLimiter) sweep(now time.Time) {
	if len(l.visitors) < 1024 {
		return
	}
	for k, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.idle {
			delete(l.visitors, k)
		}
	}
}

// RateLimit limits requests per client IP. Only apply it to the routes
// that need it (login, registration).
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	limiter := NewIPLimiter(cfg.RequestsPerSecond, cfg.BurstSize)
	retryAfter := 1
	if cfg.RequestsPerSecond > 0 && cfg.RequestsPerSecond < 1 {
		retryAfter = int(1/cfg.RequestsPerSecond) + 1
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if limiter.Allow(c.RealIP()) {
				return next(c)
			}
			c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
			if cfg.OnLimit != nil {
				return cfg.OnLimit(c)
			}
			return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests, try again later")
		}
	}
}
