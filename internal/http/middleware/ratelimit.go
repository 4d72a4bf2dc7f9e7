package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*visitor
	rate     rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perSecond requests per IP with the given burst.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*visitor),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		idle:     10 * time.Minute,
		now:      time.Now,
	}
}

// Allow reports whether a request from ip is within the limit. Buckets idle
// for longer than ten minutes are evicted on the way.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, v := range rl.limiters {
		if now.Sub(v.lastSeen) > rl.idle {
			delete(rl.limiters, key)
		}
	}
	v, ok := rl.limiters[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// RateLimit returns an HTTP middleware that rejects requests exceeding the
// configured rate with 429 Too Many Requests.
func RateLimit(perSecond float64, burst int) func(http.Handler) http.Handler {
	limiter := NewRateLimiter(perSecond, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := r.RemoteAddr
			// Prefer X-Real-Ip set by chi's RealIP middleware.
			if xri := r.Header.Get("X-Real-Ip"); xri != "" {
				ip = xri
			}
			if !limiter.Allow(ip) {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
