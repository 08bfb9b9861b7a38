package api

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// callerLimiter keeps one token bucket per caller.
type callerLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func newCallerLimiter(rps float64, burst int) *callerLimiter {
	r := rate.Limit(rps)
	if rps <= 0 {
		r = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &callerLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
	}
}

func (l *callerLimiter) allow(caller string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[caller]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[caller] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// callerKey identifies the caller by API key, falling back to the remote host.
func callerKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return "key:" + key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) rateLimitMiddleware(limiter *callerLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.allow(callerKey(r)) {
				w.Header().Set("Retry-After", "1")
				s.writeError(w, http.StatusTooManyRequests, "job submission rate exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
