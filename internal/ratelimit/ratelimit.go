package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"
)

// IPLimiter tracks request counts per IP within a sliding window.
type IPLimiter struct {
	mu      sync.Mutex
	entries map[string][]time.Time
	max     int
	window  time.Duration
}

// NewIPLimiter creates an IPLimiter allowing max requests per window.
func NewIPLimiter(max int, window time.Duration) *IPLimiter {
	return &IPLimiter{
		entries: make(map[string][]time.Time),
		max:     max,
		window:  window,
	}
}

// Allow returns true if the IP has not exceeded the rate limit.
// If allowed, the request is recorded.
func (l *IPLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.window)

	timestamps := l.entries[ip]
	// Remove expired entries
	valid := timestamps[:0]
	for _, t := range timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= l.max {
		l.entries[ip] = valid
		return false
	}

	l.entries[ip] = append(valid, now)
	return true
}

// Middleware rejects requests over the limit with 429. It keys on the
// request's remote IP; mount it behind a RealIP middleware when running
// behind a proxy.
func (l *IPLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !l.Allow(ip) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
