package middleware

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// bucket is the token bucket for a single client IP.
type bucket struct {
	tokens     float64
	lastRefill time.Time
	mu         sync.Mutex
}

type rateLimiterState struct {
	buckets sync.Map // map[string]*bucket (IP -> bucket)
	rate    float64  // tokens added per second
	burst   int      // maximum tokens (bucket capacity)
	done    chan struct{}
}

// healthCheckPaths are endpoints exempt from rate limiting.
var healthCheckPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
}

// allow refills the bucket for the given IP based on elapsed time, then tries
// to consume one token. Returns (allowed, remaining, limit).
func (s *rateLimiterState) allow(ip string) (bool, int, int) {
	val, _ := s.buckets.LoadOrStore(ip, &bucket{
		tokens:     float64(s.burst),
		lastRefill: time.Now(),
	})
	b := val.(*bucket)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * s.rate
	if b.tokens > float64(s.burst) {
		b.tokens = float64(s.burst)
	}
	b.lastRefill = now

	if b.tokens >= 1.0 {
		b.tokens--
		remaining := int(math.Floor(b.tokens))
		return true, remaining, s.burst
	}

	return false, 0, s.burst
}

// retryAfter estimates how many seconds until one token is available.
func (s *rateLimiterState) retryAfter(ip string) int {
	val, ok := s.buckets.Load(ip)
	if !ok {
		return 1
	}
	b := val.(*bucket)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tokens >= 1.0 {
		return 0
	}

	deficit := 1.0 - b.tokens
	return int(math.Ceil(deficit / s.rate))
}

// startCleanup removes buckets idle long enough to be fully refilled.
func (s *rateLimiterState) startCleanup() {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				staleThreshold := time.Now().Add(-10 * time.Minute)
				s.buckets.Range(func(key, value any) bool {
					b := value.(*bucket)
					b.mu.Lock()
					if b.lastRefill.Before(staleThreshold) {
						b.mu.Unlock()
						s.buckets.Delete(key)
					} else {
						b.mu.Unlock()
					}
					return true
				})
			case <-s.done:
				return
			}
		}
	}()
}

// RateLimiter limits requests per client IP with a token bucket: rate tokens
// per second sustained, bursts up to burst requests.
func RateLimiter(rate float64, burst int) func(http.Handler) http.Handler {
	state := &rateLimiterState{
		rate:  rate,
		burst: burst,
		done:  make(chan struct{}),
	}
	state.startCleanup()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if healthCheckPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			ip := extractIP(r)

			allowed, remaining, limit := state.allow(ip)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(state.retryAfter(ip)))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{
					"error":   "rate limit exceeded",
					"message": "Too many requests. Please try again later.",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CheckoutRateLimiter is the stricter limiter for session creation: 10
// checkouts per minute per IP. Every session hits the payment processor, so
// bursts here are almost always abuse.
func CheckoutRateLimiter() func(http.Handler) http.Handler {
	return RateLimiter(10.0/60.0, 10)
}

// extractIP retrieves the client IP, preferring X-Forwarded-For and X-Real-IP
// (reverse proxy setups), falling back to RemoteAddr.
func extractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
