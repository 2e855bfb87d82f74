package core

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// visitor tracks one client's recent requests. A visitor that exceeds
// the limit is blocked until blockedUntil.
type visitor struct {
	requests     []time.Time
	blockedUntil time.Time
}

// RateLimiter rejects clients that exceed a per-minute request budget,
// counted per client IP over a sliding window.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    int
	window   time.Duration
	cleanupC chan struct{}
}

// NewRateLimiter creates a rate limiter allowing requestsPerMinute per
// client.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    requestsPerMinute,
		window:   time.Minute,
		cleanupC: make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// Middleware returns a Gin middleware function
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.Header("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests",
			})
			return
		}

		c.Next()
	}
}

// Allow reports whether a request from the client fits the budget. A
// rejected request counts as a hit; a client crossing the limit counts
// as one block and stays rejected for a full window.
func (rl *RateLimiter) Allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	v, exists := rl.visitors[clientIP]
	if !exists {
		v = &visitor{}
		rl.visitors[clientIP] = v
	}

	if now.Before(v.blockedUntil) {
		RecordRateLimitHit()
		return false
	}

	// Trim requests that fell out of the window
	cutoff := now.Add(-rl.window)
	keep := v.requests[:0]
	for _, at := range v.requests {
		if at.After(cutoff) {
			keep = append(keep, at)
		}
	}
	v.requests = keep

	if len(v.requests) >= rl.limit {
		v.blockedUntil = now.Add(rl.window)
		RecordRateLimitBlock()
		RecordRateLimitHit()
		return false
	}

	v.requests = append(v.requests, now)
	return true
}

// cleanup drops visitors that have been quiet long enough that their
// whole window, block included, has expired.
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			cutoff := time.Now().Add(-rl.window * 2)
			for ip, v := range rl.visitors {
				if len(v.requests) == 0 || v.requests[len(v.requests)-1].Before(cutoff) {
					delete(rl.visitors, ip)
				}
			}
			rl.mu.Unlock()
		case <-rl.cleanupC:
			return
		}
	}
}

// Stop stops the rate limiter cleanup goroutine
func (rl *RateLimiter) Stop() {
	close(rl.cleanupC)
}

// SecurityHeadersMiddleware adds the standard hardening headers. HSTS is
// only sent when the server actually terminates TLS.
func SecurityHeadersMiddleware(enableHSTS bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if enableHSTS {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		// The CSP allows inline styles for highlighted code blocks and
		// off-site cover images
		c.Header("Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' https: data:")

		c.Next()
	}
}
