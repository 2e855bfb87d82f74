package core

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(3)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("Request %d should be allowed", i+1)
		}
	}

	if rl.Allow("10.0.0.1") {
		t.Error("Request over the limit should be rejected")
	}
	if rl.Allow("10.0.0.1") {
		t.Error("Blocked client should stay blocked")
	}

	// Other clients have their own budget
	if !rl.Allow("10.0.0.2") {
		t.Error("A different client must not share the blocked budget")
	}
}

func TestRateLimiterMetrics(t *testing.T) {
	rl := NewRateLimiter(1)
	defer rl.Stop()

	hitsBefore := GlobalMetrics.RateLimitHits.Get()
	blocksBefore := GlobalMetrics.RateLimitBlocks.Get()

	rl.Allow("10.0.0.9") // allowed
	rl.Allow("10.0.0.9") // crosses the limit
	rl.Allow("10.0.0.9") // rejected while blocked

	if got := GlobalMetrics.RateLimitHits.Get() - hitsBefore; got != 2 {
		t.Errorf("Expected 2 rejected requests, have %d", got)
	}
	if got := GlobalMetrics.RateLimitBlocks.Get() - blocksBefore; got != 1 {
		t.Errorf("Expected 1 block event, have %d", got)
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rl := NewRateLimiter(2)
	defer rl.Stop()

	router := gin.New()
	router.Use(rl.Middleware())
	router.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	serve := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.1.2.3:4444"
		router.ServeHTTP(rec, req)
		return rec
	}

	if rec := serve(); rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 for first request, got %d", rec.Code)
	}
	if rec := serve(); rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 for second request, got %d", rec.Code)
	}

	rec := serve()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429 over the limit, got %d", rec.Code)
	}
	if retry := rec.Header().Get("Retry-After"); retry != "60" {
		t.Errorf("Expected Retry-After of one window, got %q", retry)
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		hsts       bool
		expectHSTS bool
	}{
		{"plain http", false, false},
		{"behind tls", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(SecurityHeadersMiddleware(tt.hsts))
			router.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			for header, want := range map[string]string{
				"X-Content-Type-Options": "nosniff",
				"X-Frame-Options":        "DENY",
				"Referrer-Policy":        "strict-origin-when-cross-origin",
			} {
				if got := rec.Header().Get(header); got != want {
					t.Errorf("%s = %q, expected %q", header, got, want)
				}
			}

			if rec.Header().Get("Content-Security-Policy") == "" {
				t.Error("Expected a Content-Security-Policy header")
			}

			hsts := rec.Header().Get("Strict-Transport-Security")
			if tt.expectHSTS && hsts == "" {
				t.Error("Expected HSTS header when TLS is enabled")
			}
			if !tt.expectHSTS && hsts != "" {
				t.Errorf("Expected no HSTS header without TLS, got %q", hsts)
			}
		})
	}
}
