package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/arkana-app/access-api/internal/config"
	"github.com/arkana-app/access-api/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

func limitedRouter(rule config.RateLimitRule, limiter ratelimit.Limiter) *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/ping", RateLimit(rule, limiter), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func TestRateLimitDeniesOverLimit(t *testing.T) {
	limiter := ratelimit.NewMemory(10, time.Minute)
	defer limiter.Stop()

	rule := config.RateLimitRule{Name: "test", Limit: 10, WindowMs: 60000}
	router := limitedRouter(rule, limiter)

	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, w.Code)
		}
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("11th request: expected 429, got %d", w.Code)
	}

	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil {
		t.Fatalf("Retry-After header missing or not a number: %q", w.Header().Get("Retry-After"))
	}
	if retryAfter < 1 || retryAfter > 60 {
		t.Fatalf("Retry-After should be within the window, got %d", retryAfter)
	}

	var body struct {
		Error      string `json:"error"`
		RetryAfter int    `json:"retry_after"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("denial body is not JSON: %v", err)
	}
	if body.RetryAfter != retryAfter {
		t.Fatalf("body retry_after %d disagrees with header %d", body.RetryAfter, retryAfter)
	}
}

func TestRateLimitSetsHeaders(t *testing.T) {
	limiter := ratelimit.NewMemory(5, time.Minute)
	defer limiter.Stop()

	rule := config.RateLimitRule{Name: "test", Limit: 5, WindowMs: 60000}
	router := limitedRouter(rule, limiter)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if got := w.Header().Get("X-RateLimit-Limit"); got != "5" {
		t.Fatalf("X-RateLimit-Limit: expected 5, got %q", got)
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "4" {
		t.Fatalf("X-RateLimit-Remaining: expected 4, got %q", got)
	}
	if w.Header().Get("X-RateLimit-Reset") == "" {
		t.Fatal("X-RateLimit-Reset header missing")
	}
}

func TestRateLimitKeysByClientIP(t *testing.T) {
	limiter := ratelimit.NewMemory(1, time.Minute)
	defer limiter.Stop()

	rule := config.RateLimitRule{Name: "test", Limit: 1, WindowMs: 60000}
	router := limitedRouter(rule, limiter)

	first := httptest.NewRequest(http.MethodGet, "/ping", nil)
	first.RemoteAddr = "10.0.0.1:1234"

	w := httptest.NewRecorder()
	router.ServeHTTP(w, first)
	if w.Code != http.StatusOK {
		t.Fatalf("first client: expected 200, got %d", w.Code)
	}

	second := httptest.NewRequest(http.MethodGet, "/ping", nil)
	second.RemoteAddr = "10.0.0.2:1234"

	w = httptest.NewRecorder()
	router.ServeHTTP(w, second)
	if w.Code != http.StatusOK {
		t.Fatalf("a different client should have its own budget, got %d", w.Code)
	}

	repeat := httptest.NewRequest(http.MethodGet, "/ping", nil)
	repeat.RemoteAddr = "10.0.0.1:1234"

	w = httptest.NewRecorder()
	router.ServeHTTP(w, repeat)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("first client over its limit should get 429, got %d", w.Code)
	}
}

// brokenLimiter simulates the limiter store being down.
type brokenLimiter struct{}

func (brokenLimiter) Check(ctx context.Context, key string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis: connection refused")
}

func (brokenLimiter) Limit() int            { return 10 }
func (brokenLimiter) Window() time.Duration { return time.Minute }

func TestRateLimitFailClosed(t *testing.T) {
	rule := config.RateLimitRule{Name: "join", Limit: 10, WindowMs: 60000, FailMode: "closed"}
	router := limitedRouter(rule, brokenLimiter{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("fail-closed rule with a broken limiter should 503, got %d", w.Code)
	}
}

func TestRateLimitFailOpen(t *testing.T) {
	rule := config.RateLimitRule{Name: "general", Limit: 10, WindowMs: 60000, FailMode: "open"}
	router := limitedRouter(rule, brokenLimiter{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("fail-open rule with a broken limiter should pass traffic, got %d", w.Code)
	}
}
