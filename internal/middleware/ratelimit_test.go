package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/meetingintel/server/internal/config"
)

func limiterRouter(limiter *RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(limiter.Handler())
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	router.GET("/api/meetings", ok)
	router.POST("/oauth/token", ok)
	router.GET("/health", ok)
	return router
}

func doRequest(router *gin.Engine, method, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterEnforcesBudget(t *testing.T) {
	limiter := NewRateLimiter(config.Config{RateLimitAPIRPM: 3, RateLimitAuthRPM: 20, RateLimitToolRPM: 60})
	router := limiterRouter(limiter)

	for i := 0; i < 3; i++ {
		rec := doRequest(router, http.MethodGet, "/api/meetings", "token-a")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := doRequest(router, http.MethodGet, "/api/meetings", "token-a")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimiterKeysByCredential(t *testing.T) {
	limiter := NewRateLimiter(config.Config{RateLimitAPIRPM: 1})
	router := limiterRouter(limiter)

	require.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, "/api/meetings", "token-a").Code)
	require.Equal(t, http.StatusTooManyRequests, doRequest(router, http.MethodGet, "/api/meetings", "token-a").Code)

	// A different credential has its own budget.
	require.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, "/api/meetings", "token-b").Code)
}

func TestRateLimiterTiersAreIndependent(t *testing.T) {
	limiter := NewRateLimiter(config.Config{RateLimitAPIRPM: 1, RateLimitAuthRPM: 1})
	router := limiterRouter(limiter)

	require.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, "/api/meetings", "token-a").Code)
	require.Equal(t, http.StatusTooManyRequests, doRequest(router, http.MethodGet, "/api/meetings", "token-a").Code)

	// The same caller still has auth-tier budget.
	require.Equal(t, http.StatusOK, doRequest(router, http.MethodPost, "/oauth/token", "token-a").Code)
}

func TestRateLimiterExemptsHealth(t *testing.T) {
	limiter := NewRateLimiter(config.Config{RateLimitAPIRPM: 1})
	router := limiterRouter(limiter)

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, "/health", "").Code)
	}
}

func TestRateLimiterWindowSlides(t *testing.T) {
	limiter := NewRateLimiter(config.Config{RateLimitAPIRPM: 1})
	router := limiterRouter(limiter)

	require.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, "/api/meetings", "token-a").Code)
	require.Equal(t, http.StatusTooManyRequests, doRequest(router, http.MethodGet, "/api/meetings", "token-a").Code)

	limiter.now = func() time.Time { return time.Now().Add(61 * time.Second) }
	require.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, "/api/meetings", "token-a").Code)
}

func TestNilLimiterPassesThrough(t *testing.T) {
	router := limiterRouter(NewRateLimiter(config.Config{}))
	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, "/api/meetings", "").Code)
	}
}
