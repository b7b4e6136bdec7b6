package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meetingintel/server/internal/config"
)

// RateLimiter enforces tiered per-caller throttling with a sliding window of
// request timestamps. Callers are keyed by a hash of their credential when
// one is presented, falling back to client IP.
type RateLimiter struct {
	tiers  map[string]int
	window time.Duration
	idle   time.Duration

	mu      sync.Mutex
	clients map[string]*clientWindow

	now func() time.Time
}

type clientWindow struct {
	stamps   []time.Time
	lastSeen time.Time
}

// NewRateLimiter builds a limiter from the configured per-minute budgets.
// A nil limiter (all budgets zero) disables throttling.
func NewRateLimiter(cfg config.Config) *RateLimiter {
	if cfg.RateLimitToolRPM <= 0 && cfg.RateLimitAuthRPM <= 0 && cfg.RateLimitAPIRPM <= 0 {
		return nil
	}
	return &RateLimiter{
		tiers: map[string]int{
			"tool": cfg.RateLimitToolRPM,
			"auth": cfg.RateLimitAuthRPM,
			"api":  cfg.RateLimitAPIRPM,
		},
		window:  time.Minute,
		idle:    5 * time.Minute,
		clients: make(map[string]*clientWindow),
		now:     time.Now,
	}
}

// Handler returns the gin middleware enforcing throttling behaviour.
func (r *RateLimiter) Handler() gin.HandlerFunc {
	if r == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if exemptPath(path) {
			c.Next()
			return
		}

		tier := tierFor(path)
		limit := r.tiers[tier]
		if limit <= 0 {
			c.Next()
			return
		}

		key := tier + ":" + callerKey(c)
		allowed, remaining, retryAfter := r.take(key, limit)

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   true,
				"code":    "RATE_LIMITED",
				"message": fmt.Sprintf("Rate limit of %d requests per minute exceeded.", limit),
			})
			return
		}

		c.Next()
	}
}

// take records one request against the key and reports whether it fits in the
// window, how much budget remains, and the seconds until a slot frees up.
func (r *RateLimiter) take(key string, limit int) (allowed bool, remaining, retryAfter int) {
	now := r.now()
	cutoff := now.Add(-r.window)

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.clients[key]
	if !ok {
		entry = &clientWindow{}
		r.clients[key] = entry
		r.sweepLocked(now)
	}
	entry.lastSeen = now

	// Drop timestamps that slid out of the window.
	kept := entry.stamps[:0]
	for _, ts := range entry.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	entry.stamps = kept

	if len(entry.stamps) >= limit {
		wait := int(r.window.Seconds()) - int(now.Sub(entry.stamps[0]).Seconds())
		if wait < 1 {
			wait = 1
		}
		return false, 0, wait
	}

	entry.stamps = append(entry.stamps, now)
	return true, limit - len(entry.stamps), 0
}

func (r *RateLimiter) sweepLocked(now time.Time) {
	for key, entry := range r.clients {
		if now.Sub(entry.lastSeen) > r.idle {
			delete(r.clients, key)
		}
	}
}

func tierFor(path string) string {
	switch {
	case strings.HasPrefix(path, "/mcp"):
		return "tool"
	case strings.HasPrefix(path, "/oauth"):
		return "auth"
	default:
		return "api"
	}
}

func exemptPath(path string) bool {
	return path == "/health" || path == "/health/live" || path == "/health/ready" ||
		strings.HasPrefix(path, "/.well-known/")
}

// callerKey hashes whichever credential the request carries so the budget
// follows the token across IPs; unauthenticated traffic shares an IP bucket.
func callerKey(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return hashKey(strings.TrimSpace(parts[1]))
		}
	}
	if key := c.GetHeader("X-API-Key"); key != "" {
		return hashKey(key)
	}
	if token := c.Query("token"); token != "" {
		return hashKey(token)
	}
	return c.ClientIP()
}

func hashKey(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:8])
}
