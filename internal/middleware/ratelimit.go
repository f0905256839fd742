package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bluele/gcache"
	"github.com/gin-gonic/gin"
)

// Limiter counts hits against a fixed-window limit.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error)
}

// RateLimit rejects clients that exceed limit requests per window with 429.
// Limiter errors let the request through.
func RateLimit(limiter Limiter, scope string, limit int, window time.Duration, message string, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		ok, remaining, err := limiter.Allow(c.Request.Context(), scope+":"+c.ClientIP(), limit, window)
		if err != nil {
			logger.Warn("rate limiter unavailable", "scope", scope, "error", err)
			c.Next()
			return
		}

		c.Header("RateLimit-Limit", strconv.Itoa(limit))
		c.Header("RateLimit-Remaining", strconv.Itoa(remaining))
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": message})
			return
		}
		c.Next()
	}
}

// LocalLimiter is a per-process Limiter for deployments without Redis.
type LocalLimiter struct {
	mu     sync.Mutex
	counts gcache.Cache
	now    func() time.Time
}

// NewLocalLimiter creates a LocalLimiter tracking at most size keys.
func NewLocalLimiter(size int) *LocalLimiter {
	return &LocalLimiter{
		counts: gcache.New(size).LRU().Build(),
		now:    time.Now,
	}
}

// Allow implements Limiter.
func (l *LocalLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	bucket := l.now().UnixNano() / int64(window)
	k := key + ":" + strconv.FormatInt(bucket, 10)

	l.mu.Lock()
	defer l.mu.Unlock()

	count := 1
	if v, err := l.counts.Get(k); err == nil {
		count = v.(int) + 1
	}
	if err := l.counts.SetWithExpire(k, count, window); err != nil {
		return true, limit, err
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= limit, remaining, nil
}
