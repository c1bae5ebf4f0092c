package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

// TokenBucket implements a token bucket rate limiter
type TokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

func NewTokenBucket(maxTokens float64, refillRate float64) *TokenBucket {
	return &TokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow checks if a request can proceed and consumes a token if so
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()

	tb.tokens = min(tb.maxTokens, tb.tokens+(elapsed*tb.refillRate))
	tb.lastRefill = now

	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return true
	}
	return false
}

// Remaining returns the number of tokens remaining
func (tb *TokenBucket) Remaining() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tokens := min(tb.maxTokens, tb.tokens+(elapsed*tb.refillRate))
	return int(tokens)
}

// ClientRateLimiter keeps one token bucket per client address. Buckets live
// in an LRU so the tracked set stays bounded without a cleanup goroutine;
// evicted clients simply start over with a full bucket.
type ClientRateLimiter struct {
	buckets           *lru.Cache
	messagesPerMinute int
	burstSize         int
	mu                sync.Mutex
	logger            *zap.Logger
}

func NewClientRateLimiter(messagesPerMinute, burstSize, maxTracked int, logger *zap.Logger) (*ClientRateLimiter, error) {
	buckets, err := lru.New(maxTracked)
	if err != nil {
		return nil, err
	}
	return &ClientRateLimiter{
		buckets:           buckets,
		messagesPerMinute: messagesPerMinute,
		burstSize:         burstSize,
		logger:            logger,
	}, nil
}

// Allow checks if a request from the given client can proceed.
func (rl *ClientRateLimiter) Allow(clientKey string) bool {
	return rl.bucket(clientKey).Allow()
}

// Limit returns the remaining tokens and the burst limit for a client.
func (rl *ClientRateLimiter) Limit(clientKey string) (remaining int, limit int) {
	return rl.bucket(clientKey).Remaining(), rl.burstSize
}

func (rl *ClientRateLimiter) bucket(clientKey string) *TokenBucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if cached, ok := rl.buckets.Get(clientKey); ok {
		return cached.(*TokenBucket)
	}
	refillRate := float64(rl.messagesPerMinute) / 60.0
	bucket := NewTokenBucket(float64(rl.burstSize), refillRate)
	rl.buckets.Add(clientKey, bucket)
	return bucket
}

// RateLimitMiddleware creates a Gin middleware limiting chat requests per client
func RateLimitMiddleware(limiter *ClientRateLimiter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientKey := c.ClientIP()

		allowed := limiter.Allow(clientKey)
		remaining, limit := limiter.Limit(clientKey)

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			logger.Warn("Rate limit exceeded",
				zap.String("client", clientKey),
				zap.Int("limit", limit))

			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"limit":       limit,
				"remaining":   remaining,
				"retry_after": 60,
			})
			return
		}

		c.Next()
	}
}
