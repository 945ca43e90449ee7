package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// keyFunc maps a request to its rate-limit bucket.
type keyFunc func(*gin.Context) string

// KeyByUserOrIP keys buckets by "user:<id>" when Authenticate identified the
// caller, else by "ip:<addr>".
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if uid := UserID(c); uid != "" {
			return "user:" + uid
		}
		return "ip:" + c.ClientIP()
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a process-local token-bucket limiter with one bucket per
// caller. Routes can be weighted so that one call spends several tokens;
// credential endpoints use this to slow down password guessing without a
// second limiter. Idle buckets are swept every sweepEvery lookups.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn keyFunc
	cost  map[string]int // route template -> tokens per call

	mu      sync.Mutex
	buckets map[string]*bucket

	idleTTL    time.Duration
	sweepEvery int
	lookups    int
	now        func() time.Time
}

// NewRateLimiter builds a limiter refilling rps tokens per second with the
// given burst (coerced to >= 1).
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:        rate.Limit(rps),
		burst:      burst,
		keyFn:      keyFn,
		cost:       map[string]int{},
		buckets:    make(map[string]*bucket),
		idleTTL:    10 * time.Minute,
		sweepEvery: 5000,
		now:        time.Now,
	}
}

// WithCost charges n tokens for each call to the given route templates. n is
// capped at the burst so a weighted call can always eventually pass.
func (rl *RateLimiter) WithCost(n int, routes ...string) *RateLimiter {
	n = min(max(n, 1), rl.burst)
	for _, r := range routes {
		rl.cost[r] = n
	}
	return rl
}

func (rl *RateLimiter) costOf(c *gin.Context) int {
	if n, ok := rl.cost[c.FullPath()]; ok {
		return n
	}
	return 1
}

// limiter returns the bucket for key, sweeping idle buckets first when due.
func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.lookups++; rl.lookups >= rl.sweepEvery {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.idleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lookups = 0
	}

	if b, ok := rl.buckets[key]; ok {
		b.lastSeen = now
		return b.limiter
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.buckets[key] = &bucket{limiter: lim, lastSeen: now}
	return lim
}

// retryAfter is the whole number of seconds until n tokens are available,
// at least 1.
func (rl *RateLimiter) retryAfter(lim *rate.Limiter, n int, now time.Time) int {
	if rl.rps <= 0 {
		return 60
	}
	missing := float64(n) - lim.TokensAt(now)
	secs := int(math.Ceil(missing / float64(rl.rps)))
	return max(secs, 1)
}

// IsRateBypass reports whether IdempotencyValidator exempted this request.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler enforces the limit, answering 429 with Retry-After and the
// standard error envelope. Idempotent replays are not counted.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}
		now := rl.now()
		n := rl.costOf(c)
		lim := rl.limiter(rl.keyFn(c))
		if lim.AllowN(now, n) {
			c.Next()
			return
		}
		reject(c, rejectRateLimited)
		c.Header("Retry-After", strconv.Itoa(rl.retryAfter(lim, n, now)))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": RequestIDFrom(c),
			"code":       "too_many_requests",
			"message":    "Too many requests, please try again later",
		})
	}
}
