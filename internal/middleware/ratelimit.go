package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Limiter decides whether one more request from key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// MemoryLimiter keeps one token bucket per key in process memory.
type MemoryLimiter struct {
	mu      sync.Mutex
	rpm     int
	burst   int
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMemoryLimiter allows requestsPerMinute per key with a burst of the same
// size.
func NewMemoryLimiter(requestsPerMinute int) *MemoryLimiter {
	return &MemoryLimiter{
		rpm:     requestsPerMinute,
		burst:   requestsPerMinute,
		buckets: make(map[string]*bucket),
	}
}

// Allow consumes a token for key. A non-positive limit disables limiting.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	if l.rpm <= 0 {
		return true, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.rpm)), l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = time.Now()
	return b.limiter.Allow(), nil
}

// Sweep drops buckets idle for longer than maxIdle.
func (l *MemoryLimiter) Sweep(maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		if time.Since(b.lastSeen) > maxIdle {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// StartSweeper cleans idle buckets every interval until ctx ends.
func (l *MemoryLimiter) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep(2 * interval)
		}
	}
}

// tokenBucketScript refills and consumes a bucket atomically.
// KEYS[1] = bucket key, ARGV = rate per second, capacity, now (seconds).
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = math.min(capacity, tokens + elapsed * rate)
    last_refill = now
end

local allowed = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 120)

return allowed
`)

// RedisLimiter shares token buckets between server instances.
type RedisLimiter struct {
	client redis.Scripter
	rpm    int
	prefix string
}

// NewRedisLimiter allows requestsPerMinute per key across all instances
// using client.
func NewRedisLimiter(client redis.Scripter, requestsPerMinute int) *RedisLimiter {
	return &RedisLimiter{client: client, rpm: requestsPerMinute, prefix: "ratelimit:"}
}

// Allow consumes a token for key.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	perSecond := float64(l.rpm) / 60.0
	now := float64(time.Now().UnixMicro()) / 1e6

	allowed, err := tokenBucketScript.Run(ctx, l.client, []string{l.prefix + key},
		strconv.FormatFloat(perSecond, 'f', -1, 64), l.rpm, strconv.FormatFloat(now, 'f', 6, 64),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis limiter: %w", err)
	}
	return allowed == 1, nil
}

// RateLimit throttles each caller: the authenticated actor when known,
// otherwise the client address. Limiter errors let the request through.
func RateLimit(limiter Limiter, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)

			ok, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.Warnw("Rate limiter unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if actor, ok := ActorFrom(r.Context()); ok {
		return "user:" + actor.ID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
