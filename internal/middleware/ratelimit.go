package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const rateLimitScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if current > tonumber(ARGV[2]) then
  return 0
end
return 1
`

const rateLimitTimeout = 250 * time.Millisecond

type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) bool
}

// RedisLimiter is a fixed window counter shared by every instance. Redis
// errors let the request through.
type RedisLimiter struct {
	client *redis.Client
	script *redis.Script
	log    zerolog.Logger
}

func NewRedisLimiter(client *redis.Client, log zerolog.Logger) *RedisLimiter {
	if client == nil {
		return nil
	}
	return &RedisLimiter{
		client: client,
		script: redis.NewScript(rateLimitScript),
		log:    log,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	if l == nil || l.client == nil {
		return true
	}
	if key == "" || limit <= 0 || window <= 0 {
		return true
	}
	ttl := window.Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}
	ctx, cancel := context.WithTimeout(ctx, rateLimitTimeout)
	defer cancel()
	allowed, err := l.script.Run(ctx, l.client, []string{key}, ttl, limit).Int64()
	if err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("rate limiter unavailable")
		return true
	}
	return allowed == 1
}

// RateLimit answers 429 once the key returned by keyFn exceeds limit requests
// per window. A nil limiter disables the check.
func RateLimit(limiter Limiter, prefix string, keyFn func(*http.Request) string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			if !limiter.Allow(r.Context(), prefix+keyFn(r), limit, window) {
				writeError(w, http.StatusTooManyRequests, "Too many requests, please try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIPFunc keys a request on its client address. With no trusted proxies
// the connection peer is used and x-forwarded-for is ignored. With n trusted
// hops the n-th entry from the right of x-forwarded-for is used, which is the
// address the outermost trusted proxy saw. Entries left of it are client
// supplied and never consulted.
func ClientIPFunc(trustedHops int) func(*http.Request) string {
	return func(r *http.Request) string {
		if trustedHops > 0 {
			var hops []string
			for _, header := range r.Header.Values("X-Forwarded-For") {
				for _, hop := range strings.Split(header, ",") {
					hops = append(hops, strings.TrimSpace(hop))
				}
			}
			if i := len(hops) - trustedHops; i >= 0 && hops[i] != "" {
				return hops[i]
			}
		}
		return remoteHost(r)
	}
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
