package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "otp:send:"

// allowScript checks block and cooldown keys, counts the send in the current
// window and blocks the key once the count goes over the cap.
// Returns {allowed, retry_after_ms}.
//
// KEYS: block, cooldown, count
// ARGV: cooldown_ms, window_ms, max_per_window, block_ms
var allowScript = redis.NewScript(`
local ttl = redis.call("PTTL", KEYS[1])
if ttl > 0 then
	return {0, ttl}
end

ttl = redis.call("PTTL", KEYS[2])
if ttl > 0 then
	return {0, ttl}
end

local max = tonumber(ARGV[3])
local window = tonumber(ARGV[2])
if max > 0 and window > 0 then
	local count = redis.call("INCR", KEYS[3])
	if count == 1 then
		redis.call("PEXPIRE", KEYS[3], window)
	end
	if count > max then
		redis.call("SET", KEYS[1], "1", "PX", ARGV[4])
		redis.call("DEL", KEYS[3])
		return {0, tonumber(ARGV[4])}
	end
end

local cooldown = tonumber(ARGV[1])
if cooldown > 0 then
	redis.call("SET", KEYS[2], "1", "PX", cooldown)
end

return {1, 0}
`)

// redisLimiter shares counters across instances through redis
type redisLimiter struct {
	client redis.UniversalClient
	opts   Options
}

// NewRedisLimiter creates a Limiter backed by redis
func NewRedisLimiter(client redis.UniversalClient, opts Options) Limiter {
	return &redisLimiter{client: client, opts: opts}
}

func (l *redisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	base := redisKeyPrefix + key
	keys := []string{base + ":blocked", base + ":cooldown", base + ":count"}

	res, err := allowScript.Run(ctx, l.client, keys,
		l.opts.Cooldown.Milliseconds(),
		l.opts.Window.Milliseconds(),
		l.opts.MaxPerWindow,
		l.opts.BlockDuration().Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("redis rate limit: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("redis rate limit: unexpected reply %v", res)
	}

	if res[0] == 1 {
		return Decision{Allowed: true}, nil
	}
	return Decision{RetryAfter: time.Duration(res[1]) * time.Millisecond}, nil
}
