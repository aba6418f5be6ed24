package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slideScript trims, counts and conditionally records in one atomic step.
// KEYS[1] = window key (e.g. "rate_limit:user:123:minute")
// ARGV[1] = now (unix seconds, float)
// ARGV[2] = window length (seconds, float)
// ARGV[3] = max events in the window
// ARGV[4] = unique member for the new event
// Returns {allowed, count, oldest_score}. oldest_score is a string so the
// float score survives the Lua->Redis integer conversion; "-1" means the
// set is empty (a zero-max window denies without ever holding an event).
var slideScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local member = ARGV[4]

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
local count = redis.call("ZCARD", key)
if count >= max then
    local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
    if oldest[2] then
        return {0, count, oldest[2]}
    end
    return {0, count, "-1"}
end
redis.call("ZADD", key, now, member)
redis.call("EXPIRE", key, math.ceil(window))
local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
return {1, count + 1, oldest[2]}
`)

// forgiveScript removes the newest event still inside the window.
// KEYS[1] = window key
// ARGV[1] = now (unix seconds, float)
// ARGV[2] = window length (seconds, float)
var forgiveScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
local newest = redis.call("ZRANGE", key, -1, -1)
if newest[1] then
    redis.call("ZREM", key, newest[1])
end
return redis.status_reply("OK")
`)

// RedisWindowStore implements WindowStore on Redis sorted sets, one set per
// window key with event timestamps as scores. Shared across gateway
// instances.
type RedisWindowStore struct {
	client redis.UniversalClient
}

// NewRedisWindowStore creates a Redis-backed window store.
func NewRedisWindowStore(client redis.UniversalClient) *RedisWindowStore {
	return &RedisWindowStore{client: client}
}

func (s *RedisWindowStore) Slide(ctx context.Context, key string, max int, window time.Duration, now time.Time) (int, time.Duration, bool, error) {
	// Member carries a UUID so two events in the same nanosecond stay
	// distinct set members.
	member := fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString())
	nowSec := float64(now.UnixMicro()) / 1e6

	res, err := slideScript.Run(ctx, s.client, []string{key},
		nowSec, window.Seconds(), max, member).Slice()
	if err != nil {
		return 0, 0, false, fmt.Errorf("ratelimit: slide %s: %w", key, err)
	}
	if len(res) != 3 {
		return 0, 0, false, fmt.Errorf("ratelimit: slide %s: unexpected reply %v", key, res)
	}

	allowed := res[0].(int64) == 1
	count := int(res[1].(int64))
	oldestStr, _ := res[2].(string)

	oldest, err := strconv.ParseFloat(oldestStr, 64)
	if err != nil {
		return count, 0, false, fmt.Errorf("ratelimit: slide %s: bad oldest score: %w", key, err)
	}
	resetIn := window
	if oldest >= 0 {
		resetIn = time.Duration((oldest + window.Seconds() - nowSec) * float64(time.Second))
		if resetIn < 0 {
			resetIn = 0
		}
	}
	return count, resetIn, allowed, nil
}

func (s *RedisWindowStore) Forgive(ctx context.Context, key string, window time.Duration, now time.Time) error {
	nowSec := float64(now.UnixMicro()) / 1e6
	if err := forgiveScript.Run(ctx, s.client, []string{key}, nowSec, window.Seconds()).Err(); err != nil {
		return fmt.Errorf("ratelimit: forgive %s: %w", key, err)
	}
	return nil
}
