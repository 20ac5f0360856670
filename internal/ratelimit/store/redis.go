package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"instahelp/internal/ratelimit"
)

// Redis keeps one sorted set per key, scored by request time in
// microseconds, so every API replica shares the same window.
type Redis struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, now: time.Now}
}

// slidingWindowScript trims expired entries, then admits the request only
// if the remaining count plus cost fits the limit. It returns the count
// after the call and the oldest score still in the window.
var slidingWindowScript = redis.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit  = tonumber(ARGV[3])
local cost   = tonumber(ARGV[4])
local member = ARGV[5]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count + cost <= limit then
  for i = 1, cost do
    redis.call('ZADD', key, now, member .. ':' .. i)
  end
  count = count + cost
  allowed = 1
end
redis.call('PEXPIRE', key, math.ceil(window / 1000))
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldestScore = ARGV[1]
if oldest[2] then oldestScore = oldest[2] end
return {allowed, count, oldestScore}
`)

func (s *Redis) AllowN(ctx context.Context, key string, cost, limit int, window time.Duration) (*ratelimit.Result, error) {
	now := s.now()
	raw, err := slidingWindowScript.Run(ctx, s.client, []string{key},
		now.UnixMicro(),
		window.Microseconds(),
		limit,
		cost,
		uuid.NewString(),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("run sliding window script: %w", err)
	}
	if len(raw) != 3 {
		return nil, fmt.Errorf("unexpected sliding window reply length %d", len(raw))
	}

	allowed, _ := raw[0].(int64)
	count, _ := raw[1].(int64)
	oldestStr, _ := raw[2].(string)
	oldest, err := strconv.ParseFloat(oldestStr, 64)
	if err != nil {
		return nil, fmt.Errorf("parse oldest score: %w", err)
	}
	resetAt := time.UnixMicro(int64(oldest)).Add(window)

	res := &ratelimit.Result{
		Allowed:   allowed == 1,
		Limit:     limit,
		Remaining: max(limit-int(count), 0),
		ResetAt:   resetAt,
	}
	if !res.Allowed {
		res.RetryAfter = retryAfter(now, resetAt)
	}
	return res, nil
}
