package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	id "instahelp/pkg/domain"
	"instahelp/pkg/platform/sentinel"
)

const replayKeyPrefix = "telemetry:seen:"

func replayKey(deviceID id.DeviceID, timestamp string) string {
	return replayKeyPrefix + string(deviceID) + ":" + timestamp
}

// RedisReplayGuard shares seen telemetry readings across instances. SET NX
// with an expiry makes the claim atomic.
type RedisReplayGuard struct {
	client *redis.Client
}

func NewRedisReplayGuard(client *redis.Client) *RedisReplayGuard {
	return &RedisReplayGuard{client: client}
}

func (g *RedisReplayGuard) Claim(ctx context.Context, deviceID id.DeviceID, timestamp string, window time.Duration) error {
	ok, err := g.client.SetNX(ctx, replayKey(deviceID, timestamp), "1", window).Result()
	if err != nil {
		return fmt.Errorf("claim telemetry reading: %w", err)
	}
	if !ok {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (g *RedisReplayGuard) Release(ctx context.Context, deviceID id.DeviceID, timestamp string) error {
	if err := g.client.Del(ctx, replayKey(deviceID, timestamp)).Err(); err != nil {
		return fmt.Errorf("release telemetry reading: %w", err)
	}
	return nil
}

// MemoryReplayGuard is the single-process fallback when Redis is not configured.
type MemoryReplayGuard struct {
	mu    sync.Mutex
	seen  map[string]time.Time
	now   func() time.Time
	claim int
}

func NewMemoryReplayGuard() *MemoryReplayGuard {
	return &MemoryReplayGuard{seen: make(map[string]time.Time), now: time.Now}
}

// sweepEvery bounds how often expired entries are purged.
const sweepEvery = 256

func (g *MemoryReplayGuard) Claim(_ context.Context, deviceID id.DeviceID, timestamp string, window time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.claim++
	if g.claim%sweepEvery == 0 {
		for k, exp := range g.seen {
			if !now.Before(exp) {
				delete(g.seen, k)
			}
		}
	}

	key := replayKey(deviceID, timestamp)
	if exp, ok := g.seen[key]; ok && now.Before(exp) {
		return sentinel.ErrAlreadyUsed
	}
	g.seen[key] = now.Add(window)
	return nil
}

func (g *MemoryReplayGuard) Release(_ context.Context, deviceID id.DeviceID, timestamp string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, replayKey(deviceID, timestamp))
	return nil
}
