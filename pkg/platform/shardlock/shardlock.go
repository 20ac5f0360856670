// Package shardlock serializes work per key with a fixed set of mutexes.
//
// Keys are spread over shards with FNV-1a, so unrelated keys rarely contend
// and the memory footprint stays constant regardless of key count.
package shardlock

import (
	"context"
	"sync"
	"time"

	dErrors "instahelp/pkg/domain-errors"
)

const NumShards = 128

// DefaultTimeout bounds a locked section when the caller's context has no deadline.
const DefaultTimeout = 5 * time.Second

type Locks struct {
	shards  [NumShards]sync.Mutex
	timeout time.Duration
}

func New(timeout time.Duration) *Locks {
	return &Locks{timeout: timeout}
}

// Do runs fn while holding the shard lock for key. The context passed to fn
// carries a deadline; a context already cancelled before or after acquiring
// the lock aborts with CodeTimeout.
func (l *Locks) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := l.timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shard := &l.shards[Shard(key)]
	shard.Lock()
	defer shard.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(ctx)
}

// Shard returns the shard index for key.
func Shard(key string) int {
	return int(hashString(key) % NumShards)
}

func hashString(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
