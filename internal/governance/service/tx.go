package service

import (
	"context"
	"time"

	id "instahelp/pkg/domain"
	"instahelp/pkg/platform/shardlock"
)

// StoreTx serializes work on one change. Everything fn does, including the
// quorum check and finalization, happens while no other vote on the same
// change can run. Implementations may wrap a database transaction or, in
// memory, a sharded lock.
type StoreTx interface {
	RunInTx(ctx context.Context, changeID id.ChangeID, fn func(ctx context.Context, store Store) error) error
}

// ShardedTx is the in-process StoreTx: a mutex shard per change ID.
type ShardedTx struct {
	locks *shardlock.Locks
	store Store
}

// NewShardedTx bounds each locked section by timeout when the caller's
// context has no deadline; zero uses shardlock.DefaultTimeout.
func NewShardedTx(store Store, timeout time.Duration) *ShardedTx {
	return &ShardedTx{locks: shardlock.New(timeout), store: store}
}

func (t *ShardedTx) RunInTx(ctx context.Context, changeID id.ChangeID, fn func(ctx context.Context, store Store) error) error {
	return t.locks.Do(ctx, changeID.String(), func(ctx context.Context) error {
		return fn(ctx, t.store)
	})
}
