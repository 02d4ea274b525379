// Package lock serializes mutations addressed to the same entity.
package lock

import (
	"context"
	"sync"
	"time"

	id "tracecore/pkg/domain"
	dErrors "tracecore/pkg/domain-errors"
)

// Locker acquires an exclusive section for one entity. The returned func
// releases it and must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, entityID id.EntityID) (func(), error)
}

// numShards spreads entity ids over a fixed set of mutexes so that unrelated
// entities rarely contend while memory stays bounded.
const numShards = 128

// defaultWait bounds how long a caller without a deadline waits for a shard.
const defaultWait = 5 * time.Second

// Sharded is the in-process Locker. Two entities that hash to the same shard
// are serialized with each other, which is safe but slower.
type Sharded struct {
	shards [numShards]chan struct{}
	wait   time.Duration
}

// NewSharded builds a sharded locker. wait <= 0 selects the default.
func NewSharded(wait time.Duration) *Sharded {
	if wait <= 0 {
		wait = defaultWait
	}
	s := &Sharded{wait: wait}
	for i := range s.shards {
		s.shards[i] = make(chan struct{}, 1)
	}
	return s
}

// Lock blocks until the entity's shard is free or ctx is done.
func (s *Sharded) Lock(ctx context.Context, entityID id.EntityID) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "lock aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.wait)
		defer cancel()
	}

	shard := s.shards[shardFor(entityID)]
	select {
	case shard <- struct{}{}:
	case <-ctx.Done():
		return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeInternal, "timed out waiting for entity lock")
	}
	var once sync.Once
	return func() {
		once.Do(func() { <-shard })
	}, nil
}

// shardFor uses FNV-1a over the id bytes for an even spread of sequential ids.
func shardFor(entityID id.EntityID) int {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	v := uint64(entityID)
	for i := 0; i < 8; i++ {
		h ^= uint32(v & 0xff)
		h *= fnvPrime
		v >>= 8
	}
	return int(h % numShards)
}
