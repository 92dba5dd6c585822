package session

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Serializer hands out per-session mutual exclusion. Turn locks admit one
// agent run per session; send locks admit one outbound send per session.
// The two families are independent so a turn may send to its own session.
//
// Locks are created lazily and never removed.
type Serializer struct {
	mu    sync.Mutex
	turns map[Key]*semaphore.Weighted
	sends map[Key]*semaphore.Weighted
}

// NewSerializer creates an empty serializer.
func NewSerializer() *Serializer {
	return &Serializer{
		turns: make(map[Key]*semaphore.Weighted),
		sends: make(map[Key]*semaphore.Weighted),
	}
}

// WithTurn runs fn while holding key's turn lock. It returns ctx.Err() if the
// context ends before the lock is acquired; otherwise it returns fn's error.
func (s *Serializer) WithTurn(ctx context.Context, key Key, fn func(context.Context) error) error {
	return run(ctx, s.lock(s.turns, key), fn)
}

// WithSend runs fn while holding key's send lock.
func (s *Serializer) WithSend(ctx context.Context, key Key, fn func(context.Context) error) error {
	return run(ctx, s.lock(s.sends, key), fn)
}

// Sessions returns the number of keys that have ever taken a turn lock.
func (s *Serializer) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

func (s *Serializer) lock(family map[Key]*semaphore.Weighted, key Key) *semaphore.Weighted {
	s.mu.Lock()
	defer s.mu.Unlock()
	sem, ok := family[key]
	if !ok {
		sem = semaphore.NewWeighted(1)
		family[key] = sem
	}
	return sem
}

func run(ctx context.Context, sem *semaphore.Weighted, fn func(context.Context) error) error {
	if err := sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer sem.Release(1)
	return fn(ctx)
}
