// Package lock serialises mutations of the same game id.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrTimeout is returned when the lock could not be acquired in time.
var ErrTimeout = errors.New("lock: timed out waiting for lock")

// Locker hands out one holder per key at a time. The returned unlock func
// is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// GameKey is the lock key for one game.
func GameKey(id uint) string {
	return fmt.Sprintf("game:%d", id)
}

// KeyedMutex is an in-process Locker.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
	wait  time.Duration
}

type entry struct {
	ch   chan struct{}
	refs int
}

var _ Locker = (*KeyedMutex)(nil)

// NewKeyedMutex bounds every acquisition by wait; zero waits for ctx only.
func NewKeyedMutex(wait time.Duration) *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*entry), wait: wait}
}

func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	if m.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.wait)
		defer cancel()
	}
	select {
	case e.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.ch
				m.release(key, e)
			})
		}, nil
	case <-ctx.Done():
		m.release(key, e)
		return nil, fmt.Errorf("%w: %s", ErrTimeout, key)
	}
}

func (m *KeyedMutex) release(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
}

// size reports how many keys are tracked.
func (m *KeyedMutex) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
