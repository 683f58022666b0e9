// internal/lock/lock.go
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotAcquired is returned when the context ends before the lock frees up.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker serializes read-modify-write cycles on one aggregate.
type Locker interface {
	// Acquire blocks until the key is held or ctx is done. The returned
	// release function must be called exactly once.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

func GroupKey(groupID string) string {
	return fmt.Sprintf("freshshare:lock:group:%s", groupID)
}

func ListingKey(listingID string) string {
	return fmt.Sprintf("freshshare:lock:listing:%s", listingID)
}

// LocalLocker is an in-process keyed mutex. It is enough for a single
// replica; deployments with several replicas use RedisLocker.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*slot)}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, s)
		return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.unref(key, s)
		})
	}, nil
}

func (l *LocalLocker) unref(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// held reports how many keys currently have holders or waiters.
func (l *LocalLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
