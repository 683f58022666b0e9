// internal/lock/lock_test.go
package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerSerializesSameKey(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(ctx, GroupKey("g1"))
			if !assert.NoError(t, err) {
				return
			}
			defer release()

			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, l.held())
}

func TestLocalLockerIndependentKeys(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	releaseA, err := l.Acquire(ctx, ListingKey("a"))
	require.NoError(t, err)
	defer releaseA()

	ctx2, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	releaseB, err := l.Acquire(ctx2, ListingKey("b"))
	require.NoError(t, err)
	releaseB()
}

func TestLocalLockerHonoursContext(t *testing.T) {
	l := NewLocalLocker()

	release, err := l.Acquire(context.Background(), GroupKey("g"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, GroupKey("g"))
	assert.ErrorIs(t, err, ErrNotAcquired)

	release()
	release() // second call is a no-op
	assert.Equal(t, 0, l.held())
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "freshshare:lock:group:g1", GroupKey("g1"))
	assert.Equal(t, "freshshare:lock:listing:l1", ListingKey("l1"))
}
