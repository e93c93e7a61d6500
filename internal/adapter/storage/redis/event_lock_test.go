package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLock_AcquireAndRelease(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	lock := NewEventLock(client)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "evt_1", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, s.Exists("cwl:event_lock:evt_1"))

	// Second attempt while held
	ok, err = lock.Acquire(ctx, "evt_1", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, lock.Release(ctx, "evt_1"))
	assert.False(t, s.Exists("cwl:event_lock:evt_1"))

	ok, err = lock.Acquire(ctx, "evt_1", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEventLock_ExpiresAfterTTL(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	lock := NewEventLock(client)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "evt_2", 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	s.FastForward(6 * time.Second)

	other := NewEventLock(client)
	ok, err = other.Acquire(ctx, "evt_2", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEventLock_ReleaseKeepsForeignLock(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	first := NewEventLock(client)
	second := NewEventLock(client)
	ctx := context.Background()

	ok, err := first.Acquire(ctx, "evt_3", 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// first's lease lapses and second takes over
	s.FastForward(6 * time.Second)
	ok, err = second.Acquire(ctx, "evt_3", 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, first.Release(ctx, "evt_3"))
	assert.True(t, s.Exists("cwl:event_lock:evt_3"), "stale holder must not drop the new lock")

	require.NoError(t, second.Release(ctx, "evt_3"))
	assert.False(t, s.Exists("cwl:event_lock:evt_3"))
}

func TestEventLock_ReleaseWithoutAcquire(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	lock := NewEventLock(client)

	assert.NoError(t, lock.Release(context.Background(), "never-held"))
}

func TestEventLock_ConcurrentAcquire(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	ctx := context.Background()

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := NewEventLock(client).Acquire(ctx, "evt_race", 30*time.Second)
			assert.NoError(t, err)
			if ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}
