// ABOUTME: Tests for the absolute-expiry cache backing agent affinity.
// ABOUTME: Validates expiry without refresh, eviction, atomic GetOrCreate, and concurrency safety.

package ttlcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCache_Get_Missing(t *testing.T) {
	cache := New[string](time.Hour, 10)

	_, ok := cache.Get("never-set")
	assert.False(t, ok)
}

func TestCache_SetAndGet(t *testing.T) {
	cache := New[string](time.Hour, 10)

	cache.Set("key", "value")

	v, ok := cache.Get("key")
	require.True(t, ok)
	assert.Equal(t, "value", v)
}

func TestCache_Expiry_IsAbsolute(t *testing.T) {
	clock := newFakeClock()
	cache := New[string](time.Hour, 10, WithClock(clock.Now))

	cache.Set("key", "value")

	// Reads just before expiry must not extend the lifetime
	clock.Advance(59 * time.Minute)
	_, ok := cache.Get("key")
	require.True(t, ok)

	clock.Advance(time.Minute)
	_, ok = cache.Get("key")
	assert.False(t, ok, "entry should expire exactly ttl after insertion")
	assert.Equal(t, 0, cache.Len(), "expired entry should be purged on read")
}

func TestCache_Set_Overwrites(t *testing.T) {
	clock := newFakeClock()
	cache := New[string](time.Hour, 10, WithClock(clock.Now))

	cache.Set("key", "first")
	clock.Advance(30 * time.Minute)
	cache.Set("key", "second")
	clock.Advance(45 * time.Minute)

	v, ok := cache.Get("key")
	require.True(t, ok, "re-insertion sets a new absolute expiry")
	assert.Equal(t, "second", v)
	assert.Equal(t, 1, cache.Len())
}

func TestCache_Eviction(t *testing.T) {
	cache := New[int](time.Hour, 3)

	cache.Set("key-1", 1)
	cache.Set("key-2", 2)
	cache.Set("key-3", 3)
	cache.Set("key-4", 4)

	_, ok := cache.Get("key-1")
	assert.False(t, ok, "oldest key should be evicted")
	for _, k := range []string{"key-2", "key-3", "key-4"} {
		_, ok := cache.Get(k)
		assert.True(t, ok, k)
	}
}

func TestCache_Eviction_Unbounded(t *testing.T) {
	cache := New[int](time.Hour, 0)

	for i := 0; i < 100; i++ {
		cache.Set(fmt.Sprintf("key-%d", i), i)
	}
	assert.Equal(t, 100, cache.Len())
}

func TestCache_GetOrCreate(t *testing.T) {
	cache := New[string](time.Hour, 10)

	v, created, err := cache.GetOrCreate("key", func() (string, error) { return "made", nil })
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "made", v)

	v, created, err = cache.GetOrCreate("key", func() (string, error) {
		t.Fatal("create must not run for a live key")
		return "", nil
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "made", v)
}

func TestCache_GetOrCreate_Error(t *testing.T) {
	cache := New[string](time.Hour, 10)
	boom := errors.New("boom")

	_, created, err := cache.GetOrCreate("key", func() (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, created)
	assert.Equal(t, 0, cache.Len(), "failed create must not store anything")
}

func TestCache_GetOrCreate_AfterExpiry(t *testing.T) {
	clock := newFakeClock()
	cache := New[string](time.Hour, 10, WithClock(clock.Now))

	cache.Set("key", "old")
	clock.Advance(2 * time.Hour)

	v, created, err := cache.GetOrCreate("key", func() (string, error) { return "new", nil })
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "new", v)
}

func TestCache_GetOrCreate_Atomic(t *testing.T) {
	cache := New[*int](time.Hour, 100)

	const numGoroutines = 100
	var calls int32
	results := make([]*int, numGoroutines)

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(idx int) {
			defer wg.Done()
			v, _, err := cache.GetOrCreate("contested", func() (*int, error) {
				atomic.AddInt32(&calls, 1)
				n := idx
				return &n, nil
			})
			assert.NoError(t, err)
			results[idx] = v
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls, "exactly one goroutine should create the value")
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestCache_GetOrCreate_LeavesOtherKeysAvailable(t *testing.T) {
	cache := New[string](time.Hour, 10)
	cache.Set("other", "x")

	entered := make(chan struct{})
	release := make(chan struct{})
	built := make(chan string, 1)
	go func() {
		v, _, _ := cache.GetOrCreate("slow", func() (string, error) {
			close(entered)
			<-release
			return "built", nil
		})
		built <- v
	}()
	<-entered

	v, ok := cache.Get("other")
	assert.True(t, ok)
	assert.Equal(t, "x", v)
	cache.Set("another", "y")
	v, created, err := cache.GetOrCreate("fast", func() (string, error) { return "quick", nil })
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "quick", v)

	waited := make(chan string, 1)
	go func() {
		v, created, err := cache.GetOrCreate("slow", func() (string, error) { return "second", nil })
		assert.NoError(t, err)
		assert.False(t, created)
		waited <- v
	}()

	close(release)
	assert.Equal(t, "built", <-built)
	assert.Equal(t, "built", <-waited)
}

func TestCache_GetOrCreate_PanicReleasesWaiters(t *testing.T) {
	cache := New[string](time.Hour, 10)

	assert.Panics(t, func() {
		_, _, _ = cache.GetOrCreate("key", func() (string, error) { panic("factory bug") })
	})

	v, created, err := cache.GetOrCreate("key", func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "ok", v)
}

func TestCache_Sweep(t *testing.T) {
	clock := newFakeClock()
	cache := New[int](time.Hour, 10, WithClock(clock.Now))

	cache.Set("old-1", 1)
	cache.Set("old-2", 2)
	clock.Advance(30 * time.Minute)
	cache.Set("fresh", 3)
	clock.Advance(31 * time.Minute)

	assert.Equal(t, 2, cache.Sweep())
	assert.Equal(t, 1, cache.Len())
	_, ok := cache.Get("fresh")
	assert.True(t, ok)
}

func TestCache_Run_StopsOnCancel(t *testing.T) {
	cache := New[int](time.Millisecond, 10)
	cache.Set("key", 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cache.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return cache.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestCache_Delete(t *testing.T) {
	cache := New[int](time.Hour, 10)
	cache.Set("key", 1)
	cache.Delete("key")
	cache.Delete("missing")

	_, ok := cache.Get("key")
	assert.False(t, ok)
}

func TestCache_Concurrent(t *testing.T) {
	cache := New[int](time.Hour, 1000)

	const numGoroutines = 100
	const opsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < opsPerGoroutine; j++ {
				key := fmt.Sprintf("key-%d-%d", id%26, j%10)
				cache.Set(key, j)
				cache.Get(key)
			}
		}(i)
	}
	wg.Wait()

	cache.Set("final-key", 1)
	_, ok := cache.Get("final-key")
	assert.True(t, ok)
}
