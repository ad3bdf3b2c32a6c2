// ABOUTME: Tests for the request-ID dedupe cache
// ABOUTME: Validates TTL expiry, capacity eviction, sweeping, forgetting and concurrency

package dedupe

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (m *manualClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *manualClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func newTestCache(ttl time.Duration, size int) (*Cache, *manualClock) {
	clock := &manualClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewWithClock(ttl, size, clock.Now), clock
}

func TestCache_CheckAndMark(t *testing.T) {
	c, _ := newTestCache(DefaultTTL, 10)
	defer c.Close()

	assert.False(t, c.Seen("req-1"))
	assert.False(t, c.CheckAndMark("req-1"), "first sighting is not a duplicate")
	assert.True(t, c.CheckAndMark("req-1"), "second sighting is a duplicate")
	assert.True(t, c.Seen("req-1"))
}

func TestCache_Expiry(t *testing.T) {
	c, clock := newTestCache(time.Minute, 10)
	defer c.Close()

	c.CheckAndMark("req-1")
	clock.Advance(59 * time.Second)
	assert.True(t, c.Seen("req-1"))

	clock.Advance(2 * time.Second)
	assert.False(t, c.Seen("req-1"))
	assert.False(t, c.CheckAndMark("req-1"), "expired key is marked fresh")
}

func TestCache_EvictsOldest(t *testing.T) {
	c, clock := newTestCache(DefaultTTL, 2)
	defer c.Close()

	c.CheckAndMark("a")
	clock.Advance(time.Second)
	c.CheckAndMark("b")
	clock.Advance(time.Second)
	c.CheckAndMark("c")

	assert.Equal(t, 2, c.Len())
	assert.False(t, c.Seen("a"))
	assert.True(t, c.Seen("b"))
	assert.True(t, c.Seen("c"))
}

func TestCache_Sweep(t *testing.T) {
	c, clock := newTestCache(time.Minute, 10)
	defer c.Close()

	c.CheckAndMark("old")
	clock.Advance(2 * time.Minute)
	c.CheckAndMark("new")

	c.sweep()
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Seen("new"))
}

func TestCache_Forget(t *testing.T) {
	c, _ := newTestCache(DefaultTTL, 10)
	defer c.Close()

	c.CheckAndMark("req-1")
	c.Forget("req-1")
	c.Forget("never-marked")

	assert.False(t, c.CheckAndMark("req-1"))
}

func TestCache_ConcurrentCheckAndMark(t *testing.T) {
	c := New(DefaultTTL, 100)
	defer c.Close()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fresh int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !c.CheckAndMark("same-request") {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fresh, "exactly one caller wins")
}

func TestCache_CloseIdempotent(t *testing.T) {
	c := New(time.Minute, 10)
	c.Close()
	c.Close()
}
