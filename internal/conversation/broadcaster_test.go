// ABOUTME: Tests for SnapshotBroadcaster fan-out pub/sub
// ABOUTME: Covers subscribe, publish, unsubscribe, context cancellation, concurrency

package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_MultipleSubscribersReceiveSameSnapshot(t *testing.T) {
	b := NewSnapshotBroadcaster(nil)
	defer b.Close()

	ctx := t.Context()
	ch1, _ := b.Subscribe(ctx)
	ch2, _ := b.Subscribe(ctx)

	b.Publish(Snapshot{Version: 7})

	for _, ch := range []<-chan Snapshot{ch1, ch2} {
		select {
		case got := <-ch:
			assert.Equal(t, uint64(7), got.Version)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for snapshot")
		}
	}
}

func TestBroadcaster_SlowConsumerDoesNotBlockPublisher(t *testing.T) {
	b := NewSnapshotBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context())

	done := make(chan struct{})
	go func() {
		for i := 1; i <= 100; i++ {
			b.Publish(Snapshot{Version: uint64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
	require.Len(t, ch, 1)
	got := <-ch
	assert.Equal(t, uint64(100), got.Version, "unread snapshots are replaced by the newest")
}

func TestBroadcaster_SlowSubscriberEndsOnFinalState(t *testing.T) {
	s, rec := New(nil)
	defer s.Close()

	ch := s.Subscribe(t.Context())

	for i := 0; i < 70; i++ {
		rec.Append(Message{Role: RoleUser, Content: "q"})
	}
	rec.Begin()
	rec.Finish("Response timed out. Please try again.")

	var last Snapshot
	received := 0
	for len(ch) > 0 {
		last = <-ch
		received++
	}
	want := s.Snapshot()
	assert.Equal(t, 1, received)
	assert.Equal(t, want.Version, last.Version)
	assert.Equal(t, "Response timed out. Please try again.", last.LastError)
	assert.False(t, last.Processing)
	assert.Len(t, last.Messages, 70)
}

func TestBroadcaster_ContextCancellationCleansUp(t *testing.T) {
	b := NewSnapshotBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx)
	require.Equal(t, 1, b.Len())

	cancel()

	require.Eventually(t, func() bool { return b.Len() == 0 }, time.Second, 10*time.Millisecond)
	_, ok := <-ch
	assert.False(t, ok, "channel should be closed")
}

func TestBroadcaster_ManualUnsubscribe(t *testing.T) {
	b := NewSnapshotBroadcaster(nil)
	defer b.Close()

	ch, id := b.Subscribe(t.Context())
	b.Unsubscribe(id)
	b.Unsubscribe(id)

	_, ok := <-ch
	assert.False(t, ok)

	// Publishing after unsubscribe must not panic.
	b.Publish(Snapshot{Version: 1})
}

func TestBroadcaster_CloseClosesAllSubscriptions(t *testing.T) {
	b := NewSnapshotBroadcaster(nil)

	ch1, _ := b.Subscribe(t.Context())
	ch2, _ := b.Subscribe(t.Context())
	b.Close()

	_, ok1 := <-ch1
	_, ok2 := <-ch2
	assert.False(t, ok1)
	assert.False(t, ok2)

	late, _ := b.Subscribe(t.Context())
	_, ok := <-late
	assert.False(t, ok, "subscribing after Close yields a closed channel")
}

func TestBroadcaster_ConcurrentPublishSubscribe(t *testing.T) {
	b := NewSnapshotBroadcaster(nil)
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithCancel(context.Background())
			ch, _ := b.Subscribe(ctx)
			cancel()
			for range ch {
			}
		}()
		go func(v int) {
			defer wg.Done()
			b.Publish(Snapshot{Version: uint64(v)})
		}(i)
	}
	wg.Wait()
}

func TestBroadcaster_SubscribeReturnsUniqueIDs(t *testing.T) {
	b := NewSnapshotBroadcaster(nil)
	defer b.Close()

	_, id1 := b.Subscribe(t.Context())
	_, id2 := b.Subscribe(t.Context())
	assert.NotEqual(t, id1, id2)
}
