// ABOUTME: In-memory fan-out of conversation snapshots to presentation subscribers
// ABOUTME: Each subscriber holds only the latest snapshot; unsubscribes on ctx cancel

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// subscriberBufferSize is the channel buffer for each subscriber. A snapshot
// supersedes every earlier one, so a subscriber only needs the newest.
const subscriberBufferSize = 1

// SnapshotBroadcaster provides in-memory pub/sub for conversation snapshots.
type SnapshotBroadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan Snapshot // subID -> ch
	closed      bool
	logger      *slog.Logger
}

// NewSnapshotBroadcaster creates a broadcaster. Pass nil logger for default.
func NewSnapshotBroadcaster(logger *slog.Logger) *SnapshotBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotBroadcaster{
		subscribers: make(map[string]chan Snapshot),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber and returns its channel and ID. The
// subscription is cleaned up when ctx is cancelled. Subscribing to a closed
// broadcaster returns an already-closed channel.
func (b *SnapshotBroadcaster) Subscribe(ctx context.Context) (<-chan Snapshot, string) {
	subID := uuid.New().String()
	ch := make(chan Snapshot, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	b.subscribers[subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(subID)
	}()

	return ch, subID
}

// Publish sends snap to every subscriber without blocking. A subscriber that
// has not read its previous snapshot gets it replaced by snap.
func (b *SnapshotBroadcaster) Publish(snap Snapshot) {
	// Sends happen under the read lock so Unsubscribe cannot close a
	// channel mid-send. Callers serialize Publish.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		b.offer(id, ch, snap)
	}
}

// publishTo sends snap to one subscriber, used to prime a new subscription.
func (b *SnapshotBroadcaster) publishTo(subID string, snap Snapshot) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if ch, ok := b.subscribers[subID]; ok {
		b.offer(subID, ch, snap)
	}
}

// offer puts snap in ch, discarding an unread older snapshot first.
func (b *SnapshotBroadcaster) offer(id string, ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}

	select {
	case stale := <-ch:
		b.logger.Debug("replaced unread snapshot",
			"sub_id", id,
			"stale_version", stale.Version,
			"version", snap.Version)
	default:
	}

	select {
	case ch <- snap:
	default:
		// Only a concurrent Publish could refill the slot.
		b.logger.Warn("snapshot not delivered", "sub_id", id, "version", snap.Version)
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *SnapshotBroadcaster) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, exists := b.subscribers[subID]
	if !exists {
		return
	}
	delete(b.subscribers, subID)
	close(ch)

	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// Len reports the number of active subscribers.
func (b *SnapshotBroadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *SnapshotBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subID, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, subID)
	}
	b.closed = true

	b.logger.Debug("broadcaster closed")
}
