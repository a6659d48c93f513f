// ABOUTME: In-memory generic fan-out broadcaster keyed by topic
// ABOUTME: Carries authorization requests, interaction snapshots and diagnostic exports to watchers

package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64

	// AllTopics subscribes to every topic.
	AllTopics = "*"
)

// Broadcaster provides in-memory pub/sub. Subscribers register for a topic
// (typically an app id, or AllTopics) and receive values as they are
// published. Publishing never blocks; values are dropped for subscribers
// whose buffers are full.
type Broadcaster[T any] struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan T // topic -> subID -> ch
	closed      bool
	name        string
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. name identifies it in logs. Pass nil
// logger for default.
func NewBroadcaster[T any](name string, logger *slog.Logger) *Broadcaster[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster[T]{
		subscribers: make(map[string]map[string]chan T),
		name:        name,
		logger:      logger.With("component", "broadcaster", "stream", name),
	}
}

// Subscribe registers a subscriber for the given topic. Returns a channel
// that receives values and a subscription ID for later unsubscription. The
// subscription is automatically cleaned up when ctx is cancelled.
func (b *Broadcaster[T]) Subscribe(ctx context.Context, topic string) (<-chan T, string) {
	subID := uuid.New().String()
	ch := make(chan T, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := b.subscribers[topic]; !ok {
		b.subscribers[topic] = make(map[string]chan T)
	}
	b.subscribers[topic][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "topic", topic, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(topic, subID)
	}()

	return ch, subID
}

// Publish sends v to subscribers of topic and of AllTopics. It returns the
// number of subscribers that received it.
func (b *Broadcaster[T]) Publish(topic string, v T) int {
	// Sends are non-blocking, so the read lock is held across them; this
	// keeps Unsubscribe from closing a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	deliver := func(subs map[string]chan T) {
		for subID, ch := range subs {
			select {
			case ch <- v:
				delivered++
			default:
				b.logger.Warn("dropped event for slow subscriber", "topic", topic, "sub_id", subID)
			}
		}
	}
	deliver(b.subscribers[topic])
	if topic != AllTopics {
		deliver(b.subscribers[AllTopics])
	}
	return delivered
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster[T]) Unsubscribe(topic, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[topic]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, topic)
	}

	b.logger.Debug("subscriber removed", "topic", topic, "sub_id", subID)
}

// Subscribers returns the number of subscribers on topic.
func (b *Broadcaster[T]) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[topic])
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for topic, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, topic)
	}
	b.closed = true

	b.logger.Debug("broadcaster closed")
}
