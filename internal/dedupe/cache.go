// ABOUTME: Thread-safe TTL cache of recently settled request ids and how they settled
// ABOUTME: Lets the authorization engine classify late responses as duplicate or stale

package dedupe

import (
	"container/list"
	"sync"
	"time"

	"github.com/2389/wallet-gateway/internal/clock"
)

// Outcome records how a request was settled.
type Outcome string

const (
	// Resolved means a response was delivered to the waiter.
	Resolved Outcome = "resolved"
	// Expired means the waiter gave up (timeout or cancellation) first.
	Expired Outcome = "expired"
)

// cacheEntry stores the settle time, outcome and list element for an id.
type cacheEntry struct {
	timestamp time.Time
	outcome   Outcome
	element   *list.Element
}

// Cache is a thread-safe, TTL-based, size-limited record of settled ids.
// Uses a doubly-linked list to maintain insertion order for O(1) eviction.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*cacheEntry
	order   *list.List // ids in insertion order (oldest at front)
	ttl     time.Duration
	maxSize int
	clock   clock.Clock
}

// New creates a cache with the given TTL and maximum size. Expired entries
// are dropped lazily on access and when new ids are recorded.
func New(ttl time.Duration, maxSize int, clk clock.Clock) *Cache {
	if clk == nil {
		clk = clock.Real()
	}
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &Cache{
		seen:    make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		clock:   clk,
	}
}

// Lookup returns how id was settled, if it was settled within the TTL.
func (c *Cache) Lookup(id string) (Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.seen[id]
	if !ok {
		return "", false
	}
	if c.clock.Now().Sub(entry.timestamp) >= c.ttl {
		c.order.Remove(entry.element)
		delete(c.seen, id)
		return "", false
	}
	return entry.outcome, true
}

// Record notes that id settled with outcome. Recording an id again
// replaces its outcome and refreshes its timestamp.
func (c *Cache) Record(id string, outcome Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	c.pruneLocked(now)

	if entry, exists := c.seen[id]; exists {
		entry.timestamp = now
		entry.outcome = outcome
		c.order.MoveToBack(entry.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(id)
	c.seen[id] = &cacheEntry{
		timestamp: now,
		outcome:   outcome,
		element:   elem,
	}
}

// Len returns the number of ids currently remembered.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// pruneLocked drops expired entries from the front of the list. Entries are
// ordered by timestamp, so it stops at the first live one.
func (c *Cache) pruneLocked(now time.Time) {
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		id, _ := front.Value.(string)
		entry := c.seen[id]
		if now.Sub(entry.timestamp) < c.ttl {
			return
		}
		c.order.Remove(front)
		delete(c.seen, id)
	}
}

// evictOldest removes the oldest entry from the cache.
// Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	id, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, id)
}
