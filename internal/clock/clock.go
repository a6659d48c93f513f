// ABOUTME: Injectable time and id sources for deterministic tests
// ABOUTME: Production code uses Real() and UUIDGenerator; tests use Fake and Sequence

package clock

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Clock abstracts the current time and timers. Components that stamp
// records, evaluate expiry or wait with a deadline take a Clock instead of
// calling the time package directly.
type Clock interface {
	Now() time.Time
	// NewTimer returns a Timer that delivers once on C after d.
	NewTimer(d time.Duration) *Timer
}

// Timer is a one-shot timer. Call Stop when it is no longer needed.
type Timer struct {
	C    <-chan time.Time
	stop func() bool
}

// Stop prevents the Timer from firing. It returns false if the timer
// already fired or was stopped.
func (t *Timer) Stop() bool { return t.stop() }

type realClock struct{}

// Real returns a Clock backed by the system time, in UTC.
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now().UTC() }

func (realClock) NewTimer(d time.Duration) *Timer {
	t := time.NewTimer(d)
	return &Timer{C: t.C, stop: t.Stop}
}

// FakeClock is a Clock whose time only moves when Set or Advance is called.
// Timers fire when the clock reaches their deadline. It is safe for
// concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	timers  []*fakeTimer
	changed *sync.Cond
}

type fakeTimer struct {
	deadline time.Time
	ch       chan time.Time
	done     bool
}

// Fake returns a FakeClock initialized to the given time.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{current: initial}
	c.changed = sync.NewCond(&c.mu)
	return c
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NewTimer registers a timer that fires once the clock reaches now+d.
// A non-positive d fires immediately.
func (c *FakeClock) NewTimer(d time.Duration) *Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	ft := &fakeTimer{deadline: c.current.Add(d), ch: make(chan time.Time, 1)}
	if d <= 0 {
		ft.ch <- c.current
		ft.done = true
	} else {
		c.timers = append(c.timers, ft)
		c.changed.Broadcast()
	}
	return &Timer{C: ft.ch, stop: func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if ft.done {
			return false
		}
		ft.done = true
		c.removeLocked(ft)
		return true
	}}
}

// Advance moves the clock forward by d and fires due timers.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	c.fireLocked()
}

// Set moves the clock to t and fires due timers.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
	c.fireLocked()
}

// WaitForTimers blocks until at least n timers are pending, so a test can
// advance the clock only after the code under test started waiting.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.timers) < n {
		c.changed.Wait()
	}
}

func (c *FakeClock) fireLocked() {
	remaining := c.timers[:0]
	for _, ft := range c.timers {
		if ft.deadline.After(c.current) {
			remaining = append(remaining, ft)
			continue
		}
		ft.done = true
		ft.ch <- c.current
	}
	c.timers = remaining
}

func (c *FakeClock) removeLocked(ft *fakeTimer) {
	for i, cur := range c.timers {
		if cur == ft {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return
		}
	}
}

// Generator produces opaque unique identifiers.
type Generator interface {
	NewID() string
}

// UUIDGenerator generates random v4 UUIDs.
type UUIDGenerator struct{}

// NewID returns a new random UUID string.
func (UUIDGenerator) NewID() string { return uuid.New().String() }

// Sequence is a deterministic Generator that yields "<prefix>-1", "<prefix>-2", ...
type Sequence struct {
	Prefix string

	mu   sync.Mutex
	next int
}

// NewSequence creates a Sequence with the given prefix.
func NewSequence(prefix string) *Sequence {
	return &Sequence{Prefix: prefix}
}

// NewID returns the next identifier in the sequence.
func (s *Sequence) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return fmt.Sprintf("%s-%d", s.Prefix, s.next)
}
