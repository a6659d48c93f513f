// ABOUTME: Generic bounded registry of pending requests awaiting a single response
// ABOUTME: Routes responses by request ID with capacity limits, timeouts and context cancellation

package pending

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/2389/wallet-gateway/internal/clock"
)

var (
	// ErrFull is returned when the registry is at capacity.
	ErrFull = errors.New("pending registry full")
	// ErrDuplicateID is returned when a request ID is already pending.
	ErrDuplicateID = errors.New("duplicate pending request id")
	// ErrTimeout is returned by Wait when no response arrived in time.
	ErrTimeout = errors.New("pending request timed out")
	// ErrCancelled is returned by Wait when the request was cancelled.
	ErrCancelled = errors.New("pending request cancelled")
)

// Options configures a Registry. Zero MaxPending means unbounded; zero
// Timeout means Wait blocks until a response or context cancellation.
type Options struct {
	MaxPending int
	Timeout    time.Duration
	Clock      clock.Clock
	Logger     *slog.Logger
}

type entry[Req, Resp any] struct {
	request   Req
	createdAt time.Time
	done      chan Resp
	cancelled chan struct{}
	once      sync.Once
}

// Registry maps request IDs to single-use completion channels. Req is the
// outbound request kept for listing; Resp is the value delivered by Resolve.
type Registry[Req, Resp any] struct {
	mu      sync.Mutex
	entries map[string]*entry[Req, Resp]
	max     int
	timeout time.Duration
	clock   clock.Clock
	logger  *slog.Logger
}

// New creates a Registry.
func New[Req, Resp any](opts Options) *Registry[Req, Resp] {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &Registry[Req, Resp]{
		entries: make(map[string]*entry[Req, Resp]),
		max:     opts.MaxPending,
		timeout: opts.Timeout,
		clock:   clk,
		logger:  logger.With("component", "pending"),
	}
}

// Ticket is the waiting side of one registered request.
type Ticket[Req, Resp any] struct {
	id string
	r  *Registry[Req, Resp]
	e  *entry[Req, Resp]
}

// ID returns the request ID.
func (t *Ticket[Req, Resp]) ID() string { return t.id }

// Register adds a pending request. The caller must call Wait (or Cancel)
// so the entry is removed.
func (r *Registry[Req, Resp]) Register(id string, req Req) (*Ticket[Req, Resp], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	if r.max > 0 && len(r.entries) >= r.max {
		return nil, fmt.Errorf("%w: %d requests pending", ErrFull, len(r.entries))
	}
	e := &entry[Req, Resp]{
		request:   req,
		createdAt: r.clock.Now(),
		done:      make(chan Resp, 1),
		cancelled: make(chan struct{}),
	}
	r.entries[id] = e
	return &Ticket[Req, Resp]{id: id, r: r, e: e}, nil
}

// Wait blocks until the request is resolved, times out, is cancelled, or
// ctx is done. The entry is removed from the registry in every case. A
// response that Resolve accepted is always returned, even if the timeout
// or ctx fired at the same moment.
func (t *Ticket[Req, Resp]) Wait(ctx context.Context) (Resp, error) {
	defer t.r.remove(t.id, t.e)

	var timeout <-chan time.Time
	if t.r.timeout > 0 {
		timer := t.r.clock.NewTimer(t.r.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var zero Resp
	var expired error
	select {
	case resp := <-t.e.done:
		return resp, nil
	case <-t.e.cancelled:
		return zero, ErrCancelled
	case <-timeout:
		expired = fmt.Errorf("%w after %s", ErrTimeout, t.r.timeout)
	case <-ctx.Done():
		expired = ctx.Err()
	}

	if !t.r.remove(t.id, t.e) {
		// Resolve or Cancel claimed the entry first; its outcome is already
		// being delivered.
		select {
		case resp := <-t.e.done:
			return resp, nil
		case <-t.e.cancelled:
			return zero, ErrCancelled
		}
	}
	if errors.Is(expired, ErrTimeout) {
		t.r.logger.Warn("pending request timed out", "request_id", t.id, "timeout", t.r.timeout)
	}
	return zero, expired
}

// Resolve delivers resp to the waiter for id and removes the entry. It
// returns false when no request with that id is pending.
func (r *Registry[Req, Resp]) Resolve(id string, resp Resp) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	e.once.Do(func() { e.done <- resp })
	return true
}

// Cancel wakes the waiter for id with ErrCancelled. It returns false when
// no request with that id is pending.
func (r *Registry[Req, Resp]) Cancel(id string) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	e.once.Do(func() { close(e.cancelled) })
	return true
}

// Pending returns the outstanding requests, oldest first.
func (r *Registry[Req, Resp]) Pending() []Req {
	r.mu.Lock()
	type item struct {
		at  time.Time
		id  string
		req Req
	}
	items := make([]item, 0, len(r.entries))
	for id, e := range r.entries {
		items = append(items, item{at: e.createdAt, id: id, req: e.request})
	}
	r.mu.Unlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].at.Equal(items[j].at) {
			return items[i].id < items[j].id
		}
		return items[i].at.Before(items[j].at)
	})
	out := make([]Req, len(items))
	for i, it := range items {
		out[i] = it.req
	}
	return out
}

// Len returns the number of outstanding requests.
func (r *Registry[Req, Resp]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// remove deletes id only if it still maps to e, and reports whether it did.
func (r *Registry[Req, Resp]) remove(id string, e *entry[Req, Resp]) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.entries[id]; ok && cur == e {
		delete(r.entries, id)
		return true
	}
	return false
}
