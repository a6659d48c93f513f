// ABOUTME: Immutable versioned interaction snapshots and the Handle used to advance them
// ABOUTME: Each update produces a new snapshot with the next version; nothing is mutated in place

package interaction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Status is the progress state of an interaction.
type Status string

const (
	StatusPreparing   Status = "PREPARING"
	StatusAuthorizing Status = "REQUESTING AUTHORIZATION"
	StatusExecuting   Status = "EXECUTING"
	StatusSimulating  Status = "SIMULATING"
	StatusProving     Status = "PROVING"
	StatusSending     Status = "SENDING"
	StatusSuccess     Status = "SUCCESS"
	StatusError       Status = "ERROR"
)

// ErrComplete is returned when updating an interaction that already completed.
var ErrComplete = errors.New("interaction already complete")

// Interaction is one immutable snapshot of a wallet action's progress.
type Interaction struct {
	ID          string    `json:"id"`
	Version     int       `json:"version"`
	AppID       string    `json:"appId"`
	Type        string    `json:"type"`
	Status      Status    `json:"status"`
	Complete    bool      `json:"complete"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Update describes the next snapshot. Empty Status, Title and Description
// keep the previous values.
type Update struct {
	Status      Status
	Complete    bool
	Title       string
	Description string
}

// apply returns the snapshot that follows prev.
func (u Update) apply(prev Interaction, now time.Time) Interaction {
	next := prev
	next.Version = prev.Version + 1
	next.Timestamp = now
	if u.Status != "" {
		next.Status = u.Status
	}
	if u.Title != "" {
		next.Title = u.Title
	}
	if u.Description != "" {
		next.Description = u.Description
	}
	next.Complete = u.Complete
	return next
}

// Handle is the owner-side reference to one interaction. Updates are
// serialized; each one is recorded before the next begins.
type Handle struct {
	mu      sync.Mutex
	current Interaction
	tracker *Tracker
}

// ID returns the interaction id.
func (h *Handle) ID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current.ID
}

// Snapshot returns the latest snapshot.
func (h *Handle) Snapshot() Interaction {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Update records and publishes the next snapshot and returns it.
func (h *Handle) Update(ctx context.Context, u Update) (Interaction, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.current.Complete {
		return h.current, fmt.Errorf("%w: %s", ErrComplete, h.current.ID)
	}
	next := u.apply(h.current, h.tracker.clock.Now())
	if err := h.tracker.record(ctx, next); err != nil {
		return h.current, err
	}
	h.current = next
	return next, nil
}

// Fail marks the interaction as ERROR with err's message. It is a no-op on
// completed interactions. The snapshot is written even when ctx is already
// cancelled or past its deadline.
func (h *Handle) Fail(ctx context.Context, err error) {
	if h.Snapshot().Complete {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if _, uerr := h.Update(ctx, Update{Status: StatusError, Complete: true, Description: err.Error()}); uerr != nil {
		h.tracker.logger.Warn("failed to record interaction error",
			"interaction_id", h.ID(),
			"error", uerr,
		)
	}
}
