// ABOUTME: Tracker creates interactions, journals every snapshot and publishes it to watchers
// ABOUTME: Backed by store.InteractionStore so progress histories survive restarts

package interaction

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/wallet-gateway/internal/clock"
	"github.com/2389/wallet-gateway/internal/events"
	"github.com/2389/wallet-gateway/internal/store"
)

// Start describes a new interaction. It only carries raw call data.
type Start struct {
	AppID       string
	Type        string
	Title       string
	Description string
}

// Tracker owns the interaction journal.
type Tracker struct {
	store  store.InteractionStore
	bus    *events.Broadcaster[Interaction]
	clock  clock.Clock
	ids    clock.Generator
	logger *slog.Logger
}

// NewTracker creates a Tracker. bus may be nil when nobody watches progress.
func NewTracker(st store.InteractionStore, bus *events.Broadcaster[Interaction], clk clock.Clock, ids clock.Generator, logger *slog.Logger) *Tracker {
	if clk == nil {
		clk = clock.Real()
	}
	if ids == nil {
		ids = clock.UUIDGenerator{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		store:  st,
		bus:    bus,
		clock:  clk,
		ids:    ids,
		logger: logger.With("component", "interaction"),
	}
}

// Begin creates, records and publishes version 1 of a new interaction.
func (t *Tracker) Begin(ctx context.Context, s Start) (*Handle, error) {
	first := Interaction{
		ID:          t.ids.NewID(),
		Version:     1,
		AppID:       s.AppID,
		Type:        s.Type,
		Status:      StatusPreparing,
		Title:       s.Title,
		Description: s.Description,
		Timestamp:   t.clock.Now(),
	}
	if err := t.record(ctx, first); err != nil {
		return nil, err
	}
	return &Handle{current: first, tracker: t}, nil
}

// History returns every snapshot of an interaction, oldest first.
func (t *Tracker) History(ctx context.Context, id string) ([]Interaction, error) {
	recs, err := t.store.ListInteractionHistory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading interaction %s: %w", id, err)
	}
	return fromRecords(recs), nil
}

// List returns the latest snapshot of recent interactions, newest first.
func (t *Tracker) List(ctx context.Context, appID string, limit int) ([]Interaction, error) {
	recs, err := t.store.ListInteractions(ctx, appID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing interactions: %w", err)
	}
	return fromRecords(recs), nil
}

func (t *Tracker) record(ctx context.Context, snap Interaction) error {
	rec := &store.InteractionRecord{
		ID:          snap.ID,
		Version:     snap.Version,
		AppID:       snap.AppID,
		Type:        snap.Type,
		Status:      string(snap.Status),
		Complete:    snap.Complete,
		Title:       snap.Title,
		Description: snap.Description,
		Timestamp:   snap.Timestamp,
	}
	if err := t.store.AppendInteraction(ctx, rec); err != nil {
		return fmt.Errorf("recording interaction %s: %w", snap.ID, err)
	}
	if t.bus != nil {
		t.bus.Publish(snap.AppID, snap)
	}
	t.logger.Debug("interaction updated",
		"interaction_id", snap.ID,
		"version", snap.Version,
		"type", snap.Type,
		"status", snap.Status,
	)
	return nil
}

func fromRecords(recs []*store.InteractionRecord) []Interaction {
	out := make([]Interaction, len(recs))
	for i, r := range recs {
		out[i] = Interaction{
			ID:          r.ID,
			Version:     r.Version,
			AppID:       r.AppID,
			Type:        r.Type,
			Status:      Status(r.Status),
			Complete:    r.Complete,
			Title:       r.Title,
			Description: r.Description,
			Timestamp:   r.Timestamp,
		}
	}
	return out
}
