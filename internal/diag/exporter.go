// ABOUTME: Publishes encoded diagnostic bundles to subscribers and keeps the most recent ones
// ABOUTME: Exports are fire-and-forget; a missing subscriber never fails the caller

package diag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/wallet-gateway/internal/clock"
	"github.com/2389/wallet-gateway/internal/events"
)

// ErrNotRetained is returned by Get for ids that were never captured or
// have been pushed out by newer exports.
var ErrNotRetained = errors.New("diagnostic not retained")

// DefaultRetain is how many exports an Exporter keeps when none is configured.
const DefaultRetain = 32

// Export is a published bundle. Data is the output of Encode.
type Export struct {
	ID            string `json:"id"`
	AppID         string `json:"appId"`
	Method        string `json:"method"`
	InteractionID string `json:"interactionId"`
	Data          []byte `json:"data"`
}

// Exporter captures bundles and publishes them on the app's topic.
type Exporter struct {
	bus    *events.Broadcaster[Export]
	clock  clock.Clock
	ids    clock.Generator
	logger *slog.Logger
	retain int

	mu     sync.Mutex
	recent []Export
}

// NewExporter creates an Exporter. retain <= 0 means DefaultRetain.
func NewExporter(bus *events.Broadcaster[Export], clk clock.Clock, ids clock.Generator, retain int, logger *slog.Logger) *Exporter {
	if clk == nil {
		clk = clock.Real()
	}
	if ids == nil {
		ids = clock.UUIDGenerator{}
	}
	if retain <= 0 {
		retain = DefaultRetain
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		bus:    bus,
		clock:  clk,
		ids:    ids,
		retain: retain,
		logger: logger.With("component", "diag"),
	}
}

// Capture stamps b with an id and time, encodes it, publishes it and
// returns the id.
func (e *Exporter) Capture(ctx context.Context, b Bundle) (string, error) {
	b.Version = FormatVersion
	b.ID = e.ids.NewID()
	b.CapturedAt = e.clock.Now()

	data, err := Encode(b)
	if err != nil {
		return "", err
	}
	exp := Export{
		ID:            b.ID,
		AppID:         b.AppID,
		Method:        b.Method,
		InteractionID: b.InteractionID,
		Data:          data,
	}

	e.mu.Lock()
	e.recent = append(e.recent, exp)
	if len(e.recent) > e.retain {
		e.recent = e.recent[len(e.recent)-e.retain:]
	}
	e.mu.Unlock()

	delivered := 0
	if e.bus != nil {
		delivered = e.bus.Publish(b.AppID, exp)
	}
	e.logger.ErrorContext(ctx, "exported execution diagnostics",
		"diagnostic_id", b.ID,
		"app_id", b.AppID,
		"method", b.Method,
		"interaction_id", b.InteractionID,
		"error", b.Error,
		"bytes", len(data),
		"subscribers", delivered,
	)
	return b.ID, nil
}

// Get returns a retained export by id.
func (e *Exporter) Get(id string) (Export, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, exp := range e.recent {
		if exp.ID == id {
			return exp, nil
		}
	}
	return Export{}, fmt.Errorf("%w: %s", ErrNotRetained, id)
}
