package diag

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/wallet-gateway/internal/clock"
	"github.com/2389/wallet-gateway/internal/events"
)

func sampleBundle() Bundle {
	return Bundle{
		AppID:         "app1",
		Method:        "sendTx",
		InteractionID: "int-1",
		Error:         "proving failed: constraint 17",
		CapturedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Trace: map[string]any{
			"circuit": "transfer",
			"steps":   []any{"witgen", "prove"},
		},
	}
}

func TestEncodeDecode(t *testing.T) {
	data, err := Encode(sampleBundle())
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, got.Version)
	assert.Equal(t, "sendTx", got.Method)
	assert.Equal(t, "proving failed: constraint 17", got.Error)
	assert.True(t, got.CapturedAt.Equal(sampleBundle().CapturedAt))
	assert.Equal(t, "transfer", got.Trace["circuit"])
	assert.Equal(t, []any{"witgen", "prove"}, got.Trace["steps"])
}

func TestEncodeIsDeterministic(t *testing.T) {
	a, err := Encode(sampleBundle())
	require.NoError(t, err)
	b, err := Encode(sampleBundle())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not zstd"))
	require.Error(t, err)
}

func TestDecodeRejectsOtherVersions(t *testing.T) {
	b := sampleBundle()
	b.Version = 99
	data, err := Encode(b)
	require.NoError(t, err)

	_, err = Decode(data)
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestExporter_CapturePublishes(t *testing.T) {
	bus := events.NewBroadcaster[Export]("diagnostics", nil)
	t.Cleanup(bus.Close)
	clk := clock.Fake(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	exp := NewExporter(bus, clk, clock.NewSequence("diag"), 2, nil)

	ch, _ := bus.Subscribe(t.Context(), "app1")

	id, err := exp.Capture(context.Background(), sampleBundle())
	require.NoError(t, err)
	assert.Equal(t, "diag-1", id)

	published := <-ch
	assert.Equal(t, "diag-1", published.ID)
	assert.Equal(t, "int-1", published.InteractionID)

	b, err := Decode(published.Data)
	require.NoError(t, err)
	assert.Equal(t, "diag-1", b.ID)
	assert.True(t, b.CapturedAt.Equal(clk.Now()))
}

func TestExporter_RetainsMostRecent(t *testing.T) {
	exp := NewExporter(nil, nil, clock.NewSequence("diag"), 2, nil)
	ctx := context.Background()
	for range 3 {
		_, err := exp.Capture(ctx, sampleBundle())
		require.NoError(t, err)
	}

	_, err := exp.Get("diag-1")
	require.ErrorIs(t, err, ErrNotRetained)
	got, err := exp.Get("diag-3")
	require.NoError(t, err)
	assert.Equal(t, "app1", got.AppID)
}
