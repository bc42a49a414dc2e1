package iq

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rangeops/excon/internal/bus"
)

const testTopic = "apex/team/sdr-rf/injects"

func newControlledPipeline(t *testing.T) (*Producer, *Mixer, *bus.MemoryBus) {
	t.Helper()
	p, err := NewProducer(writeIQFile(t, 16), testRate, 4, zerolog.Nop())
	require.NoError(t, err)
	m := NewMixer(testRate, zerolog.Nop())

	b := bus.NewMemoryBus()
	c := NewController(p, m, zerolog.Nop())
	require.NoError(t, c.Attach(b, testTopic))
	return p, m, b
}

func trigger(t *testing.T, b *bus.MemoryBus, command string, params map[string]any) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":   "inj-sdr",
		"type": "trigger",
		"content": map[string]any{
			"command":    command,
			"parameters": params,
		},
	})
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), testTopic, payload, bus.AtLeastOnce))
}

func TestControllerPlaybackCommands(t *testing.T) {
	p, _, b := newControlledPipeline(t)

	trigger(t, b, "play", nil)
	require.Equal(t, PlayPlaying, p.State())

	trigger(t, b, "pause", nil)
	require.Equal(t, PlayPaused, p.State())

	trigger(t, b, "stop", nil)
	require.Equal(t, PlayStopped, p.State())
}

func TestControllerJammingCommands(t *testing.T) {
	_, m, b := newControlledPipeline(t)

	trigger(t, b, "jamming_cw", map[string]any{"power_db": -10.0})
	require.Equal(t, JamCW, m.Active())

	trigger(t, b, "jamming_noise", nil) // default power applies
	require.Equal(t, JamNoise, m.Active())

	trigger(t, b, "jamming_sweep", nil)
	require.Equal(t, JamSweep, m.Active())

	trigger(t, b, "jamming_pulse", nil)
	require.Equal(t, JamPulse, m.Active())

	trigger(t, b, "jamming_chirp", nil)
	require.Equal(t, JamChirp, m.Active())

	trigger(t, b, "jamming_clear", nil)
	require.Equal(t, JamNone, m.Active())
}

func TestControllerSwitchIQ(t *testing.T) {
	p, _, b := newControlledPipeline(t)
	p.Play()
	_, err := p.NextChunk(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, 0, p.Position())

	other := writeIQFile(t, 8)
	trigger(t, b, "switch_iq", map[string]any{"file": other})
	require.Equal(t, 0, p.Position())
	require.Equal(t, PlayPlaying, p.State())
}

func TestControllerIgnoresNonTriggersAndUnknowns(t *testing.T) {
	p, m, b := newControlledPipeline(t)

	// A non-trigger inject on the same topic must not touch the pipeline.
	payload, _ := json.Marshal(map[string]any{
		"type":    "email",
		"content": map[string]any{"command": "play"},
	})
	require.NoError(t, b.Publish(context.Background(), testTopic, payload, bus.AtLeastOnce))
	require.Equal(t, PlayStopped, p.State())

	trigger(t, b, "self_destruct", nil)
	require.Equal(t, PlayStopped, p.State())
	require.Equal(t, JamNone, m.Active())

	// Garbage payloads are logged and dropped.
	require.NoError(t, b.Publish(context.Background(), testTopic, []byte("{nope"), bus.AtLeastOnce))
}
