package iq

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func cleanFrame(n int) []complex64 {
	frame := make([]complex64, n)
	for i := range frame {
		frame[i] = complex(0.1, -0.1)
	}
	return frame
}

func TestMixerPassThroughWhenInactive(t *testing.T) {
	m := NewMixer(1024000, zerolog.Nop())
	require.Equal(t, JamNone, m.Active())

	frame := cleanFrame(64)
	out := m.Mix(frame)
	// No jamming: the input slice passes through untouched.
	require.Equal(t, &frame[0], &out[0])
}

func TestMixerClearRestoresBitExactPassThrough(t *testing.T) {
	m := NewMixer(1024000, zerolog.Nop())
	frame := cleanFrame(64)

	m.Set(JamCW, -20)
	jammed := m.Mix(frame)
	require.NotEqual(t, frame, jammed)

	m.Clear()
	out := m.Mix(frame)
	for i := range frame {
		require.Equal(t, frame[i], out[i], "sample %d", i)
	}
}

func TestMixerAmplitudeFollowsPower(t *testing.T) {
	m := NewMixer(1024000, zerolog.Nop())
	silence := make([]complex64, 256)

	energy := func(frame []complex64) float64 {
		var sum float64
		for _, s := range frame {
			sum += float64(real(s))*float64(real(s)) + float64(imag(s))*float64(imag(s))
		}
		return sum
	}

	m.Set(JamCW, -10)
	loud := energy(m.Mix(silence))

	m.Set(JamCW, -30)
	quiet := energy(m.Mix(silence))

	// 20 dB apart: a factor of 100 in power.
	require.Greater(t, loud, quiet*50)
	require.Less(t, loud, quiet*200)
}

func TestMixerDoesNotMutateInput(t *testing.T) {
	m := NewMixer(1024000, zerolog.Nop())
	m.Set(JamNoise, -20)

	frame := cleanFrame(32)
	orig := append([]complex64(nil), frame...)
	_ = m.Mix(frame)
	require.Equal(t, orig, frame)
}

func TestMixerAllKindsProduceEnergy(t *testing.T) {
	m := NewMixer(1024000, zerolog.Nop())
	silence := make([]complex64, 8192)

	for _, kind := range []JammingKind{JamCW, JamNoise, JamSweep, JamPulse, JamChirp} {
		m.Set(kind, -20)
		require.Equal(t, kind, m.Active())

		out := m.Mix(silence)
		var sum float64
		for _, s := range out {
			sum += math.Abs(float64(real(s))) + math.Abs(float64(imag(s)))
		}
		require.Greater(t, sum, 0.0, "kind %s produced silence", kind)
	}
}

func TestMixerPulseIsGated(t *testing.T) {
	m := NewMixer(1024000, zerolog.Nop())
	m.Set(JamPulse, 0)

	out := m.Mix(make([]complex64, pulsePeriod*2))
	// Inside the pulse: energy. In the off interval: nothing.
	require.NotEqual(t, complex64(0), out[0])
	require.Equal(t, complex64(0), out[pulseWidth+10])
	require.NotEqual(t, complex64(0), out[pulsePeriod])
}
