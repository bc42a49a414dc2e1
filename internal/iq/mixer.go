package iq

import (
	"math"
	"math/rand"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// JammingKind selects the jamming waveform.
type JammingKind string

const (
	JamNone  JammingKind = "none"
	JamCW    JammingKind = "cw"
	JamNoise JammingKind = "noise"
	JamSweep JammingKind = "sweep"
	JamPulse JammingKind = "pulse"
	JamChirp JammingKind = "chirp"
)

// Reference waveform parameters.
const (
	cwOffsetHz   = 50_000    // CW tone offset
	sweepRateHz  = 1_000_000 // sweep rate per second
	chirpRateHz  = 500_000   // chirp rate per second
	pulseWidth   = 1024      // samples on
	pulsePeriod  = 4096      // samples per on/off cycle
	pulseCarrier = 0.1       // cycles per sample
)

// jamming is an immutable mode snapshot. The mixer swaps the whole value
// atomically so a frame never sees a half-updated (kind, amplitude) pair.
type jamming struct {
	kind      JammingKind
	amplitude float64
}

// Mixer adds a synthesized jamming waveform onto clean frames. Mode updates
// are safe to call concurrently with Mix and take effect on the next frame.
type Mixer struct {
	sampleRate int
	mode       atomic.Pointer[jamming]
	rng        *rand.Rand
	logger     zerolog.Logger
}

func NewMixer(sampleRate int, logger zerolog.Logger) *Mixer {
	m := &Mixer{
		sampleRate: sampleRate,
		rng:        rand.New(rand.NewSource(rand.Int63())),
		logger:     logger,
	}
	m.mode.Store(&jamming{kind: JamNone})
	return m
}

// Set enables jamming of the given kind. The linear amplitude is derived
// from the dB setting as 10^(dB/20).
func (m *Mixer) Set(kind JammingKind, powerDB float64) {
	amp := math.Pow(10, powerDB/20)
	m.mode.Store(&jamming{kind: kind, amplitude: amp})
	m.logger.Info().
		Str("kind", string(kind)).
		Float64("power_db", powerDB).
		Msg("jamming enabled")
}

// Clear disables jamming.
func (m *Mixer) Clear() {
	m.mode.Store(&jamming{kind: JamNone})
	m.logger.Info().Msg("jamming cleared")
}

// Active returns the current jamming kind.
func (m *Mixer) Active() JammingKind {
	return m.mode.Load().kind
}

// Mix returns the frame with the active jamming waveform added, or the
// input unchanged when no jamming is active. The mode is read once per
// frame.
func (m *Mixer) Mix(frame []complex64) []complex64 {
	mode := m.mode.Load()
	if mode.kind == JamNone || len(frame) == 0 {
		return frame
	}

	jam := m.generate(len(frame), mode.kind)
	amp := complex(float32(mode.amplitude), 0)

	out := make([]complex64, len(frame))
	for i := range frame {
		out[i] = frame[i] + jam[i]*amp
	}
	return out
}

func (m *Mixer) generate(n int, kind JammingKind) []complex64 {
	out := make([]complex64, n)
	fs := float64(m.sampleRate)

	switch kind {
	case JamCW:
		// Pure tone at a fixed frequency offset.
		for i := range out {
			t := float64(i) / fs
			out[i] = cis(2 * math.Pi * cwOffsetHz * t)
		}
		scale(out, 0.5)
	case JamNoise:
		for i := range out {
			out[i] = complex(float32(m.rng.NormFloat64()*0.5), float32(m.rng.NormFloat64()*0.5))
		}
	case JamSweep:
		// Instantaneous frequency grows linearly with time.
		for i := range out {
			t := float64(i) / fs
			freq := sweepRateHz * t
			out[i] = cis(2 * math.Pi * freq * t)
		}
		scale(out, 0.5)
	case JamPulse:
		// On/off gated low-rate carrier.
		for i := range out {
			if i%pulsePeriod < pulseWidth {
				out[i] = cis(2 * math.Pi * pulseCarrier * float64(i))
			}
		}
		scale(out, 0.7)
	case JamChirp:
		// Linear FM: quadratic phase at a constant chirp rate.
		for i := range out {
			t := float64(i) / fs
			out[i] = cis(2 * math.Pi * 0.5 * chirpRateHz * t * t)
		}
		scale(out, 0.5)
	}
	return out
}

// cis returns e^(i*phase) as a complex64.
func cis(phase float64) complex64 {
	s, c := math.Sincos(phase)
	return complex(float32(c), float32(s))
}

func scale(frame []complex64, k float32) {
	f := complex(k, 0)
	for i := range frame {
		frame[i] *= f
	}
}
