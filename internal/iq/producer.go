// Package iq implements the RF sample pipeline: a real-time paced sample
// producer, a jamming signal mixer and an rtl-tcp fan-out server.
package iq

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrProducerIO wraps sample file load failures.
var ErrProducerIO = errors.New("iq: producer io error")

// PlayState is the producer's playback state.
type PlayState int

const (
	PlayStopped PlayState = iota
	PlayPlaying
	PlayPaused
)

const pausedBackoff = 100 * time.Millisecond

// Producer reads complex64 samples from a file into memory and hands out
// fixed-size frames at real-time rate, wrapping seamlessly at end-of-file.
type Producer struct {
	sampleRate int
	chunkSize  int
	limiter    *rate.Limiter
	logger     zerolog.Logger

	mu       sync.Mutex
	samples  []complex64
	position int
	state    PlayState
}

// NewProducer creates a producer for the given file. The file is loaded
// eagerly so a missing or truncated file fails fast.
func NewProducer(path string, sampleRate, chunkSize int, logger zerolog.Logger) (*Producer, error) {
	samples, err := loadSamples(path)
	if err != nil {
		return nil, err
	}
	logger.Info().
		Str("file", path).
		Int("samples", len(samples)).
		Float64("seconds", float64(len(samples))/float64(sampleRate)).
		Msg("IQ file loaded")

	return &Producer{
		sampleRate: sampleRate,
		chunkSize:  chunkSize,
		limiter:    rate.NewLimiter(rate.Limit(sampleRate), chunkSize),
		logger:     logger,
		samples:    samples,
	}, nil
}

// loadSamples reads a file of little-endian float32 I/Q pairs (8 bytes per
// complex sample).
func loadSamples(path string) ([]complex64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrProducerIO, path, err)
	}
	if len(data) == 0 || len(data)%8 != 0 {
		return nil, fmt.Errorf("%w: %s: size %d is not a positive multiple of 8", ErrProducerIO, path, len(data))
	}

	samples := make([]complex64, len(data)/8)
	for i := range samples {
		re := math.Float32frombits(binary.LittleEndian.Uint32(data[i*8:]))
		im := math.Float32frombits(binary.LittleEndian.Uint32(data[i*8+4:]))
		samples[i] = complex(re, im)
	}
	return samples, nil
}

// NextChunk returns the next frame of samples at real-time pace, or nil
// after a short backoff when playback is stopped or paused. Frames are
// always full-length: a read reaching end-of-file wraps to position zero.
func (p *Producer) NextChunk(ctx context.Context) ([]complex64, error) {
	p.mu.Lock()
	if p.state != PlayPlaying {
		p.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pausedBackoff):
			return nil, nil
		}
	}

	chunk := make([]complex64, p.chunkSize)
	for filled := 0; filled < p.chunkSize; {
		n := copy(chunk[filled:], p.samples[p.position:])
		filled += n
		p.position += n
		if p.position >= len(p.samples) {
			p.position = 0
		}
	}
	p.mu.Unlock()

	if err := p.limiter.WaitN(ctx, len(chunk)); err != nil {
		return nil, err
	}
	return chunk, nil
}

// Play starts (or resumes) playback.
func (p *Producer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = PlayPlaying
	p.logger.Info().Msg("playback started")
}

// Pause suspends playback without losing position.
func (p *Producer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == PlayPlaying {
		p.state = PlayPaused
		p.logger.Info().Msg("playback paused")
	}
}

// Stop halts playback and rewinds to the start of the file.
func (p *Producer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = PlayStopped
	p.position = 0
	p.logger.Info().Msg("playback stopped")
}

// State returns the current playback state.
func (p *Producer) State() PlayState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Position returns the current sample position; always within
// [0, len(samples)).
func (p *Producer) Position() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

// SwitchFile loads a different sample file mid-stream. Playback state is
// preserved; position restarts at zero.
func (p *Producer) SwitchFile(path string) error {
	samples, err := loadSamples(path)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.samples = samples
	p.position = 0
	p.mu.Unlock()
	p.logger.Info().Str("file", path).Int("samples", len(samples)).Msg("switched IQ file")
	return nil
}
