package iq

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// Stream runs the producer → mixer → broadcaster loop until ctx is
// canceled. Nil chunks (stopped or paused playback) are skipped; the
// producer's internal backoff paces the idle loop.
func Stream(ctx context.Context, producer *Producer, mixer *Mixer, broadcaster *Broadcaster, logger zerolog.Logger) error {
	for {
		chunk, err := producer.NextChunk(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			logger.Error().Err(err).Msg("producer read failed")
			return err
		}
		if chunk == nil {
			continue
		}
		broadcaster.Broadcast(mixer.Mix(chunk))
	}
}
