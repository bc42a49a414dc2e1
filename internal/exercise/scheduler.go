package exercise

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rangeops/excon/internal/bus"
	"github.com/rangeops/excon/internal/metrics"
	"github.com/rangeops/excon/internal/scenario"
)

// delivery is one inject selected for publication on a tick.
type delivery struct {
	team   string
	inject *scenario.Inject
	at     int
}

// run is the scheduling task: one iteration per tick interval until the
// engine leaves the Running/Paused states.
func (e *Engine) run() {
	defer close(e.done)
	defer func() {
		if r := recover(); r != nil {
			e.crash(fmt.Errorf("scheduler panic: %v", r))
		}
	}()

	ticker := time.NewTicker(e.opts.TickInterval)
	defer ticker.Stop()

	for range ticker.C {
		if !e.tick() {
			return
		}
	}
}

// tick performs one scheduling pass. It returns false once the loop should
// exit. Due injects are selected and marked under the engine lock, then
// published outside it so control operations never wait on bus I/O.
func (e *Engine) tick() bool {
	now := time.Now()

	e.mu.Lock()
	switch e.state {
	case StatePaused:
		// Clock frozen; nothing advances.
		e.mu.Unlock()
		return true
	case StateRunning:
	default:
		e.mu.Unlock()
		return false
	}

	elapsed := e.clk.elapsedSeconds(now)
	timerUpdate := elapsed != e.lastEmitted
	if timerUpdate {
		e.lastEmitted = elapsed
	}

	var due []delivery
	for _, team := range e.scenario.Teams {
		tl := e.timelines[team.ID]
		if tl == nil {
			continue
		}
		for i := range tl.Injects {
			inj := &tl.Injects[i]
			if inj.Time > elapsed {
				// Sorted ascending; the rest is in the future.
				break
			}
			if _, done := e.delivered[inj.ID]; done {
				continue
			}
			// The delivery decision is made here, before the publish
			// attempt: a failed publish still counts as delivered.
			e.delivered[inj.ID] = struct{}{}
			due = append(due, delivery{team: team.ID, inject: inj, at: elapsed})
		}
	}
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), e.opts.TickInterval*10)
	defer cancel()

	if timerUpdate {
		e.publishTimer(ctx, elapsed, now)
	}
	for _, d := range due {
		e.publishInject(ctx, d)
	}

	metrics.TicksTotal.WithLabelValues(e.scenario.ID).Inc()
	return true
}

func (e *Engine) publishTimer(ctx context.Context, elapsed int, now time.Time) {
	topic := bus.TimerTopic(e.scenario.ID)
	payload, _ := json.Marshal(map[string]any{
		"elapsed":   elapsed,
		"formatted": fmt.Sprintf("T+%02d:%02d", elapsed/60, elapsed%60),
		"timestamp": float64(now.UnixMilli()) / 1000,
	})
	if err := e.bus.Publish(ctx, topic, payload, bus.BestEffort); err != nil {
		metrics.IncPublishFailure(topic)
		e.logger.Warn().Err(err).Int("elapsed", elapsed).Msg("timer publish failed")
	}
	e.store.PutTimer(ctx, e.scenario.ID, elapsed)
}

func (e *Engine) publishInject(ctx context.Context, d delivery) {
	topic := bus.FeedTopic(e.scenario.ID, d.team)

	// The original inject document, augmented with delivery metadata and
	// defaulted media/action fields.
	out := make(map[string]any, len(d.inject.Fields)+5)
	for k, v := range d.inject.Fields {
		out[k] = v
	}
	out["delivered_at"] = d.at
	out["team_id"] = d.team
	out["exercise_id"] = e.scenario.ID
	if _, ok := out["media"]; !ok {
		out["media"] = []any{}
	}
	if _, ok := out["action"]; !ok {
		out["action"] = nil
	}

	payload, err := json.Marshal(out)
	if err != nil {
		e.logger.Error().Err(err).Str("inject", d.inject.ID).Msg("inject marshal failed")
		return
	}

	if err := e.bus.Publish(ctx, topic, payload, bus.AtLeastOnce); err != nil {
		metrics.IncPublishFailure(topic)
		e.logger.Warn().Err(err).
			Str("inject", d.inject.ID).
			Str("team", d.team).
			Msg("inject publish failed")
	} else {
		e.logger.Info().
			Str("inject", d.inject.ID).
			Str("team", d.team).
			Int("elapsed", d.at).
			Msg("inject delivered")
	}

	e.store.MarkDelivered(ctx, e.scenario.ID, d.team, d.inject.ID)
	metrics.InjectsDeliveredTotal.WithLabelValues(e.scenario.ID, d.team).Inc()
}

// crash handles an unexpected scheduler failure: the engine transitions to
// Stopped, workers are purged, and the error surfaces on the next control
// operation.
func (e *Engine) crash(err error) {
	e.logger.Error().Err(err).Msg("scheduler failed, stopping exercise")

	e.mu.Lock()
	e.runErr = err
	e.state = StateStopped
	workers := e.workers
	e.workers = nil
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for i := len(workers) - 1; i >= 0; i-- {
		if derr := e.launcher.Destroy(ctx, workers[i]); derr != nil {
			e.logger.Error().Err(derr).Str("worker", workers[i].Name).Msg("worker destroy failed")
		}
	}
	e.store.Purge(ctx, e.scenario.ID)
}
