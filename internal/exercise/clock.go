package exercise

import "time"

// clock is the monotonic exercise clock. Elapsed time is the closed
// accumulated duration plus the open segment since startWall while running.
// Splitting the two fields keeps elapsed non-decreasing across any number of
// pause/resume cycles.
type clock struct {
	startWall   time.Time
	running     bool
	accumulated time.Duration
}

func (c *clock) begin(now time.Time) {
	c.accumulated = 0
	c.startWall = now
	c.running = true
}

func (c *clock) pause(now time.Time) {
	if !c.running {
		return
	}
	c.accumulated += now.Sub(c.startWall)
	c.running = false
}

func (c *clock) resume(now time.Time) {
	if c.running {
		return
	}
	c.startWall = now
	c.running = true
}

func (c *clock) elapsed(now time.Time) time.Duration {
	if c.running {
		return c.accumulated + now.Sub(c.startWall)
	}
	return c.accumulated
}

func (c *clock) elapsedSeconds(now time.Time) int {
	return int(c.elapsed(now) / time.Second)
}
