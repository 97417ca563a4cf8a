package testutil

import "time"

var defaultStart = time.Date(2019, 9, 20, 14, 0, 0, 0, time.UTC)

// Clock implements clock.Clock deterministically: every call to Now
// advances the previous value by the configured step, starting from
// Start. Envelopes stamped through it are therefore strictly ordered.
type Clock struct {
	Start time.Time
	step  time.Duration
	last  time.Time
}

// Now implements clock.Clock.
func (c *Clock) Now() time.Time {
	if c.last.IsZero() {
		c.last = c.Start
	} else {
		c.last = c.last.Add(c.step)
	}
	return c.last
}

func NewClock(step time.Duration) *Clock {
	return &Clock{
		Start: defaultStart,
		step:  step,
	}
}
