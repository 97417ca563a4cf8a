package clock

import "time"

var (
	Time Clock = &realClock{}
)

// Clock provides the current time. Snapshot envelopes are stamped through
// this interface so tests can substitute a deterministic implementation.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (c *realClock) Now() time.Time {
	return time.Now()
}

// Fixed returns a clock that always reports t.
func Fixed(t time.Time) Clock {
	return &fixedClock{t}
}

type fixedClock struct {
	t time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.t
}
