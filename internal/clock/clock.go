package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts wall time so rate resolution and reconciliation can be
// tested against fixed instants.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

// Now returns the current time in UTC. All persisted timestamps and
// effective-date comparisons are UTC throughout.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

var Module = fx.Module("clock",
	fx.Provide(func() Clock { return NewSystemClock() }),
)
