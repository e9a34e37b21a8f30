package kernel

import (
	"github.com/meshx-org/fiber/internal/fx"
	"github.com/meshx-org/fiber/internal/kernel/object"
)

// ClockGetMonotonic returns the time since boot
func (s *System) ClockGetMonotonic() fx.Time {
	return object.Monotonic()
}

// DeadlineAfter returns the monotonic time d from now, saturating at
// TimeInfinite.
func (s *System) DeadlineAfter(d fx.Duration) fx.Time {
	return object.Monotonic().Add(d)
}
