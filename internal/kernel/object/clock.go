package object

import (
	"time"

	"github.com/meshx-org/fiber/internal/fx"
)

var bootTime = time.Now()

// Monotonic returns nanoseconds since the kernel package was loaded
func Monotonic() fx.Time {
	return fx.Time(time.Since(bootTime))
}

// WallDeadline converts a monotonic deadline to wall-clock time. The
// second result is false for an infinite deadline.
func WallDeadline(deadline fx.Time) (time.Time, bool) {
	if deadline == fx.TimeInfinite {
		return time.Time{}, false
	}
	if deadline <= 0 {
		return bootTime, true
	}
	return bootTime.Add(time.Duration(deadline)), true
}
