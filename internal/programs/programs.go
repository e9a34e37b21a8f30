package programs

import (
	"errors"
	"fmt"

	"github.com/meshx-org/fiber/internal/fx"
	"github.com/meshx-org/fiber/internal/kernel"
)

// All returns the built-in programs
func All() []kernel.Program {
	return []kernel.Program{
		NewEcho(),
		NewPing(),
	}
}

// Register adds the built-in programs to r
func Register(r *kernel.Registry) error {
	for _, p := range All() {
		if err := r.Register(p); err != nil {
			return fmt.Errorf("register %s: %w", p.Definition().Name, err)
		}
	}
	return nil
}

func exitCode(err error) int64 {
	var status fx.Status
	if errors.As(err, &status) {
		return int64(status)
	}
	return int64(fx.ErrInternal)
}
