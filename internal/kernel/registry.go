package kernel

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/meshx-org/fiber/internal/fx"
)

// ProgramInfo describes a registered program
type ProgramInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Program is code a process can be started with. Run receives the
// process's syscall surface and the handle passed to process_start, and
// its result becomes the process's exit code.
type Program interface {
	Definition() ProgramInfo
	Run(ctx context.Context, sys *System, arg fx.Handle) int64
}

// ProgramFunc adapts a function to Program
type ProgramFunc struct {
	Info ProgramInfo
	Fn   func(ctx context.Context, sys *System, arg fx.Handle) int64
}

func (p ProgramFunc) Definition() ProgramInfo { return p.Info }

func (p ProgramFunc) Run(ctx context.Context, sys *System, arg fx.Handle) int64 {
	return p.Fn(ctx, sys, arg)
}

// Registry maps program names to programs
type Registry struct {
	programs sync.Map
}

// NewRegistry creates an empty program registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a program. Registering a name twice replaces the first.
func (r *Registry) Register(program Program) error {
	def := program.Definition()
	if def.Name == "" {
		return fmt.Errorf("program name cannot be empty")
	}
	r.programs.Store(def.Name, program)
	return nil
}

// Unregister removes a program
func (r *Registry) Unregister(name string) {
	r.programs.Delete(name)
}

// Get retrieves a program by name
func (r *Registry) Get(name string) (Program, bool) {
	val, ok := r.programs.Load(name)
	if !ok {
		return nil, false
	}
	return val.(Program), true
}

// List returns every registered program, sorted by name
func (r *Registry) List() []ProgramInfo {
	var programs []ProgramInfo
	r.programs.Range(func(_, value any) bool {
		programs = append(programs, value.(Program).Definition())
		return true
	})
	sort.Slice(programs, func(i, j int) bool {
		return programs[i].Name < programs[j].Name
	})
	return programs
}
