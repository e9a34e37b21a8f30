package kernel

import (
	"context"

	"go.uber.org/zap"

	"github.com/meshx-org/fiber/internal/fx"
	"github.com/meshx-org/fiber/internal/infrastructure/config"
	"github.com/meshx-org/fiber/internal/infrastructure/logging"
	"github.com/meshx-org/fiber/internal/infrastructure/monitoring"
	"github.com/meshx-org/fiber/internal/infrastructure/tracing"
	"github.com/meshx-org/fiber/internal/kernel/object"
	"github.com/meshx-org/fiber/internal/shared/id"
)

// Options configures a kernel. Logger, Metrics and Tracer may be nil.
type Options struct {
	Config   config.KernelConfig
	Logger   *zap.Logger
	Metrics  *monitoring.Metrics
	Tracer   *tracing.Tracer
	Programs *Registry
}

// Kernel owns the handle arena and the job tree, and hands out syscall
// surfaces bound to processes.
type Kernel struct {
	cfg      config.KernelConfig
	bootID   id.BootID
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	tracer   *tracing.Tracer
	programs *Registry

	arena   *object.Arena
	rootJob *object.JobDispatcher
}

// New creates a kernel with an empty root job
func New(opts Options) *Kernel {
	logger := logging.OrNop(opts.Logger).Named("kernel")
	programs := opts.Programs
	if programs == nil {
		programs = NewRegistry()
	}

	cfg := opts.Config
	if cfg.MaxHandles == 0 {
		cfg.MaxHandles = object.DefaultArenaCapacity
	}
	if cfg.RootJobMaxHeight == 0 {
		cfg.RootJobMaxHeight = 32
	}

	k := &Kernel{
		cfg:      cfg,
		bootID:   id.NewBootID(),
		logger:   logger,
		metrics:  opts.Metrics,
		tracer:   opts.Tracer,
		programs: programs,
	}
	k.arena = object.NewArena(object.ArenaConfig{
		Capacity:     cfg.MaxHandles,
		WarnInterval: cfg.HandleWarnInterval,
	}, logger, opts.Metrics)
	k.rootJob = object.NewRootJob(cfg.RootJobMaxHeight, opts.Metrics)
	k.rootJob.SetName("root")

	logger.Info("kernel created",
		zap.Stringer("boot_id", k.bootID),
		zap.Uint32("max_handles", cfg.MaxHandles),
		zap.Uint32("root_job_max_height", cfg.RootJobMaxHeight),
	)
	return k
}

func (k *Kernel) BootID() id.BootID              { return k.bootID }
func (k *Kernel) Logger() *zap.Logger            { return k.logger }
func (k *Kernel) Metrics() *monitoring.Metrics   { return k.metrics }
func (k *Kernel) Tracer() *tracing.Tracer        { return k.tracer }
func (k *Kernel) Programs() *Registry            { return k.programs }
func (k *Kernel) Arena() *object.Arena           { return k.arena }
func (k *Kernel) RootJob() *object.JobDispatcher { return k.rootJob }
func (k *Kernel) Config() config.KernelConfig    { return k.cfg }

// NewProcess creates a process in job wired to the kernel's arena, logger
// and metrics.
func (k *Kernel) NewProcess(job *object.JobDispatcher, name string) (*object.ProcessDispatcher, fx.Status) {
	return object.NewProcess(job, name, object.ProcessOptions{
		Arena:   k.arena,
		Logger:  k.logger,
		Metrics: k.metrics,
	})
}

// System binds the syscall surface to p
func (k *Kernel) System(p *object.ProcessDispatcher) *System {
	ctx := context.Background()
	if k.tracer != nil {
		ctx = tracing.ContextWithTrace(ctx, id.NewTraceID(), "")
	}
	return &System{
		k:      k,
		proc:   p,
		table:  p.HandleTable(),
		ctx:    ctx,
		logger: k.logger.With(logging.Koid("pid", p.Koid())),
	}
}

// StartProcess starts p running program with arg installed in its table.
// arg is consumed even when the call fails.
func (k *Kernel) StartProcess(p *object.ProcessDispatcher, program Program, arg *object.Handle) fx.Status {
	sys := k.System(p)
	return p.Start(arg, func(ctx context.Context, argValue fx.Handle) int64 {
		return program.Run(ctx, sys, argValue)
	})
}

// Shutdown kills every process and job in the kernel
func (k *Kernel) Shutdown() {
	k.logger.Info("kernel shutting down")
	k.rootJob.Kill(fx.TaskRetcodeSyscallKill)
}
