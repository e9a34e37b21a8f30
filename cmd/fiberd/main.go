package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meshx-org/fiber/internal/infrastructure/config"
	"github.com/meshx-org/fiber/internal/infrastructure/logging"
	"github.com/meshx-org/fiber/internal/infrastructure/monitoring"
	"github.com/meshx-org/fiber/internal/infrastructure/tracing"
	"github.com/meshx-org/fiber/internal/kernel"
	"github.com/meshx-org/fiber/internal/kernel/userboot"
	"github.com/meshx-org/fiber/internal/programs"
	"github.com/meshx-org/fiber/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flagSet := pflag.NewFlagSet("fiberd", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.Boot.Manifest, "manifest", cfg.Boot.Manifest, "boot manifest (.yaml, .yml or .toml); empty runs the ping demo")
	flagSet.StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "diagnostics server host")
	flagSet.StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "diagnostics server port")
	flagSet.BoolVar(&cfg.Server.Enabled, "http", cfg.Server.Enabled, "run the diagnostics server")
	flagSet.BoolVar(&cfg.Trace.Enabled, "trace", cfg.Trace.Enabled, "record syscall spans")
	flagSet.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "debug, info, warn or error")
	flagSet.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "development logging")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	manifest, err := loadManifest(cfg.Boot.Manifest)
	if err != nil {
		return err
	}

	var tracer *tracing.Tracer
	if cfg.Trace.Enabled {
		tracer = tracing.New("fiberd", logger, cfg.Trace.Buffer)
		defer tracer.Close()
	}

	k := kernel.New(kernel.Options{
		Config:  cfg.Kernel,
		Logger:  logger,
		Metrics: monitoring.NewMetrics(),
		Tracer:  tracer,
	})
	defer k.Shutdown()
	if err := programs.Register(k.Programs()); err != nil {
		return fmt.Errorf("register programs: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var srv *server.Server
	if cfg.Server.Enabled {
		srv = server.NewServer(cfg, k, logger)
	}

	g, gctx := errgroup.WithContext(ctx)
	if srv != nil {
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}
	g.Go(func() error {
		return boot(gctx, k, manifest, srv, logger)
	})

	err = g.Wait()
	logger.Info("fiberd stopping", zap.Error(err))
	return err
}

// boot runs userboot and publishes its report. Without a server there is
// nothing left to inspect afterwards, so a failed boot ends the daemon.
func boot(ctx context.Context, k *kernel.Kernel, m *userboot.Manifest, srv *server.Server, logger *zap.Logger) error {
	res, err := userboot.Boot(ctx, k, m)
	if res != nil && srv != nil {
		srv.Handlers().SetBootReport(res.Report)
	}
	if err != nil {
		if srv == nil || ctx.Err() != nil {
			return err
		}
		logger.Error("boot failed, serving diagnostics only", zap.Error(err))
		return nil
	}

	code, err := res.Wait(ctx)
	if err != nil {
		// canceled by shutdown
		return nil
	}
	logger.Info("userboot exited", zap.Int64("retcode", code))
	return nil
}

func loadManifest(path string) (*userboot.Manifest, error) {
	if path == "" {
		return demoManifest(), nil
	}
	return userboot.LoadManifest(path)
}

// demoManifest runs ping in a job that may only create processes
func demoManifest() *userboot.Manifest {
	return &userboot.Manifest{
		Wait: true,
		Jobs: []userboot.JobSpec{{
			Name: "demo",
			Policy: []userboot.PolicySpec{
				{Condition: "new_vmo", Action: "deny"},
				{Condition: "new_port", Action: "deny"},
			},
			Processes: []userboot.ProcessSpec{{
				Name:    "ping",
				Program: "ping",
				Args:    []string{"3"},
				Env:     []string{"PING_PAYLOAD=hello"},
			}},
		}},
	}
}
