package programs

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/meshx-org/fiber/internal/fx"
	"github.com/meshx-org/fiber/internal/infrastructure/logging"
	"github.com/meshx-org/fiber/internal/kernel"
	"github.com/meshx-org/fiber/internal/kernel/procargs"
)

const (
	defaultPingCount   = 3
	defaultPingPayload = "ping"
	pingTimeout        = time.Second
)

// Ping starts an echo process in its own job and makes round trips to it
// with channel calls. The first arg is the number of calls and
// PING_PAYLOAD in the environment sets the request body.
type Ping struct{}

// NewPing creates the ping program
func NewPing() *Ping {
	return &Ping{}
}

// Definition returns program metadata
func (p *Ping) Definition() kernel.ProgramInfo {
	return kernel.ProgramInfo{
		Name:        "ping",
		Description: "Starts an echo process and makes channel calls to it",
	}
}

func (p *Ping) Run(ctx context.Context, sys *kernel.System, ch fx.Handle) int64 {
	logger := sys.Logger().Named("ping")
	defer sys.HandleClose(ch)

	st, err := procargs.Read(ctx, sys, ch)
	if err != nil {
		logger.Warn("no startup message", zap.Error(err))
		return exitCode(err)
	}
	defer st.Close(sys)

	job := st.Take(procargs.HandleJobDefault, 0)
	if job == fx.HandleInvalid {
		logger.Warn("startup message carries no job")
		return int64(fx.ErrBadHandle)
	}
	defer sys.HandleClose(job)

	count, err := pingCount(st.Args)
	if err != nil {
		logger.Warn("bad args", zap.Error(err))
		return int64(fx.ErrInvalidArgs)
	}
	payload := []byte(lookupEnv(st.Environ, "PING_PAYLOAD", defaultPingPayload))

	peer, proc, err := spawnEcho(sys, job)
	if err != nil {
		logger.Warn("spawn echo", zap.Error(err))
		return exitCode(err)
	}
	defer sys.HandleClose(proc)

	for seq := range count {
		start := sys.ClockGetMonotonic()
		if err := call(ctx, sys, peer, seq, payload); err != nil {
			sys.HandleClose(peer)
			logger.Warn("call failed", zap.Int("seq", seq), zap.Error(err))
			return exitCode(err)
		}
		logger.Info("pong",
			zap.Int("seq", seq),
			zap.Duration("rtt", time.Duration(sys.ClockGetMonotonic()-start)),
		)
	}

	// closing our end lets echo finish
	sys.HandleClose(peer)
	if _, status := sys.ObjectWaitOne(ctx, proc, fx.TaskTerminated, sys.DeadlineAfter(fx.FromDuration(pingTimeout))); status != fx.OK {
		logger.Warn("echo did not exit", logging.Status(status))
		return int64(status)
	}
	return 0
}

// spawnEcho creates and starts an echo process in job, returning our end
// of its bootstrap channel and the process handle.
func spawnEcho(sys *kernel.System, job fx.Handle) (fx.Handle, fx.Handle, error) {
	proc, status := sys.ProcessCreate(job, "echo", 0)
	if status != fx.OK {
		return fx.HandleInvalid, fx.HandleInvalid, fmt.Errorf("create process: %w", status)
	}
	local, remote, status := sys.ChannelCreate(0)
	if status != fx.OK {
		sys.HandleClose(proc)
		return fx.HandleInvalid, fx.HandleInvalid, fmt.Errorf("create channel: %w", status)
	}
	if err := procargs.Send(sys, local, &procargs.Message{Args: []string{"echo"}}, nil); err != nil {
		sys.HandleCloseMany([]fx.Handle{proc, local, remote})
		return fx.HandleInvalid, fx.HandleInvalid, err
	}
	if status := sys.ProcessStart(proc, "echo", remote); status != fx.OK {
		sys.HandleCloseMany([]fx.Handle{proc, local})
		return fx.HandleInvalid, fx.HandleInvalid, fmt.Errorf("start echo: %w", status)
	}
	return local, proc, nil
}

func call(ctx context.Context, sys *kernel.System, ch fx.Handle, seq int, payload []byte) error {
	// the kernel fills in the transaction id
	req := make([]byte, 4, 4+len(payload))
	req = append(req, payload...)

	deadline := sys.DeadlineAfter(fx.FromDuration(pingTimeout))
	reply, status := sys.ChannelCallEtc(ctx, ch, 0, deadline, req, nil)
	if status != fx.OK {
		return fmt.Errorf("call %d: %w", seq, status)
	}
	if len(reply.Data) < 4 || !bytes.Equal(reply.Data[4:], payload) {
		return fmt.Errorf("call %d: reply %q does not match: %w", seq, reply.Data[4:], fx.ErrInternal)
	}
	return nil
}

func pingCount(args []string) (int, error) {
	if len(args) == 0 {
		return defaultPingCount, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("count %q is not a non-negative number", args[0])
	}
	return n, nil
}

func lookupEnv(environ []string, key, fallback string) string {
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok && k == key {
			return v
		}
	}
	return fallback
}
