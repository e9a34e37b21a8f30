package programs

import (
	"context"

	"go.uber.org/zap"

	"github.com/meshx-org/fiber/internal/fx"
	"github.com/meshx-org/fiber/internal/infrastructure/logging"
	"github.com/meshx-org/fiber/internal/kernel"
	"github.com/meshx-org/fiber/internal/kernel/procargs"
)

// Echo serves its bootstrap channel: after the startup message, every
// message is written back with its handles until the peer goes away. The
// exit code is the number of messages served.
type Echo struct{}

// NewEcho creates the echo program
func NewEcho() *Echo {
	return &Echo{}
}

// Definition returns program metadata
func (e *Echo) Definition() kernel.ProgramInfo {
	return kernel.ProgramInfo{
		Name:        "echo",
		Description: "Writes every message on its bootstrap channel back to the sender",
	}
}

func (e *Echo) Run(ctx context.Context, sys *kernel.System, ch fx.Handle) int64 {
	logger := sys.Logger().Named("echo")
	defer sys.HandleClose(ch)

	st, err := procargs.Read(ctx, sys, ch)
	if err != nil {
		logger.Warn("no startup message", zap.Error(err))
		return exitCode(err)
	}
	st.Close(sys)

	var served int64
	for {
		observed, status := sys.ObjectWaitOne(ctx, ch, fx.ChannelReadable|fx.ChannelPeerClosed, fx.TimeInfinite)
		if status != fx.OK {
			logger.Debug("wait ended", logging.Status(status))
			return served
		}
		if observed&fx.ChannelReadable == 0 {
			logger.Debug("peer closed", zap.Int64("served", served))
			return served
		}

		msg, status := sys.ChannelRead(ch, 0, fx.ChannelMaxMsgBytes, fx.ChannelMaxMsgHandles)
		if status != fx.OK {
			logger.Debug("read", logging.Status(status))
			return served
		}
		if status := sys.ChannelWrite(ch, 0, msg.Data, msg.Handles); status != fx.OK {
			logger.Debug("reply", logging.Status(status))
			return served
		}
		served++
	}
}
