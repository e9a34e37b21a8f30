// Package logging provides structured logging using uber/zap.
//
// New builds the root logger in one of two modes: JSON lines for
// production and colored console text for development.
//
// Kernel components receive a *zap.Logger and name themselves with
// Logger.Named ("arena", "kernel", "userboot", "server"). The field helpers
// in fields.go keep koids, handles, rights and statuses under stable keys.
//
// Example Usage:
//
//	logger, err := logging.New(logging.Config{Level: "info"})
//	logger.Info("Kernel booted", logging.Koid("root_job", root.Koid()))
//	logger.Warn("Policy violation", logging.Status(fx.ErrBadHandle))
package logging
