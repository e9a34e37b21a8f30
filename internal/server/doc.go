// Package server runs the diagnostics HTTP server of a kernel.
//
// The server is read-only: every route reports on the kernel (job tree,
// objects, handle tables, metrics, recent syscall spans) and none of them
// issue syscalls.
//
// Middleware, in order:
//   - gin recovery
//   - tracing, when the kernel has a tracer
//   - prometheus request metrics, when the kernel has metrics
//   - CORS
//   - per-client rate limiting, when enabled
//
// Example Usage:
//
//	srv := server.NewServer(cfg, k, logger)
//	if err := srv.Run(ctx); err != nil {
//	    logger.Fatal("server failed", zap.Error(err))
//	}
package server
