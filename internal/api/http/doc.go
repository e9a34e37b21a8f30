// Package http serves read-only JSON views of a running kernel for the
// diagnostics server.
//
// Endpoints:
//   - Health: / and /health
//   - Metrics: /metrics (prometheus) and /metrics/json
//   - Objects: /jobs, /objects/:koid, /processes/:koid/handles
//   - Boot: /programs, /boot
//   - Tracing: /trace?limit=n
//
// Handlers never mutate the kernel. A koid that names nothing live answers
// 404; a koid that does not parse answers 400.
//
// Example Usage:
//
//	handlers := http.NewHandlers(k)
//	handlers.Register(router)
package http
