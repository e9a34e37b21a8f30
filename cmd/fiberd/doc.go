// Command fiberd boots a fiber kernel and serves its diagnostics.
//
// The kernel starts with the built-in programs (echo, ping) registered.
// Userboot then applies the boot manifest: it creates the jobs the manifest
// names, applies their policies and starts their processes. Without a
// manifest, fiberd runs ping in a sandboxed demo job.
//
// Configuration:
//   - Environment variables (FIBER_*, LOG_*, RATE_LIMIT_*)
//   - CLI flags override the environment
//
// Usage:
//
//	fiberd --manifest boot.yaml --port 8070
//	fiberd --trace --dev
//
// With --http=false fiberd exits once userboot does. Otherwise it serves
// /health, /jobs, /objects/:koid, /processes/:koid/handles, /trace and
// /metrics until it receives a signal.
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
