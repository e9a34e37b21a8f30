/*
Package monitoring provides Prometheus metrics for the kernel.

# Overview

Metrics cover the handle arena (live handles, allocations, exhaustion),
kernel object lifetimes, syscalls (count and latency by status), job policy
violations, IPC traffic and the diagnostics HTTP server. Every Metrics value
owns its own registry so several kernels can run side by side in one process.

All Record methods accept a nil receiver, so kernel components can be built
without a collector.

# Usage

	metrics := monitoring.NewMetrics()

	router.Use(monitoring.Middleware(metrics))

	timer := monitoring.NewTimer(metrics, "channel_write")
	// ... perform syscall ...
	timer.Stop("FX_OK", true)

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))
*/
package monitoring
