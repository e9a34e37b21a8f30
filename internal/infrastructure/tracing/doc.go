/*
Package tracing provides lightweight span tracing for syscalls and the
diagnostics HTTP surface.

# Overview

Every syscall made through the kernel can be wrapped in a span when tracing
is enabled. Spans carry a trace id and span id (prefixed ULIDs), a name, tags
and an outcome. Finished spans are handed to a buffered collector that logs
them at debug level and keeps the most recent ones in a ring that the
diagnostics server exposes under /trace.

# Usage

	tracer := tracing.New("fiber", logger, 1024)
	defer tracer.Close()

	span, ctx := tracer.StartSpan(ctx, "channel_write")
	span.SetTag("handle", "0x0000a3f3")
	span.SetStatus("FX_OK", false)
	span.Finish()
	tracer.Submit(span)

	router.Use(tracing.HTTPMiddleware(tracer))

# Trace Format

Trace context propagates over HTTP with two headers:
- X-Trace-ID: identifier for the whole request flow
- X-Span-ID: identifier for the current operation
*/
package tracing
