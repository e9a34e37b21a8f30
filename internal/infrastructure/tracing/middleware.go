package tracing

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/meshx-org/fiber/internal/shared/id"
)

// Header names used to propagate trace context over HTTP
const (
	HeaderTraceID = "X-Trace-ID"
	HeaderSpanID  = "X-Span-ID"
)

// HTTPMiddleware creates Gin middleware for HTTP tracing
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Extract trace context from headers
		ctx := ContextWithTrace(
			c.Request.Context(),
			id.TraceID(c.GetHeader(HeaderTraceID)),
			id.SpanID(c.GetHeader(HeaderSpanID)),
		)

		name := c.FullPath()
		if name == "" {
			name = "unmatched"
		}

		span, ctx := tracer.StartSpan(ctx, name)
		span.SetTag("http.method", c.Request.Method)
		span.SetTag("http.url", c.Request.URL.String())

		c.Request = c.Request.WithContext(ctx)

		// Inject trace context into response headers
		c.Header(HeaderTraceID, string(span.TraceID))
		c.Header(HeaderSpanID, string(span.SpanID))

		c.Next()

		status := c.Writer.Status()
		span.SetTag("http.status", strconv.Itoa(status))
		span.SetStatus(strconv.Itoa(status), status >= 500 || len(c.Errors) > 0)
		if len(c.Errors) > 0 {
			span.SetTag("error", c.Errors.Last().Error())
		}

		span.Finish()
		tracer.Submit(span)
	}
}
