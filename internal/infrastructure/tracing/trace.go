package tracing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meshx-org/fiber/internal/shared/id"
)

// Span represents a single traced operation: one syscall, or one
// diagnostics HTTP request.
type Span struct {
	TraceID   id.TraceID        `json:"trace_id"`
	SpanID    id.SpanID         `json:"span_id"`
	ParentID  id.SpanID         `json:"parent_id,omitempty"`
	Name      string            `json:"name"`
	Service   string            `json:"service"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time"`
	Duration  time.Duration     `json:"duration_ns"`
	Tags      map[string]string `json:"tags,omitempty"`
	Status    string            `json:"status,omitempty"`
	Failed    bool              `json:"failed"`
}

// Tracer collects finished spans, logs them and keeps the most recent ones
// in a ring for inspection.
type Tracer struct {
	service string
	logger  *zap.Logger
	spans   chan *Span
	done    chan struct{}

	// sendMu orders Submit against Close
	sendMu  sync.RWMutex
	stopped bool

	mu     sync.RWMutex
	recent []*Span
	next   int
	filled bool
}

// New creates a new tracer instance that remembers the last capacity spans
func New(service string, logger *zap.Logger, capacity int) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if capacity <= 0 {
		capacity = 1
	}
	t := &Tracer{
		service: service,
		logger:  logger,
		spans:   make(chan *Span, 1000),
		done:    make(chan struct{}),
		recent:  make([]*Span, capacity),
	}

	// Start span collector
	go t.collectSpans()

	return t
}

// StartSpan creates a new span
func (t *Tracer) StartSpan(ctx context.Context, name string) (*Span, context.Context) {
	traceID, _ := ctx.Value(traceIDKey).(id.TraceID)
	if traceID == "" {
		traceID = id.NewTraceID()
	}

	parentID, _ := ctx.Value(spanIDKey).(id.SpanID)

	span := &Span{
		TraceID:   traceID,
		SpanID:    id.NewSpanID(),
		ParentID:  parentID,
		Name:      name,
		Service:   t.service,
		StartTime: time.Now(),
		Tags:      make(map[string]string),
	}

	newCtx := context.WithValue(ctx, traceIDKey, traceID)
	newCtx = context.WithValue(newCtx, spanIDKey, span.SpanID)

	return span, newCtx
}

// Finish marks the span as complete
func (s *Span) Finish() {
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
}

// SetTag adds a tag to the span
func (s *Span) SetTag(key, value string) {
	s.Tags[key] = value
}

// SetStatus records the outcome of the operation
func (s *Span) SetStatus(status string, failed bool) {
	s.Status = status
	s.Failed = failed
}

// collectSpans processes completed spans
func (t *Tracer) collectSpans() {
	defer close(t.done)
	for span := range t.spans {
		t.processSpan(span)
	}
}

// processSpan logs span data and stores it in the ring
func (t *Tracer) processSpan(span *Span) {
	t.mu.Lock()
	t.recent[t.next] = span
	t.next = (t.next + 1) % len(t.recent)
	if t.next == 0 {
		t.filled = true
	}
	t.mu.Unlock()

	fields := []zap.Field{
		zap.String("trace_id", string(span.TraceID)),
		zap.String("span_id", string(span.SpanID)),
		zap.String("operation", span.Name),
		zap.Duration("duration", span.Duration),
		zap.String("service", span.Service),
		zap.String("status", span.Status),
	}
	if span.ParentID != "" {
		fields = append(fields, zap.String("parent_id", string(span.ParentID)))
	}
	for k, v := range span.Tags {
		fields = append(fields, zap.String(k, v))
	}

	if span.Failed {
		t.logger.Debug("span completed with error", fields...)
	} else {
		t.logger.Debug("span completed", fields...)
	}
}

// Submit sends a span to the collector
func (t *Tracer) Submit(span *Span) {
	t.sendMu.RLock()
	defer t.sendMu.RUnlock()
	if t.stopped {
		return
	}

	select {
	case t.spans <- span:
	default:
		t.logger.Warn("span buffer full, dropping span",
			zap.String("trace_id", string(span.TraceID)),
			zap.String("span_id", string(span.SpanID)),
		)
	}
}

// Recent returns up to n of the most recently collected spans, newest first
func (t *Tracer) Recent(n int) []Span {
	t.mu.RLock()
	defer t.mu.RUnlock()

	size := t.next
	if t.filled {
		size = len(t.recent)
	}
	if n <= 0 || n > size {
		n = size
	}

	out := make([]Span, 0, n)
	for i := 1; i <= n; i++ {
		idx := (t.next - i + len(t.recent)) % len(t.recent)
		out = append(out, *t.recent[idx])
	}
	return out
}

// Close stops the collector after draining submitted spans. Spans submitted
// afterwards are dropped.
func (t *Tracer) Close() {
	t.sendMu.Lock()
	if t.stopped {
		t.sendMu.Unlock()
		return
	}
	t.stopped = true
	close(t.spans)
	t.sendMu.Unlock()
	<-t.done
}

// Context keys for trace propagation
type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	spanIDKey  contextKey = "span_id"
)

// ContextWithTrace seeds ctx with an existing trace
func ContextWithTrace(ctx context.Context, traceID id.TraceID, spanID id.SpanID) context.Context {
	if traceID != "" {
		ctx = context.WithValue(ctx, traceIDKey, traceID)
	}
	if spanID != "" {
		ctx = context.WithValue(ctx, spanIDKey, spanID)
	}
	return ctx
}

// GetTraceID retrieves the trace ID from context
func GetTraceID(ctx context.Context) id.TraceID {
	if traceID, ok := ctx.Value(traceIDKey).(id.TraceID); ok {
		return traceID
	}
	return ""
}

// GetSpanID retrieves the span ID from context
func GetSpanID(ctx context.Context) id.SpanID {
	if spanID, ok := ctx.Value(spanIDKey).(id.SpanID); ok {
		return spanID
	}
	return ""
}

// FormatTrace returns a formatted trace string for logging
func FormatTrace(traceID id.TraceID, spanID id.SpanID) string {
	return fmt.Sprintf("[trace:%s span:%s]", traceID, spanID)
}
