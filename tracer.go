package livia

import "context"

// Tracer creates spans around event handling, pipeline attempts, and
// document ingestion. The observer package provides an OTEL-backed
// implementation via NewTracer(); an Engine without a tracer skips span
// creation entirely.
type Tracer interface {
	// Start opens a span and returns a child context carrying it.
	// The caller must End the returned span.
	Start(ctx context.Context, name string, attrs ...SpanAttr) (context.Context, Span)
}

// Span is one traced operation.
type Span interface {
	// SetAttr attaches attributes after the span was started.
	SetAttr(attrs ...SpanAttr)
	// Event records a point-in-time annotation on the span.
	Event(name string, attrs ...SpanAttr)
	// Error records err and marks the span failed.
	Error(err error)
	// End completes the span. Must be called exactly once.
	End()
}

// SpanAttr is a key-value attribute attached to a span or event.
type SpanAttr struct {
	Key   string
	Value any
}

// StringAttr builds a string attribute.
func StringAttr(k, v string) SpanAttr {
	return SpanAttr{Key: k, Value: v}
}

// IntAttr builds an int attribute.
func IntAttr(k string, v int) SpanAttr {
	return SpanAttr{Key: k, Value: v}
}

// BoolAttr builds a bool attribute.
func BoolAttr(k string, v bool) SpanAttr {
	return SpanAttr{Key: k, Value: v}
}
