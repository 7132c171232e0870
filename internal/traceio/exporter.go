// Package traceio exports the spans of a generation pass as JSON lines, one
// object per span, for offline inspection of slow passes.
package traceio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Span is the exported form of a finished span.
type Span struct {
	Name       string         `json:"name"`
	TraceID    string         `json:"trace_id"`
	SpanID     string         `json:"span_id"`
	ParentID   string         `json:"parent_id,omitempty"`
	Start      time.Time      `json:"start"`
	Duration   time.Duration  `json:"duration_ns"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Error      string         `json:"error,omitempty"`
	Events     []string       `json:"events,omitempty"`
}

// Writer is a SpanExporter that writes each span as a line of JSON to w.
type Writer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

var _ sdktrace.SpanExporter = (*Writer)(nil)

func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w)}
}

func (w *Writer) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, span := range spans {
		if err := w.enc.Encode(toSpan(span)); err != nil {
			return fmt.Errorf("traceio: export %s: %w", span.Name(), err)
		}
	}
	return nil
}

func (w *Writer) Shutdown(context.Context) error {
	return nil
}

func toSpan(span sdktrace.ReadOnlySpan) Span {
	s := Span{
		Name:     span.Name(),
		TraceID:  span.SpanContext().TraceID().String(),
		SpanID:   span.SpanContext().SpanID().String(),
		Start:    span.StartTime(),
		Duration: span.EndTime().Sub(span.StartTime()),
	}
	if parent := span.Parent(); parent.HasSpanID() {
		s.ParentID = parent.SpanID().String()
	}
	if attrs := span.Attributes(); len(attrs) > 0 {
		s.Attributes = make(map[string]any, len(attrs))
		for _, kv := range attrs {
			s.Attributes[string(kv.Key)] = value(kv.Value)
		}
	}
	if st := span.Status(); st.Code == codes.Error {
		s.Error = st.Description
	}
	for _, e := range span.Events() {
		s.Events = append(s.Events, e.Name)
	}
	return s
}

func value(v attribute.Value) any {
	switch v.Type() {
	case attribute.BOOL:
		return v.AsBool()
	case attribute.INT64:
		return v.AsInt64()
	case attribute.FLOAT64:
		return v.AsFloat64()
	case attribute.STRING:
		return v.AsString()
	case attribute.BOOLSLICE:
		return v.AsBoolSlice()
	case attribute.INT64SLICE:
		return v.AsInt64Slice()
	case attribute.FLOAT64SLICE:
		return v.AsFloat64Slice()
	case attribute.STRINGSLICE:
		return v.AsStringSlice()
	}
	return v.Emit()
}
