package traceio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(NewWriter(&buf)))
	tracer := tp.Tracer("test")

	ctx, pass := tracer.Start(context.Background(), "packgen.Generate",
		trace.WithAttributes(Pass("p1"), PatternsKey.StringSlice([]string{"./..."})))
	_, item := tracer.Start(ctx, "packgen.item", trace.WithAttributes(Type("Item"), ItemsKey.Int(3)))
	item.RecordError(errors.New("bad member"))
	item.SetStatus(codes.Error, "bad member")
	item.End()
	pass.End()
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}

	var got []Span
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var s Span
		if err := json.Unmarshal(sc.Bytes(), &s); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		got = append(got, s)
	}
	if len(got) != 2 {
		t.Fatalf("got %d spans, want 2", len(got))
	}

	want := []Span{
		{
			Name:       "packgen.item",
			Attributes: map[string]any{"packgen.type": "Item", "packgen.items": float64(3)},
			Error:      "bad member",
			Events:     []string{"exception"},
		},
		{
			Name:       "packgen.Generate",
			Attributes: map[string]any{"packgen.pass": "p1", "packgen.patterns": []any{"./..."}},
		},
	}
	opts := cmpopts.IgnoreFields(Span{}, "TraceID", "SpanID", "ParentID", "Start", "Duration")
	if diff := cmp.Diff(want, got, opts); diff != "" {
		t.Errorf("spans (-want +got):\n%s", diff)
	}
	if got[0].ParentID != got[1].SpanID || got[0].TraceID != got[1].TraceID {
		t.Errorf("item span is not a child of the pass span: %+v", got)
	}
	if got[1].ParentID != "" {
		t.Errorf("root span has parent %q", got[1].ParentID)
	}
}
