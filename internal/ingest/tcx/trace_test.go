package tcx

import (
	"bytes"
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestIngestSpans verifies ingest records a span with a decode child, and
// marks the span as failed for a bad document.
func TestIngestSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = provider.Shutdown(context.Background())
	})

	p := &Provider{db: &fakeStore{}, log: discard}
	if _, err := p.Ingest(context.Background(), bytes.NewReader([]byte(activityDoc(lapXML("10", tp(0, "1", "", "", ""))))), 1); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if _, err := p.Ingest(context.Background(), bytes.NewReader([]byte("<nope>")), 1); err == nil {
		t.Fatal("expected error")
	}

	var ingests, decodes, failed int
	for _, s := range rec.Ended() {
		switch s.Name() {
		case "tcx.Provider.Ingest":
			ingests++
			if s.Status().Code == codes.Error {
				failed++
			}
		case "tcx.Decode":
			decodes++
		}
	}
	if ingests != 2 || decodes != 2 || failed != 1 {
		t.Errorf("spans: ingest=%d decode=%d failed=%d, want 2 2 1", ingests, decodes, failed)
	}
}
