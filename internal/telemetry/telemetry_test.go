package telemetry_test

import (
	"context"
	"sync"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/chatlens/sentiment-worker/internal/domain"
	"github.com/chatlens/sentiment-worker/internal/telemetry"
)

type capturingExporter struct {
	mu    sync.Mutex
	names []string
}

func (c *capturingExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range spans {
		c.names = append(c.names, s.Name())
	}
	return nil
}

func (c *capturingExporter) Shutdown(_ context.Context) error { return nil }

func TestInitWithTestExporterProducesNoSpansOutput(t *testing.T) {
	tp, err := telemetry.Init(telemetry.WithTestExporter())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	_, span := telemetry.StartCommitSpan(context.Background())
	span.End() // must not block or panic without a collector
}

func TestSpanNames(t *testing.T) {
	exp := &capturingExporter{}
	tp, err := telemetry.Init(telemetry.WithExporter(exp))
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx := context.Background()
	rec := domain.Record{Topic: "social-media-topic", Partition: 1, Offset: 5}

	_, s := telemetry.StartBatchSpan(ctx, 10)
	s.End()
	_, s = telemetry.StartProcessSpan(ctx, rec)
	s.End()
	_, s = telemetry.StartTranslateSpan(ctx, "en")
	s.End()
	_, s = telemetry.StartPredictSpan(ctx, "http://predictor/predict")
	s.End()
	_, s = telemetry.StartPublishSpan(ctx, "C01")
	s.End()
	_, s = telemetry.StartDLQSpan(ctx, domain.Result{Record: rec, Stage: domain.StagePredict})
	s.End()
	_, s = telemetry.StartCommitSpan(ctx)
	s.End()

	want := []string{
		"batch.process", "record.process", "translate.call", "predict.call",
		"sink.publish", "dlq.route", "stream.commit",
	}
	exp.mu.Lock()
	defer exp.mu.Unlock()
	if len(exp.names) != len(want) {
		t.Fatalf("exported %d spans, want %d: %v", len(exp.names), len(want), exp.names)
	}
	for i, name := range want {
		if exp.names[i] != name {
			t.Errorf("span %d: got %q, want %q", i, exp.names[i], name)
		}
	}
}
