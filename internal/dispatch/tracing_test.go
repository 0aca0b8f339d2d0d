package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/mattjoyce/stardispatch/internal/scheduler"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider()
	tp.RegisterSpanProcessor(recorder)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return recorder
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestRun_EmitsSpan(t *testing.T) {
	recorder := recordSpans(t)

	cfg, _ := testConfig(scheduler.NewThreadScheduler(nil), 0)
	d, err := New(cfg, newGET("/"), nil)
	require.NoError(t, err)
	d.PatchSignals(`{"a":1}`)
	require.NoError(t, d.Run(context.Background(), &recordingSink{}))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "dispatch.run", spans[0].Name())

	id, ok := spanAttr(spans[0], "dispatch.id")
	require.True(t, ok)
	assert.Equal(t, d.ID(), id.AsString())
	outcome, ok := spanAttr(spans[0], "dispatch.outcome")
	require.True(t, ok)
	assert.Equal(t, "completed", outcome.AsString())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestRun_SpanRecordsError(t *testing.T) {
	recorder := recordSpans(t)

	cfg, _ := testConfig(scheduler.NewTaskScheduler(nil), 0)
	d, err := New(cfg, newGET("/"), nil)
	require.NoError(t, err)
	d.Stream(func(ctx context.Context, sse *Generator) error { return errors.New("boom") })
	require.Error(t, d.Run(context.Background(), &recordingSink{}))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "boom", spans[0].Status().Description)
	require.NotEmpty(t, spans[0].Events(), "error recorded as span event")
}
