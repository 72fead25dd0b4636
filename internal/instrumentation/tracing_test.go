package instrumentation

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
	"go.opentelemetry.io/otel/trace"
)

// recordSpans installs a recording tracer provider for the test.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func spanAttrMap(attrs []attribute.KeyValue) map[string]string {
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		m[string(a.Key)] = a.Value.AsString()
	}
	return m
}

func TestSpanAttributeBuilder(t *testing.T) {
	attrs := NewSpanAttributeBuilder().
		WithTool("send_gmail").
		WithIntegration("gmail").
		WithActionID("pa_12345").
		WithDecision("approved").
		Build()

	assert.Equal(t, map[string]string{
		SpanAttrTool:        "send_gmail",
		SpanAttrIntegration: "gmail",
		SpanAttrActionID:    "pa_12345",
		SpanAttrDecision:    "approved",
	}, spanAttrMap(attrs))
}

func TestSpanAttributeBuilder_SkipsEmptyValues(t *testing.T) {
	attrs := NewSpanAttributeBuilder().
		WithTool("list_events").
		WithIntegration("").
		WithActionID("").
		WithDecision("").
		Build()

	assert.Equal(t, map[string]string{SpanAttrTool: "list_events"}, spanAttrMap(attrs))
}

func TestStartSpans(t *testing.T) {
	recorder := recordSpans(t)
	ctx := context.Background()

	_, dispatch := StartSpan(ctx, "gate.dispatch", NewSpanAttributeBuilder().WithIntegration("gmail").Build()...)
	dispatch.End()

	_, tool := StartToolSpan(ctx, "search_gmail")
	tool.End()

	_, api := StartGoogleAPISpan(ctx, ServiceCalendar, OperationList)
	api.End()

	ended := recorder.Ended()
	require.Len(t, ended, 3)

	assert.Equal(t, "gate.dispatch", ended[0].Name())
	assert.Equal(t, trace.SpanKindInternal, ended[0].SpanKind())
	assert.Equal(t, "gmail", spanAttrMap(ended[0].Attributes())[SpanAttrIntegration])

	assert.Equal(t, "tool.search_gmail", ended[1].Name())
	assert.Equal(t, trace.SpanKindServer, ended[1].SpanKind())
	assert.Equal(t, "search_gmail", spanAttrMap(ended[1].Attributes())[SpanAttrTool])

	assert.Equal(t, "google.calendar.list", ended[2].Name())
	assert.Equal(t, trace.SpanKindClient, ended[2].SpanKind())
	assert.Equal(t, map[string]string{
		SpanAttrService:   ServiceCalendar,
		SpanAttrOperation: OperationList,
	}, spanAttrMap(ended[2].Attributes()))
}

func TestSpanStatus(t *testing.T) {
	recorder := recordSpans(t)
	ctx := context.Background()

	_, failed := StartSpan(ctx, "ledger.resolve")
	SetSpanError(failed, errors.New("already resolved"))
	failed.End()

	_, ignored := StartSpan(ctx, "ledger.resolve")
	SetSpanError(ignored, nil)
	ignored.End()

	_, ok := StartSpan(ctx, "ledger.resolve")
	SetSpanSuccess(ok)
	ok.End()

	ended := recorder.Ended()
	require.Len(t, ended, 3)

	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "already resolved", ended[0].Status().Description)
	require.Len(t, ended[0].Events(), 1)
	assert.Equal(t, "exception", ended[0].Events()[0].Name)

	assert.Equal(t, codes.Unset, ended[1].Status().Code)
	assert.Empty(t, ended[1].Events())

	assert.Equal(t, codes.Ok, ended[2].Status().Code)
}
