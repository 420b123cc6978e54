package xmetrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newTestTracerProvider() (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	exporter := tracetest.NewInMemoryExporter()
	return sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter)), exporter
}

func newTestMeterProvider() (*sdkmetric.MeterProvider, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)), reader
}

func collectSum(t *testing.T, reader *sdkmetric.ManualReader, status string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != metricOperationTotal {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			var total int64
			for _, dp := range sum.DataPoints {
				if v, found := dp.Attributes.Value(attribute.Key("status")); found && v.AsString() == status {
					total += dp.Value
				}
			}
			return total
		}
	}
	return 0
}

func TestOTelObserver_Start_RecordsSpanAndMetrics(t *testing.T) {
	tp, exporter := newTestTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	mp, reader := newTestMeterProvider()
	defer func() { _ = mp.Shutdown(context.Background()) }()

	obs, err := NewOTelObserver(WithTracerProvider(tp), WithMeterProvider(mp))
	require.NoError(t, err)

	// Given
	ctx, span := Start(context.Background(), obs, SpanOptions{
		Component: "xcachesync",
		Operation: "ensure_warm",
		Kind:      KindClient,
		Attrs:     []Attr{String(AttrCacheKey, "counts:a"), Int("n", 1)},
	})
	assert.True(t, trace.SpanFromContext(ctx).SpanContext().IsValid())

	// When
	span.End(Result{Attrs: []Attr{Bool(AttrWasWarm, true)}})
	span.End(Result{Err: errors.New("ignored")})

	// Then
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "xcachesync.ensure_warm", spans[0].Name)
	assert.Equal(t, trace.SpanKindClient, spans[0].SpanKind)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
	assert.Equal(t, int64(1), collectSum(t, reader, "ok"))
	assert.Equal(t, int64(0), collectSum(t, reader, "error"))
}

func TestOTelObserver_End_WithError(t *testing.T) {
	tp, exporter := newTestTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	mp, reader := newTestMeterProvider()
	defer func() { _ = mp.Shutdown(context.Background()) }()

	obs, err := NewOTelObserver(WithTracerProvider(tp), WithMeterProvider(mp))
	require.NoError(t, err)

	_, span := obs.Start(context.Background(), SpanOptions{})
	span.End(Result{Err: errors.New("boom")})

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "unknown.unknown", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "boom", spans[0].Status.Description)
	assert.Equal(t, int64(1), collectSum(t, reader, "error"))
}

func TestOTelObserver_End_ExplicitStatusWithoutErr(t *testing.T) {
	tp, exporter := newTestTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	obs, err := NewOTelObserver(WithTracerProvider(tp))
	require.NoError(t, err)

	_, span := obs.Start(context.Background(), SpanOptions{Component: "c", Operation: "o"})
	span.End(Result{Status: StatusError})

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "operation failed", spans[0].Status.Description)
}

func TestNewOTelObserver_WithDurationBuckets(t *testing.T) {
	_, err := NewOTelObserver(WithDurationBuckets(0.01, 0.1, 1, 10, 60))
	require.NoError(t, err)

	_, err = NewOTelObserver(WithDurationBuckets(1, 1))
	assert.ErrorIs(t, err, ErrInvalidBuckets)
}

func TestStart_NilObserver(t *testing.T) {
	ctx, span := Start(nil, nil, SpanOptions{}) //nolint:staticcheck // 验证 nil ctx 兜底
	assert.NotNil(t, ctx)
	assert.IsType(t, NoopSpan{}, span)
	span.End(Result{})
}

type nilObserver struct{}

func (nilObserver) Start(context.Context, SpanOptions) (context.Context, Span) { return nil, nil } //nolint:staticcheck // 模拟不规范实现

func TestStart_ObserverReturnsNil(t *testing.T) {
	ctx, span := Start(context.Background(), nilObserver{}, SpanOptions{})
	assert.NotNil(t, ctx)
	assert.NotNil(t, span)
}

func TestToKeyValue(t *testing.T) {
	tests := []struct {
		attr Attr
		want attribute.Value
	}{
		{String("s", "v"), attribute.StringValue("v")},
		{Bool("b", true), attribute.BoolValue(true)},
		{Int("i", 3), attribute.IntValue(3)},
		{Int64("i64", 4), attribute.Int64Value(4)},
		{Attr{Key: "u", Value: uint(5)}, attribute.Int64Value(5)},
		{Attr{Key: "f", Value: 1.5}, attribute.Float64Value(1.5)},
		{Duration("d", time.Millisecond), attribute.Int64Value(int64(time.Millisecond))},
		{Attr{Key: "x", Value: []int{1}}, attribute.StringValue("[1]")},
	}
	for _, tt := range tests {
		t.Run(tt.attr.Key, func(t *testing.T) {
			assert.Equal(t, tt.want, toKeyValue(tt.attr).Value)
		})
	}
}

func TestAttrsToOTel_SkipsInvalid(t *testing.T) {
	got := attrsToOTel([]Attr{{Key: "", Value: "x"}, {Key: "k", Value: nil}, String("ok", "v")})
	require.Len(t, got, 1)
	assert.Equal(t, attribute.Key("ok"), got[0].Key)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "Internal", KindInternal.String())
	assert.Equal(t, "Client", KindClient.String())
	assert.Equal(t, "Kind(9)", Kind(9).String())
}
