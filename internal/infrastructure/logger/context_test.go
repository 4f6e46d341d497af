package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func spanContext(t *testing.T) context.Context {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	return trace.ContextWithSpanContext(context.Background(), sc)
}

func TestFromContext(t *testing.T) {
	t.Run("returns stored logger", func(t *testing.T) {
		l := zap.NewExample()
		assert.Same(t, l, FromContext(WithContext(context.Background(), l)))
	})

	t.Run("falls back to nop", func(t *testing.T) {
		assert.NotNil(t, FromContext(context.Background()))
	})
}

func TestEnsureContext(t *testing.T) {
	first := zap.NewExample()
	second := zap.NewExample()

	ctx := EnsureContext(context.Background(), first)
	assert.Same(t, first, FromContext(ctx))

	ctx = EnsureContext(ctx, second)
	assert.Same(t, first, FromContext(ctx), "existing logger is kept")

	bare := context.Background()
	assert.Equal(t, bare, EnsureContext(bare, nil))
}

func TestCorrelationValues(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithQueueID(ctx, "queue-9")
	ctx = WithBillNumber(ctx, "202412001")

	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "queue-9", GetQueueID(ctx))
	assert.Equal(t, "202412001", GetBillNumber(ctx))
	assert.Empty(t, GetBillNumber(context.Background()))
}

func TestGetTraceID(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", GetTraceID(spanContext(t)))
}

func TestContextLogger_InjectsFields(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)

	ctx := WithContext(spanContext(t), zap.New(core))
	ctx = WithQueueID(ctx, "queue-9")
	ctx = WithBillNumber(ctx, "202412001")

	L(ctx).Info("bill confirmed", zap.String("status", "CONFIRMED"))

	entries := recorded.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", fields["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", fields["span_id"])
	assert.Equal(t, "queue-9", fields["queue_id"])
	assert.Equal(t, "202412001", fields["bill_number"])
	assert.Equal(t, "CONFIRMED", fields["status"])
	assert.NotContains(t, fields, "request_id")
}

func TestContextLogger_With(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)

	WithLogger(context.Background(), zap.New(core)).
		With(zap.String("component", "taskqueue")).
		Warn("retrying")

	entries := recorded.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "taskqueue", entries[0].ContextMap()["component"])
}

func TestContextLogger_NilLogger(t *testing.T) {
	cl := WithLogger(context.Background(), nil)
	assert.NotPanics(t, func() {
		cl.Debug("x")
		cl.Error("y")
		_ = cl.Zap()
	})
}
