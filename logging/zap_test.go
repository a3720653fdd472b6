package logging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_Fields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLogger(zap.New(core)).WithFields(String("table", "person"))

	logger.Info(context.Background(), "插入完成", Int64("id", 7), Error(errors.New("x")))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "插入完成", entries[0].Message)

	ctxMap := entries[0].ContextMap()
	assert.Equal(t, "person", ctxMap["table"])
	assert.Equal(t, int64(7), ctxMap["id"])
	assert.Equal(t, "x", ctxMap["error"])
}

func TestZapLogger_NilFallsBackToNop(t *testing.T) {
	logger := NewZapLogger(nil)
	assert.NotPanics(t, func() {
		logger.Debug(context.Background(), "noop")
	})
}

func TestZapLogger_TraceCorrelation(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLogger(zap.New(core))

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "gqm.delete")
	logger.Debug(ctx, "deleted", Int64("id", 3))
	span.End()

	entries := logs.All()
	require.Len(t, entries, 1)
	ctxMap := entries[0].ContextMap()
	assert.Equal(t, span.SpanContext().TraceID().String(), ctxMap["trace_id"])
	assert.Equal(t, int64(3), ctxMap["id"])
}

func TestNewProductionZapLogger_Level(t *testing.T) {
	logger, err := NewProductionZapLogger(false, WarnLevel)
	require.NoError(t, err)
	assert.False(t, logger.Zap().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Zap().Core().Enabled(zapcore.WarnLevel))
}
