package manager

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"gqm/errors"
	"gqm/logging"
)

const tracerName = "gqm/manager"

// startSpan 为一次管理器操作开启 span
func (e *engine) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("gqm.table", e.bean.Table),
		attribute.String("gqm.type", e.bean.Type.String()),
	)
	return e.registry.tracer.Start(ctx, "gqm."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// endSpan 记录错误并结束 span；数据库执行错误同时写一条警告日志
func (e *engine) endSpan(ctx context.Context, span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.IsDatabase(err) {
			e.logger.Warn(ctx, "database operation failed", logging.Error(err))
		}
	}
	span.End()
}
