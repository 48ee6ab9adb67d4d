package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName        = "github.com/GScandelari/curva-mestra-system-sub005/internal/platform/db"
	maxStatementChars = 512
)

// QueryTracer opens a client span per pgx query, tagged with the clinic of
// the request. Arguments are never recorded.
type QueryTracer struct {
	tracer trace.Tracer
}

// NewQueryTracer uses tp, or the global provider when tp is nil, so spans
// follow whatever telemetry.Setup installed.
func NewQueryTracer(tp trace.TracerProvider) *QueryTracer {
	if tp == nil {
		return &QueryTracer{}
	}
	return &QueryTracer{tracer: tp.Tracer(tracerName)}
}

func (t *QueryTracer) tr() trace.Tracer {
	if t.tracer != nil {
		return t.tracer
	}
	return otel.Tracer(tracerName)
}

func (t *QueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	op := operation(data.SQL)
	attrs := []attribute.KeyValue{
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", op),
		attribute.String("db.statement", truncate(data.SQL, maxStatementChars)),
	}
	if tenant := TenantFromContext(ctx); tenant != "" {
		attrs = append(attrs, attribute.String("tenant.id", tenant))
	}
	ctx, _ = t.tr().Start(ctx, "db "+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	return ctx
}

func (t *QueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span := trace.SpanFromContext(ctx)
	if data.Err != nil {
		span.RecordError(data.Err)
		span.SetStatus(codes.Error, data.Err.Error())
	} else {
		span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))
	}
	span.End()
}

// operation is the first keyword of the statement, upper-cased.
func operation(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "QUERY"
	}
	return strings.ToUpper(fields[0])
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n]
}
