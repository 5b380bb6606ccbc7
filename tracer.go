package pg

import (
	"context"
	"strings"

	// Packages
	pgx "github.com/jackc/pgx/v5"
	attribute "go.opentelemetry.io/otel/attribute"
	codes "go.opentelemetry.io/otel/codes"
	trace "go.opentelemetry.io/otel/trace"
)

//////////////////////////////////////////////////////////////////////////////
// TYPES

// TraceFn is called after each statement with the context, the SQL, the
// arguments and any error. Statements sent in a batch are reported
// individually.
type TraceFn func(context.Context, string, any, error)

// tracer implements the pgx query and batch tracers. It calls a TraceFn,
// emits OpenTelemetry spans, or both.
type tracer struct {
	fn   TraceFn
	otel trace.Tracer
}

// traceData is stored in the context between the start and end of a
// statement or batch
type traceData struct {
	span trace.Span
	sql  string
	args []any
}

type traceKey struct{}

// Ensure interfaces are satisfied
var _ pgx.QueryTracer = (*tracer)(nil)
var _ pgx.BatchTracer = (*tracer)(nil)

//////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	// TraceSpanNameArg is a bind variable which names the span for a
	// statement
	TraceSpanNameArg = "otelspan"

	defaultSpanName = "pg.query"
	batchSpanName   = "pg.batch"
)

//////////////////////////////////////////////////////////////////////////////
// QUERY TRACER

func (t *tracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	td := &traceData{sql: data.SQL, args: data.Args}
	if t.otel != nil {
		ctx, td.span = t.otel.Start(ctx, spanName(data.Args),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("db.system", "postgresql"),
				attribute.String("db.statement", data.SQL),
			),
		)
	}
	return context.WithValue(ctx, traceKey{}, td)
}

func (t *tracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	td, ok := ctx.Value(traceKey{}).(*traceData)
	if !ok {
		return
	}
	if td.span != nil {
		td.span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))
		endSpan(td.span, data.Err)
	}
	if t.fn != nil {
		t.fn(ctx, strings.TrimSpace(td.sql), traceArgs(td.args), data.Err)
	}
}

//////////////////////////////////////////////////////////////////////////////
// BATCH TRACER

func (t *tracer) TraceBatchStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceBatchStartData) context.Context {
	td := new(traceData)
	if t.otel != nil {
		ctx, td.span = t.otel.Start(ctx, batchSpanName,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("db.system", "postgresql"),
				attribute.Int("db.batch.size", data.Batch.Len()),
			),
		)
	}
	return context.WithValue(ctx, traceKey{}, td)
}

func (t *tracer) TraceBatchQuery(ctx context.Context, _ *pgx.Conn, data pgx.TraceBatchQueryData) {
	if t.fn != nil {
		t.fn(ctx, strings.TrimSpace(data.SQL), traceArgs(data.Args), data.Err)
	}
}

func (t *tracer) TraceBatchEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceBatchEndData) {
	if td, ok := ctx.Value(traceKey{}).(*traceData); ok && td.span != nil {
		endSpan(td.span, data.Err)
	}
}

//////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// spanName returns the TraceSpanNameArg bind variable, if set
func spanName(args []any) string {
	if len(args) == 1 {
		if named, ok := args[0].(pgx.NamedArgs); ok {
			if name, ok := named[TraceSpanNameArg].(string); ok && name != "" {
				return name
			}
		}
	}
	return defaultSpanName
}

func traceArgs(args []any) any {
	switch len(args) {
	case 0:
		return nil
	case 1:
		return args[0]
	default:
		return args
	}
}
