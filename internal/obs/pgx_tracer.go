package obs

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxStatementLen = 300

type queryStartKey struct{}

type queryStart struct {
	span  trace.Span
	sql   string
	start time.Time
}

// QueryTracer implements pgx.QueryTracer. Every statement gets a client span;
// statements slower than Slow are also logged at warn level.
type QueryTracer struct {
	Logger zerolog.Logger
	Slow   time.Duration
}

// TraceQueryStart opens the span for data.SQL.
func (t QueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	sql := strings.TrimSpace(data.SQL)
	op := sqlOperation(sql)
	ctx, span := StartSpan(ctx, "db."+strings.ToLower(op), trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", op),
		attribute.String("db.statement", truncate(sql, maxStatementLen)),
	)
	return context.WithValue(ctx, queryStartKey{}, queryStart{span: span, sql: sql, start: time.Now()})
}

// TraceQueryEnd closes the span opened by TraceQueryStart.
func (t QueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	qs, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		return
	}
	defer qs.span.End()

	qs.span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))
	if data.Err != nil {
		qs.span.RecordError(data.Err)
		qs.span.SetStatus(codes.Error, data.Err.Error())
	}

	elapsed := time.Since(qs.start)
	if t.Slow > 0 && elapsed >= t.Slow {
		t.Logger.Warn().
			Str("statement", truncate(qs.sql, maxStatementLen)).
			Dur("elapsed", elapsed).
			Err(data.Err).
			Msg("slow query")
	}
}

func sqlOperation(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "UNKNOWN"
	}
	return strings.ToUpper(fields[0])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
