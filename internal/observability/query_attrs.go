package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// QueryInfo describes one query execution for spans and logs.
type QueryInfo struct {
	QueryID   string
	Entity    string
	BatchRoot string
	Text      string
	FetchMode string
	Steps     int
	Excluded  int
}

// QuerySpanAttributes builds canonical span attributes for a query execution.
func QuerySpanAttributes(info QueryInfo) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 7)
	if info.QueryID != "" {
		attrs = append(attrs, attribute.String("batchfetch.query.id", info.QueryID))
	}
	if info.Entity != "" {
		attrs = append(attrs, attribute.String("batchfetch.query.entity", info.Entity))
	}
	if info.BatchRoot != "" {
		attrs = append(attrs, attribute.String("batchfetch.query.batch_root", info.BatchRoot))
	}
	if info.Text != "" {
		attrs = append(attrs, attribute.String("batchfetch.query.text", info.Text))
	}
	if info.FetchMode != "" {
		attrs = append(attrs, attribute.String("batchfetch.fetch_mode", info.FetchMode))
	}
	attrs = append(attrs,
		attribute.Int("batchfetch.plan.steps", info.Steps),
		attribute.Int("batchfetch.plan.excluded", info.Excluded),
	)
	return attrs
}

// QueryLogFields builds canonical structured log fields for a query execution.
func QueryLogFields(ctx context.Context, info QueryInfo) []any {
	fields := make([]any, 0, 5)
	if info.QueryID != "" {
		fields = append(fields, slog.String("query_id", info.QueryID))
	}
	if info.Entity != "" {
		fields = append(fields, slog.String("entity", info.Entity))
	}
	if info.BatchRoot != "" && info.BatchRoot != info.Entity {
		fields = append(fields, slog.String("batch_root", info.BatchRoot))
	}
	if info.FetchMode != "" {
		fields = append(fields, slog.String("fetch_mode", info.FetchMode))
	}

	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		fields = append(fields, slog.String("trace_id", spanCtx.TraceID().String()))
	}
	return fields
}
