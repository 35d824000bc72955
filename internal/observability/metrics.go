package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of every engine metric.
const MeterName = "batchfetch"

// BatchMetrics holds the engine's query and batch fetch instruments.
// A nil *BatchMetrics records nothing.
type BatchMetrics struct {
	queryDuration     metric.Float64Histogram
	queryCounter      metric.Int64Counter
	errorCounter      metric.Int64Counter
	activeQueries     metric.Int64UpDownCounter
	resultsCount      metric.Int64Histogram
	stepDuration      metric.Float64Histogram
	batchParentCount  metric.Int64Histogram
	batchResultRows   metric.Int64Histogram
	batchQueries      metric.Int64Counter
	batchCacheHits    metric.Int64Counter
	batchCacheMisses  metric.Int64Counter
	batchQueriesSaved metric.Int64Counter
	batchSkipped      metric.Int64Counter
}

// InitBatchMetrics creates the instruments on the global meter provider.
func InitBatchMetrics() (*BatchMetrics, error) {
	return NewBatchMetrics(otel.Meter(MeterName))
}

// NewBatchMetrics creates the instruments on meter.
func NewBatchMetrics(meter metric.Meter) (*BatchMetrics, error) {
	queryDuration, err := meter.Float64Histogram(
		"batchfetch.query.duration",
		metric.WithDescription("Duration of query executions including batch fetches in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create query duration histogram: %w", err)
	}

	queryCounter, err := meter.Int64Counter(
		"batchfetch.queries.total",
		metric.WithDescription("Total number of query executions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create query counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"batchfetch.errors.total",
		metric.WithDescription("Total number of failed query executions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	activeQueries, err := meter.Int64UpDownCounter(
		"batchfetch.queries.active",
		metric.WithDescription("Number of query executions in progress"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active queries counter: %w", err)
	}

	resultsCount, err := meter.Int64Histogram(
		"batchfetch.results.count",
		metric.WithDescription("Number of objects returned by the root query"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create results count histogram: %w", err)
	}

	stepDuration, err := meter.Float64Histogram(
		"batchfetch.batch.step.duration",
		metric.WithDescription("Duration of one batch fetch step in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create step duration histogram: %w", err)
	}

	batchParentCount, err := meter.Int64Histogram(
		"batchfetch.batch.parent_count",
		metric.WithDescription("Number of distinct owner keys included in a batch step"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch parent count histogram: %w", err)
	}

	batchResultRows, err := meter.Int64Histogram(
		"batchfetch.batch.result_rows",
		metric.WithDescription("Number of rows returned by a batch step"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch result rows histogram: %w", err)
	}

	batchQueries, err := meter.Int64Counter(
		"batchfetch.batch.queries",
		metric.WithDescription("Number of chunk queries issued by batch steps"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch queries counter: %w", err)
	}

	batchCacheHits, err := meter.Int64Counter(
		"batchfetch.batch.cache_hits",
		metric.WithDescription("Number of lazy association reads served by an already fetched step"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch cache hits counter: %w", err)
	}

	batchCacheMisses, err := meter.Int64Counter(
		"batchfetch.batch.cache_misses",
		metric.WithDescription("Number of lazy association reads that triggered a step fetch"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch cache misses counter: %w", err)
	}

	batchQueriesSaved, err := meter.Int64Counter(
		"batchfetch.batch.queries_saved",
		metric.WithDescription("Number of per-owner queries saved by batching"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch queries saved counter: %w", err)
	}

	batchSkipped, err := meter.Int64Counter(
		"batchfetch.batch.skipped",
		metric.WithDescription("Number of batch edges left to per-owner loading"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch skipped counter: %w", err)
	}

	return &BatchMetrics{
		queryDuration:     queryDuration,
		queryCounter:      queryCounter,
		errorCounter:      errorCounter,
		activeQueries:     activeQueries,
		resultsCount:      resultsCount,
		stepDuration:      stepDuration,
		batchParentCount:  batchParentCount,
		batchResultRows:   batchResultRows,
		batchQueries:      batchQueries,
		batchCacheHits:    batchCacheHits,
		batchCacheMisses:  batchCacheMisses,
		batchQueriesSaved: batchQueriesSaved,
		batchSkipped:      batchSkipped,
	}, nil
}

// RecordQuery records one query execution with its duration and outcome.
func (m *BatchMetrics) RecordQuery(ctx context.Context, duration time.Duration, failed bool, fetchMode string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("fetch_mode", fetchMode),
		attribute.Bool("has_errors", failed),
	}
	m.queryDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.queryCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	if failed {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("fetch_mode", fetchMode),
		))
	}
}

// RecordResultsCount records the number of root objects returned.
func (m *BatchMetrics) RecordResultsCount(ctx context.Context, count int64, entity string) {
	if m == nil {
		return
	}
	m.resultsCount.Record(ctx, count, metric.WithAttributes(
		attribute.String("entity", entity),
	))
}

// RecordStep records one completed batch step.
func (m *BatchMetrics) RecordStep(ctx context.Context, duration time.Duration, edge, strategy string, parents, rows, queries int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("edge", edge),
		attribute.String("strategy", strategy),
	)
	m.stepDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.batchParentCount.Record(ctx, parents, attrs)
	m.batchResultRows.Record(ctx, rows, attrs)
	if queries > 0 {
		m.batchQueries.Add(ctx, queries, attrs)
	}
}

func (m *BatchMetrics) RecordBatchCacheHit(ctx context.Context, edge string) {
	if m == nil {
		return
	}
	m.batchCacheHits.Add(ctx, 1, metric.WithAttributes(
		attribute.String("edge", edge),
	))
}

func (m *BatchMetrics) RecordBatchCacheMiss(ctx context.Context, edge string) {
	if m == nil {
		return
	}
	m.batchCacheMisses.Add(ctx, 1, metric.WithAttributes(
		attribute.String("edge", edge),
	))
}

func (m *BatchMetrics) RecordBatchQueriesSaved(ctx context.Context, count int64, edge string) {
	if m == nil || count <= 0 {
		return
	}
	m.batchQueriesSaved.Add(ctx, count, metric.WithAttributes(
		attribute.String("edge", edge),
	))
}

func (m *BatchMetrics) RecordBatchSkipped(ctx context.Context, edge, reason string) {
	if m == nil {
		return
	}
	m.batchSkipped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("edge", edge),
		attribute.String("reason", reason),
	))
}

// IncrementActiveQueries increments the active queries counter
func (m *BatchMetrics) IncrementActiveQueries(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeQueries.Add(ctx, 1)
}

// DecrementActiveQueries decrements the active queries counter
func (m *BatchMetrics) DecrementActiveQueries(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeQueries.Add(ctx, -1)
}

// InitMetrics initializes all custom metrics on the global meter provider.
func InitMetrics(logger *slog.Logger) (*BatchMetrics, error) {
	metrics, err := InitBatchMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize batch metrics: %w", err)
	}

	logger.Info("custom batch fetch metrics initialized")
	return metrics, nil
}

type batchMetricsContextKey struct{}

// ContextWithBatchMetrics stores batch metrics in the provided context.
func ContextWithBatchMetrics(ctx context.Context, metrics *BatchMetrics) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, batchMetricsContextKey{}, metrics)
}

// BatchMetricsFromContext retrieves batch metrics from the context.
func BatchMetricsFromContext(ctx context.Context) *BatchMetrics {
	if ctx == nil {
		return nil
	}
	metrics, _ := ctx.Value(batchMetricsContextKey{}).(*BatchMetrics)
	return metrics
}
