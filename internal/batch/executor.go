// Package batch executes a fetch plan: every step loads one association for
// all of its owners with a bounded number of chunked queries, and the results
// are stitched onto the owners only after every step has succeeded.
package batch

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"batchfetch/internal/logging"
	"batchfetch/internal/object"
	"batchfetch/internal/observability"
	"batchfetch/internal/planner"
)

const (
	// DefaultMaxInClause is the default number of correlation tuples per query.
	DefaultMaxInClause = 1000
	// DefaultConcurrency is the default number of chunk queries in flight per step.
	DefaultConcurrency = 4
)

// Options tunes step execution.
type Options struct {
	// MaxInClause caps the tuples bound into one batch query.
	MaxInClause int
	// Concurrency caps the chunk queries of one step running at once.
	Concurrency int
	Metrics     *observability.BatchMetrics
	Logger      *logging.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxInClause <= 0 {
		o.MaxInClause = DefaultMaxInClause
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	return o
}

// StepReport describes one executed step.
type StepReport struct {
	Index    int
	Edge     string
	Strategy string
	Owners   int
	Keys     int
	Chunks   int
	Rows     int
	Targets  int
	Duration time.Duration
}

// Report summarizes a plan execution.
type Report struct {
	Steps []StepReport
	// Queries is the number of batch statements issued.
	Queries int
}

// Executor runs plans against one execution's identity map.
type Executor struct {
	fetcher *Fetcher
	opts    Options
}

// NewExecutor builds an executor around fetcher.
func NewExecutor(fetcher *Fetcher, opts Options) *Executor {
	return &Executor{fetcher: fetcher, opts: opts.withDefaults()}
}

// Options returns the effective options.
func (e *Executor) Options() Options {
	return e.opts
}

// stepResult is the unstitched outcome of a step.
type stepResult struct {
	owners  []*object.Object
	index   OwnerKeyIndex
	targets []*object.Object
	report  StepReport
}

// Run executes every step of plan for roots, then stitches all of them. On
// error nothing is stitched and the error is a *BatchFetchExecutionError.
func (e *Executor) Run(ctx context.Context, plan *planner.Plan, roots []*object.Object) (*Report, error) {
	report := &Report{}
	if plan == nil || len(plan.Steps) == 0 {
		return report, nil
	}
	roots = distinctObjects(roots)

	results := make([]*stepResult, len(plan.Steps))
	for i, step := range plan.Steps {
		owners := roots
		if step.Owner != planner.RootOwner {
			owners = results[step.Owner].targets
		}
		res, err := e.fetchStep(ctx, step, owners)
		if err != nil {
			return report, &BatchFetchExecutionError{Step: step.Index, Edge: step.Edge, Err: err}
		}
		results[i] = res
		report.Steps = append(report.Steps, res.report)
		report.Queries += res.report.Chunks
	}

	for i, step := range plan.Steps {
		Stitch(step, results[i].owners, results[i].index)
	}
	return report, nil
}

// fetchStep issues the chunk queries of step for owners and indexes the rows.
func (e *Executor) fetchStep(ctx context.Context, step planner.FetchStep, owners []*object.Object) (_ *stepResult, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	edge := step.Edge.String()
	strategy := string(step.Strategy)

	ctx, span := observability.StartSpan(ctx, "batchfetch.step",
		attribute.String("batchfetch.edge", edge),
		attribute.String("batchfetch.strategy", strategy),
		attribute.Int("batchfetch.depth", step.Depth),
		attribute.Int("batchfetch.owners", len(owners)),
	)
	defer func() { observability.FinishSpan(span, err) }()

	tuples := uniqueOwnerTuples(owners, step.OwnerColumns())
	chunks := chunkParentTuples(tuples, e.opts.MaxInClause)
	partitions := make([][]keyedObject, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			rows, err := e.fetcher.fetchChunk(gctx, step.EdgeFetch, chunk)
			if err != nil {
				return fmt.Errorf("chunk %d of %d: %w", i+1, len(chunks), err)
			}
			partitions[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	index, targets := mergePartitions(partitions)
	rows := 0
	for _, part := range partitions {
		rows += len(part)
	}
	res := &stepResult{
		owners:  owners,
		index:   index,
		targets: targets,
		report: StepReport{
			Index:    step.Index,
			Edge:     edge,
			Strategy: strategy,
			Owners:   len(owners),
			Keys:     len(tuples),
			Chunks:   len(chunks),
			Rows:     rows,
			Targets:  len(targets),
			Duration: time.Since(start),
		},
	}
	e.record(ctx, res.report)
	return res, nil
}

func (e *Executor) record(ctx context.Context, r StepReport) {
	e.opts.Metrics.RecordStep(ctx, r.Duration, r.Edge, r.Strategy, int64(r.Keys), int64(r.Rows), int64(r.Chunks))
	e.opts.Metrics.RecordBatchQueriesSaved(ctx, queriesSaved(r.Owners, r.Chunks), r.Edge)
	if e.opts.Logger != nil {
		e.opts.Logger.DebugContext(ctx, "batch step fetched",
			slogStep(r)...,
		)
	}
}

func slogStep(r StepReport) []any {
	return []any{
		"step", r.Index,
		"edge", r.Edge,
		"strategy", r.Strategy,
		"owners", r.Owners,
		"keys", r.Keys,
		"queries", r.Chunks,
		"rows", r.Rows,
		"duration_ms", r.Duration.Milliseconds(),
	}
}
