// Package session runs queries end to end: it resolves the descriptor, plans
// the batch steps for the batch root, runs the root query, and loads the
// planned associations according to the fetch mode.
package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"batchfetch/internal/batch"
	"batchfetch/internal/dbexec"
	"batchfetch/internal/dialect"
	"batchfetch/internal/entitygraph"
	"batchfetch/internal/logging"
	"batchfetch/internal/object"
	"batchfetch/internal/observability"
	"batchfetch/internal/planner"
	"batchfetch/internal/query"
)

// Session binds an entity graph to a query executor.
type Session struct {
	graph     *entitygraph.Graph
	exec      dbexec.QueryExecutor
	dialect   dialect.Dialect
	logger    *logging.Logger
	metrics   *observability.BatchMetrics
	batchOpts batch.Options
	planOpts  planner.PlanOptions
	mode      FetchMode
}

// Option configures a Session.
type Option func(*Session)

// WithDialect sets the SQL dialect. The default is MySQL.
func WithDialect(d dialect.Dialect) Option {
	return func(s *Session) { s.dialect = d }
}

// WithLogger sets the base logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.BatchMetrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithBatchOptions sets chunk size and concurrency.
func WithBatchOptions(o batch.Options) Option {
	return func(s *Session) { s.batchOpts = o }
}

// WithPlanOptions sets plan construction limits.
func WithPlanOptions(o planner.PlanOptions) Option {
	return func(s *Session) { s.planOpts = o }
}

// WithFetchMode sets the default fetch mode.
func WithFetchMode(m FetchMode) Option {
	return func(s *Session) { s.mode = m }
}

// New creates a session.
func New(graph *entitygraph.Graph, exec dbexec.QueryExecutor, opts ...Option) *Session {
	s := &Session{
		graph:   graph,
		exec:    exec,
		dialect: dialect.MySQL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithinTx returns a copy of the session that reads through tx.
func (s *Session) WithinTx(tx *sql.Tx) *Session {
	clone := *s
	clone.exec = dbexec.NewTxExecutor(tx)
	return &clone
}

// WithMode returns a copy of the session using mode.
func (s *Session) WithMode(mode FetchMode) *Session {
	clone := *s
	clone.mode = mode
	return &clone
}

// Graph returns the session's entity graph.
func (s *Session) Graph() *entitygraph.Graph {
	return s.graph
}

// Result is the outcome of one query execution.
type Result struct {
	QueryID string
	// Entity is the type of Objects: the batch root.
	Entity *entitygraph.Entity
	// Objects holds one entry per root row. A nested selection can return the
	// same object more than once.
	Objects []*object.Object
	Plan    *planner.Plan
	Mode    FetchMode

	report *batch.Report
	lazy   *batch.LazyLoader
	// shape is the batch plan of the query even in per-row mode, where Plan is nil.
	shape *planner.Plan
}

// LoadPlanned reads every association the batch plan covers, so a lazy or
// per-row result ends up with the same loaded graph an eager one has. Loading
// goes through each object's loader; for an eager result nothing is fetched.
func (r *Result) LoadPlanned(ctx context.Context) error {
	if r.shape == nil {
		return nil
	}
	return r.loadChildren(ctx, planner.RootOwner, r.Objects)
}

func (r *Result) loadChildren(ctx context.Context, owner int, owners []*object.Object) error {
	for _, step := range r.shape.Children(owner) {
		seen := make(map[*object.Object]struct{})
		var targets []*object.Object
		add := func(o *object.Object) {
			if o == nil {
				return
			}
			if _, dup := seen[o]; dup {
				return
			}
			seen[o] = struct{}{}
			targets = append(targets, o)
		}
		for _, o := range owners {
			if step.Edge.Cardinality == entitygraph.ToMany {
				items, err := o.Collection(ctx, step.Edge.Name)
				if err != nil {
					return err
				}
				for _, item := range items {
					add(item)
				}
				continue
			}
			target, err := o.Ref(ctx, step.Edge.Name)
			if err != nil {
				return err
			}
			add(target)
		}
		if err := r.loadChildren(ctx, step.Index, targets); err != nil {
			return err
		}
	}
	return nil
}

// Report returns the batch statements issued so far for this result.
func (r *Result) Report() batch.Report {
	switch {
	case r.lazy != nil:
		return r.lazy.Report()
	case r.report != nil:
		return *r.report
	default:
		return batch.Report{}
	}
}

// QueryString parses a JPQL-subset query and runs it.
func (s *Session) QueryString(ctx context.Context, jpql string, args ...any) (*Result, error) {
	d, err := query.Parse(jpql, args...)
	if err != nil {
		return nil, err
	}
	return s.Query(ctx, d)
}

// Query runs d.
func (s *Session) Query(ctx context.Context, d *query.Descriptor) (_ *Result, err error) {
	queryID := uuid.NewString()
	logger := s.baseLogger(ctx).WithQueryID(queryID)
	ctx = logging.WithQueryIDContext(logging.WithLogger(ctx, logger), queryID)

	metrics := s.metrics
	if metrics == nil {
		metrics = observability.BatchMetricsFromContext(ctx)
	}
	start := time.Now()
	metrics.IncrementActiveQueries(ctx)
	defer func() {
		metrics.DecrementActiveQueries(ctx)
		metrics.RecordQuery(ctx, time.Since(start), err != nil, s.mode.String())
	}()

	sel, err := query.Resolve(s.graph, d)
	if err != nil {
		return nil, err
	}

	// Per-row mode runs no batch steps; the plan still describes which
	// associations LoadPlanned reads.
	shape := planner.BuildPlan(s.graph, sel.BatchRoot, s.planOpts)
	var plan *planner.Plan
	if s.mode != FetchPerRow {
		plan = shape
		s.logPlan(ctx, logger, metrics, plan)
	}

	rq, err := planner.PlanRootQuery(s.graph, sel, s.dialect)
	if err != nil {
		return nil, err
	}

	info := observability.QueryInfo{
		QueryID:   queryID,
		Entity:    sel.Root.Name,
		BatchRoot: sel.BatchRoot.Name,
		Text:      d.String(),
		FetchMode: s.mode.String(),
	}
	if plan != nil {
		info.Steps = len(plan.Steps)
		info.Excluded = len(plan.Excluded)
	}
	ctx, span := observability.StartSpan(ctx, "batchfetch.query", observability.QuerySpanAttributes(info)...)
	defer func() { observability.FinishSpan(span, err) }()

	batchOpts := s.batchOpts
	batchOpts.Metrics = metrics
	batchOpts.Logger = logger

	identity := object.NewIdentityMap(nil)
	fetcher := &batch.Fetcher{Exec: s.exec, Dialect: s.dialect, Identity: identity}
	perRow := &batch.PerRowLoader{Graph: s.graph, Fetcher: fetcher, Options: batchOpts}
	identity.SetLoader(perRow)

	objects, err := fetcher.Objects(ctx, rq.SQLQuery, rq.Entity, rq.Columns)
	if err != nil {
		logger.ErrorContext(ctx, "root query failed", append(observability.QueryLogFields(ctx, info), "error", err)...)
		return nil, fmt.Errorf("root query: %w", err)
	}
	metrics.RecordResultsCount(ctx, int64(len(objects)), rq.Entity.Name)

	result := &Result{
		QueryID: queryID,
		Entity:  rq.Entity,
		Objects: objects,
		Plan:    plan,
		Mode:    s.mode,
		shape:   shape,
	}

	switch s.mode {
	case FetchEager:
		report, runErr := batch.NewExecutor(fetcher, batchOpts).Run(ctx, plan, objects)
		if runErr != nil {
			logger.ErrorContext(ctx, "batch fetch failed", append(observability.QueryLogFields(ctx, info), "error", runErr)...)
			return nil, runErr
		}
		result.report = report
	case FetchLazy:
		lazy := batch.NewLazyLoader(batch.NewExecutor(fetcher, batchOpts), plan, objects, perRow)
		identity.SetLoader(lazy)
		for _, o := range objects {
			o.SetLoader(lazy)
		}
		result.lazy = lazy
	}

	logger.DebugContext(ctx, "query completed", append(observability.QueryLogFields(ctx, info),
		"rows", len(objects),
		"batch_queries", result.Report().Queries,
		"duration_ms", time.Since(start).Milliseconds(),
	)...)
	return result, nil
}

func (s *Session) baseLogger(ctx context.Context) *logging.Logger {
	if s.logger != nil {
		return s.logger
	}
	return logging.FromContext(ctx)
}

func (s *Session) logPlan(ctx context.Context, logger *logging.Logger, metrics *observability.BatchMetrics, plan *planner.Plan) {
	logger.DebugContext(ctx, "batch plan built",
		"batch_root", plan.Root.Name,
		"steps", len(plan.Steps),
		"plan", plan.String(),
	)
	for _, excluded := range plan.Excluded {
		logger.DebugContext(ctx, "batch edge excluded", "edge", excluded.Edge.String(), "reason", excluded.Error())
		metrics.RecordBatchSkipped(ctx, excluded.Edge.String(), "cycle")
	}
	for _, edge := range plan.Truncated {
		logger.DebugContext(ctx, "batch edge beyond max depth", "edge", edge.String())
		metrics.RecordBatchSkipped(ctx, edge.String(), "max_depth")
	}
}
