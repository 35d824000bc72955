package batch

import (
	"context"
	"sync"

	"batchfetch/internal/entitygraph"
	"batchfetch/internal/object"
	"batchfetch/internal/planner"
)

// LazyLoader defers every plan step until one of its owners first reads the
// association. The first read fetches the step for all of its owners at once,
// so a loop over the roots still issues one batch per chunk. A step is only
// considered once its owner step has been fetched; associations no such step
// covers fall back to the per-row loader.
type LazyLoader struct {
	mu       sync.Mutex
	executor *Executor
	plan     *planner.Plan
	roots    []*object.Object
	results  []*stepResult
	fallback object.Loader
	report   Report
}

// NewLazyLoader prepares deferred execution of plan over roots.
func NewLazyLoader(executor *Executor, plan *planner.Plan, roots []*object.Object, fallback object.Loader) *LazyLoader {
	l := &LazyLoader{
		executor: executor,
		plan:     plan,
		roots:    distinctObjects(roots),
		fallback: fallback,
	}
	if plan != nil {
		l.results = make([]*stepResult, len(plan.Steps))
	}
	return l
}

// Report returns what has been fetched so far.
func (l *LazyLoader) Report() Report {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.report
	out.Steps = append([]StepReport(nil), l.report.Steps...)
	return out
}

// LoadAssociation implements object.Loader.
func (l *LazyLoader) LoadAssociation(ctx context.Context, owner *object.Object, assoc *entitygraph.Association) error {
	metrics := l.executor.opts.Metrics

	l.mu.Lock()
	if owner.IsLoaded(assoc.Name) {
		l.mu.Unlock()
		metrics.RecordBatchCacheHit(ctx, assoc.String())
		return nil
	}
	if l.plan != nil {
		for _, step := range l.plan.Steps {
			if step.Edge != assoc {
				continue
			}
			// Only owner sets already in memory can hold owner; an unfetched
			// sibling branch is left alone.
			owners, fetched := l.fetchedOwners(step.Owner)
			if !fetched || !containsObject(owners, owner) {
				continue
			}
			metrics.RecordBatchCacheMiss(ctx, assoc.String())
			_, err := l.ensure(ctx, step)
			l.mu.Unlock()
			return err
		}
	}
	l.mu.Unlock()

	if l.fallback == nil {
		return nil
	}
	return l.fallback.LoadAssociation(ctx, owner, assoc)
}

// fetchedOwners returns the owners of steps whose Owner is owner without
// fetching anything. Callers hold l.mu.
func (l *LazyLoader) fetchedOwners(owner int) ([]*object.Object, bool) {
	if owner == planner.RootOwner {
		return l.roots, true
	}
	if res := l.results[owner]; res != nil {
		return res.targets, true
	}
	return nil, false
}

// ownersOf returns the owners of steps whose Owner is owner, fetching the
// owner step first when needed. Callers hold l.mu.
func (l *LazyLoader) ownersOf(ctx context.Context, owner int) ([]*object.Object, error) {
	if owner == planner.RootOwner {
		return l.roots, nil
	}
	res, err := l.ensure(ctx, l.plan.Steps[owner])
	if err != nil {
		return nil, err
	}
	return res.targets, nil
}

// ensure fetches and stitches step once. Callers hold l.mu.
func (l *LazyLoader) ensure(ctx context.Context, step planner.FetchStep) (*stepResult, error) {
	if res := l.results[step.Index]; res != nil {
		return res, nil
	}
	owners, err := l.ownersOf(ctx, step.Owner)
	if err != nil {
		return nil, err
	}
	res, err := l.executor.fetchStep(ctx, step, owners)
	if err != nil {
		return nil, &BatchFetchExecutionError{Step: step.Index, Edge: step.Edge, Err: err}
	}
	Stitch(step, res.owners, res.index)
	l.results[step.Index] = res
	l.report.Steps = append(l.report.Steps, res.report)
	l.report.Queries += res.report.Chunks
	return res, nil
}

func containsObject(objects []*object.Object, target *object.Object) bool {
	for _, o := range objects {
		if o == target {
			return true
		}
	}
	return false
}
