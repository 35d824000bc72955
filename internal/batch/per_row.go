package batch

import (
	"context"
	"fmt"
	"time"

	"batchfetch/internal/entitygraph"
	"batchfetch/internal/object"
	"batchfetch/internal/planner"
)

// PerRowLoader loads one association for one owner with one query. It backs
// edges that are not batched (or were excluded from the plan) and the per-row
// fetch mode used as the reference for batch results.
type PerRowLoader struct {
	Graph   *entitygraph.Graph
	Fetcher *Fetcher
	Options Options
}

// LoadAssociation implements object.Loader.
func (l *PerRowLoader) LoadAssociation(ctx context.Context, owner *object.Object, assoc *entitygraph.Association) error {
	if owner.IsLoaded(assoc.Name) {
		return nil
	}
	target, ok := l.Graph.Entity(assoc.Target)
	if !ok {
		return fmt.Errorf("%s: %w", assoc, entitygraph.ErrUnknownEntity)
	}
	fetch := planner.EdgeFetch{
		Edge:   assoc,
		Source: owner.Entity(),
		Target: target,
	}.PerOwner()

	var rows []keyedObject
	if tuple, ok := owner.Tuple(fetch.OwnerColumns()); ok {
		start := time.Now()
		var err error
		rows, err = l.Fetcher.fetchChunk(ctx, fetch, []planner.ParentTuple{{Values: tuple}})
		if err != nil {
			return fmt.Errorf("load %s for %s: %w", assoc, owner, err)
		}
		l.Options.Metrics.RecordStep(ctx, time.Since(start), assoc.String(), "per_row", 1, int64(len(rows)), 1)
	}
	index, _ := mergePartitions([][]keyedObject{rows})
	stitchEdge(fetch, []*object.Object{owner}, index)
	return nil
}
