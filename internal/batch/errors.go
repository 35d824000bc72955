package batch

import (
	"fmt"

	"batchfetch/internal/entitygraph"
)

// BatchFetchExecutionError reports a failed fetch step. The whole plan is
// abandoned; no association of that execution is stitched by the failed run.
type BatchFetchExecutionError struct {
	Step int
	Edge *entitygraph.Association
	Err  error
}

func (e *BatchFetchExecutionError) Error() string {
	edge := "<unknown>"
	if e.Edge != nil {
		edge = e.Edge.String()
	}
	return fmt.Sprintf("batch fetch step %d (%s) failed: %v", e.Step, edge, e.Err)
}

func (e *BatchFetchExecutionError) Unwrap() error {
	return e.Err
}
