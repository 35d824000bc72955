package batch

import (
	"context"
	"fmt"

	"batchfetch/internal/dbexec"
	"batchfetch/internal/dialect"
	"batchfetch/internal/entitygraph"
	"batchfetch/internal/object"
	"batchfetch/internal/planner"
)

// Fetcher runs planned statements and materializes their rows through one
// execution's identity map.
type Fetcher struct {
	Exec     dbexec.QueryExecutor
	Dialect  dialect.Dialect
	Identity *object.IdentityMap
}

// keyedObject is one batch result row: the correlation key it answers and the
// target object it materialized.
type keyedObject struct {
	key    object.Key
	target *object.Object
}

// Objects runs q and materializes one object of entity per row, in row order.
// A row whose identity was already materialized yields the existing object.
func (f *Fetcher) Objects(ctx context.Context, q planner.SQLQuery, entity *entitygraph.Entity, columns []string) ([]*object.Object, error) {
	var out []*object.Object
	err := f.scan(ctx, q, len(columns), func(row []any) {
		obj, _ := f.Identity.Materialize(entity, rowValues(columns, row))
		out = append(out, obj)
	})
	return out, err
}

// fetchChunk runs one batch query for tuples and returns its keyed rows.
func (f *Fetcher) fetchChunk(ctx context.Context, fetch planner.EdgeFetch, tuples []planner.ParentTuple) ([]keyedObject, error) {
	q, err := planner.PlanBatch(fetch, f.Dialect, tuples)
	if err != nil {
		return nil, err
	}
	if q.Empty() {
		return nil, nil
	}

	columns := fetch.Target.Columns
	width := len(columns) + len(fetch.ParentAliases())
	var out []keyedObject
	err = f.scan(ctx, q, width, func(row []any) {
		obj, _ := f.Identity.Materialize(fetch.Target, rowValues(columns, row))
		out = append(out, keyedObject{
			key:    object.KeyOf(row[len(columns):]...),
			target: obj,
		})
	})
	return out, err
}

func (f *Fetcher) scan(ctx context.Context, q planner.SQLQuery, width int, each func(row []any)) error {
	rows, err := f.Exec.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		values := make([]any, width)
		ptrs := make([]any, width)
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		each(values)
	}
	return rows.Err()
}

func rowValues(columns []string, row []any) map[string]any {
	values := make(map[string]any, len(columns))
	for i, col := range columns {
		values[col] = normalizeValue(row[i])
	}
	return values
}

// Drivers reuse []byte buffers between rows.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
