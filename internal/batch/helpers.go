package batch

import (
	"batchfetch/internal/object"
	"batchfetch/internal/planner"
)

// uniqueOwnerTuples collects the distinct non-null key tuples of owners in
// first-seen order. Owners with any NULL key column contribute nothing.
func uniqueOwnerTuples(owners []*object.Object, columns []string) []planner.ParentTuple {
	if len(columns) == 0 {
		return nil
	}
	seen := make(map[object.Key]struct{}, len(owners))
	tuples := make([]planner.ParentTuple, 0, len(owners))
	for _, owner := range owners {
		values, ok := owner.Tuple(columns)
		if !ok {
			continue
		}
		key := object.KeyOf(values...)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		tuples = append(tuples, planner.ParentTuple{Values: values})
	}
	return tuples
}

// chunkParentTuples splits values into consecutive chunks of at most max.
func chunkParentTuples(values []planner.ParentTuple, max int) [][]planner.ParentTuple {
	if len(values) == 0 {
		return nil
	}
	if max <= 0 || len(values) <= max {
		return [][]planner.ParentTuple{values}
	}
	chunks := make([][]planner.ParentTuple, 0, (len(values)+max-1)/max)
	for start := 0; start < len(values); start += max {
		end := min(start+max, len(values))
		chunks = append(chunks, values[start:end])
	}
	return chunks
}

// distinctObjects drops repeated pointers, keeping first-seen order.
func distinctObjects(objects []*object.Object) []*object.Object {
	seen := make(map[*object.Object]struct{}, len(objects))
	out := make([]*object.Object, 0, len(objects))
	for _, o := range objects {
		if o == nil {
			continue
		}
		if _, dup := seen[o]; dup {
			continue
		}
		seen[o] = struct{}{}
		out = append(out, o)
	}
	return out
}

// queriesSaved compares one query per owner with one query per chunk.
func queriesSaved(ownerCount, chunkCount int) int64 {
	if ownerCount <= 0 || chunkCount <= 0 {
		return 0
	}
	if saved := ownerCount - chunkCount; saved > 0 {
		return int64(saved)
	}
	return 0
}
