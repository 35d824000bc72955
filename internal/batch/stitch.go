package batch

import (
	"batchfetch/internal/entitygraph"
	"batchfetch/internal/object"
	"batchfetch/internal/planner"
)

// OwnerKeyIndex maps a correlation key to the target objects returned for it,
// in executor return order. It lives for one step of one execution.
type OwnerKeyIndex map[object.Key][]*object.Object

// mergePartitions builds the index from per-chunk results. Chunks carry
// disjoint keys, so the merge only concatenates.
func mergePartitions(partitions [][]keyedObject) (OwnerKeyIndex, []*object.Object) {
	index := make(OwnerKeyIndex)
	var targets []*object.Object
	seen := make(map[*object.Object]struct{})
	for _, part := range partitions {
		for _, row := range part {
			index[row.key] = append(index[row.key], row.target)
			if _, dup := seen[row.target]; !dup {
				seen[row.target] = struct{}{}
				targets = append(targets, row.target)
			}
		}
	}
	return index, targets
}

// Stitch assigns the association of step on every owner from index. A to-one
// owner gets its single match or nil; a to-many owner gets the matched slice
// or an empty one. Owners with a NULL correlation value get nil or empty.
// Every owner ends up marked loaded for the association.
func Stitch(step planner.FetchStep, owners []*object.Object, index OwnerKeyIndex) {
	stitchEdge(step.EdgeFetch, owners, index)
}

func stitchEdge(fetch planner.EdgeFetch, owners []*object.Object, index OwnerKeyIndex) {
	columns := fetch.OwnerColumns()
	name := fetch.Edge.Name
	for _, owner := range owners {
		var matched []*object.Object
		if key, ok := owner.KeyOf(columns); ok {
			matched = index[key]
		}
		if fetch.Edge.Cardinality == entitygraph.ToMany {
			owner.SetCollection(name, append([]*object.Object(nil), matched...))
			continue
		}
		var target *object.Object
		if len(matched) > 0 {
			target = matched[0]
		}
		owner.SetRef(name, target)
	}
}
