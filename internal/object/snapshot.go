package object

import "batchfetch/internal/entitygraph"

// Snapshot renders the object and every loaded association as plain maps,
// suitable for encoding/json. Objects already on the current path are
// rendered as {"$ref": "Entity[pk]"} to break cycles. Unloaded associations
// are omitted; Snapshot never triggers a load.
func (o *Object) Snapshot() map[string]any {
	return o.snapshot(make(map[*Object]bool))
}

func (o *Object) snapshot(onPath map[*Object]bool) map[string]any {
	if onPath[o] {
		return map[string]any{"$ref": o.String()}
	}
	onPath[o] = true
	defer delete(onPath, o)

	out := make(map[string]any, len(o.values)+len(o.entity.Associations()))
	for k, v := range o.values {
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		out[k] = v
	}
	for _, assoc := range o.entity.Associations() {
		if assoc.Cardinality == entitygraph.ToOne {
			target, ok := o.LoadedRef(assoc.Name)
			if !ok {
				continue
			}
			if target == nil {
				out[assoc.Name] = nil
			} else {
				out[assoc.Name] = target.snapshot(onPath)
			}
			continue
		}
		if targets, ok := o.LoadedCollection(assoc.Name); ok {
			items := make([]map[string]any, len(targets))
			for i, t := range targets {
				items[i] = t.snapshot(onPath)
			}
			out[assoc.Name] = items
		}
	}
	return out
}

// SnapshotAll snapshots a result list.
func SnapshotAll(objects []*Object) []map[string]any {
	out := make([]map[string]any, len(objects))
	for i, o := range objects {
		out[i] = o.Snapshot()
	}
	return out
}
