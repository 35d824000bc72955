package object

import (
	"sync"

	"batchfetch/internal/entitygraph"
)

// IdentityMap guarantees one Object per entity and primary key within a query
// execution. It is safe for concurrent use by the chunk workers of a fetch step.
type IdentityMap struct {
	mu       sync.Mutex
	byEntity map[string]map[Key]*Object
	loader   Loader
	count    int
}

// NewIdentityMap returns an empty map. Objects it creates get loader attached.
func NewIdentityMap(loader Loader) *IdentityMap {
	return &IdentityMap{
		byEntity: make(map[string]map[Key]*Object),
		loader:   loader,
	}
}

// SetLoader changes the loader attached to objects created from now on.
func (m *IdentityMap) SetLoader(loader Loader) {
	m.mu.Lock()
	m.loader = loader
	m.mu.Unlock()
}

// Materialize returns the existing object for the row's primary key, or
// registers a new one. The first row read for an identity wins. A row with a
// NULL primary key column has no identity: it always yields a fresh object
// that Lookup cannot find.
func (m *IdentityMap) Materialize(entity *entitygraph.Entity, values map[string]any) (*Object, bool) {
	candidate := New(entity, values)

	m.mu.Lock()
	defer m.mu.Unlock()

	candidate.loader = m.loader
	if !candidate.keyed {
		m.count++
		return candidate, false
	}

	objects, ok := m.byEntity[entity.Name]
	if !ok {
		objects = make(map[Key]*Object)
		m.byEntity[entity.Name] = objects
	}
	if existing, ok := objects[candidate.key]; ok {
		return existing, true
	}
	objects[candidate.key] = candidate
	m.count++
	return candidate, false
}

// Lookup finds a materialized object.
func (m *IdentityMap) Lookup(entity string, key Key) (*Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byEntity[entity][key]
	return o, ok
}

// Len returns the number of distinct objects.
func (m *IdentityMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}
