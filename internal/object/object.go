// Package object is the in-memory entity graph produced by a query execution:
// one Object per row identity, with association slots that are either stitched
// by the batch executor or resolved through a Loader on first access.
package object

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"batchfetch/internal/entitygraph"
)

var (
	// ErrNotLoaded is returned when an association is read, has not been
	// populated, and no loader is attached.
	ErrNotLoaded = errors.New("association not loaded")
	// ErrUnknownAssociation is returned for names not declared on the entity.
	ErrUnknownAssociation = errors.New("unknown association")
	// ErrCardinality is returned when Ref is used on a to-many association or vice versa.
	ErrCardinality = errors.New("association cardinality mismatch")
)

// Loader populates an association slot on demand.
type Loader interface {
	LoadAssociation(ctx context.Context, owner *Object, assoc *entitygraph.Association) error
}

// Object is one materialized entity instance.
type Object struct {
	entity *entitygraph.Entity
	values map[string]any
	key    Key
	keyed  bool

	mu     sync.Mutex
	refs   map[string]*Object
	sets   map[string][]*Object
	loaded map[string]bool
	loader Loader
}

// New creates an object from column values. Values for unmapped columns are kept.
func New(entity *entitygraph.Entity, values map[string]any) *Object {
	o := &Object{
		entity: entity,
		values: values,
		refs:   make(map[string]*Object),
		sets:   make(map[string][]*Object),
		loaded: make(map[string]bool),
	}
	if o.values == nil {
		o.values = make(map[string]any)
	}
	o.key, o.keyed = o.KeyOf(entity.PrimaryKey)
	return o
}

// Entity returns the mapped type.
func (o *Object) Entity() *entitygraph.Entity {
	return o.entity
}

// Get returns a column value.
func (o *Object) Get(column string) any {
	return o.values[column]
}

// Values returns a copy of the column values.
func (o *Object) Values() map[string]any {
	return maps.Clone(o.values)
}

// Key returns the canonical primary key.
func (o *Object) Key() Key {
	return o.key
}

// HasKey reports whether every primary key column is non-NULL.
func (o *Object) HasKey() bool {
	return o.keyed
}

// KeyOf encodes the values of columns. ok is false when any value is NULL.
func (o *Object) KeyOf(columns []string) (Key, bool) {
	values, ok := o.Tuple(columns)
	if !ok {
		return "", false
	}
	return KeyOf(values...), true
}

// Tuple returns the raw values of columns. ok is false when any value is NULL.
func (o *Object) Tuple(columns []string) ([]any, bool) {
	values := make([]any, len(columns))
	for i, col := range columns {
		v := o.values[col]
		if v == nil {
			return nil, false
		}
		values[i] = v
	}
	return values, true
}

// SetLoader attaches the on-demand loader.
func (o *Object) SetLoader(l Loader) {
	o.mu.Lock()
	o.loader = l
	o.mu.Unlock()
}

// SetRef stores a to-one association value (nil means no related object) and marks it loaded.
func (o *Object) SetRef(name string, target *Object) {
	o.mu.Lock()
	o.refs[name] = target
	o.loaded[name] = true
	o.mu.Unlock()
}

// SetCollection stores a to-many association value and marks it loaded.
// A nil slice is stored as an empty collection.
func (o *Object) SetCollection(name string, targets []*Object) {
	if targets == nil {
		targets = []*Object{}
	}
	o.mu.Lock()
	o.sets[name] = targets
	o.loaded[name] = true
	o.mu.Unlock()
}

// IsLoaded reports whether the association slot has been populated.
func (o *Object) IsLoaded(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.loaded[name]
}

// LoadedRef returns a populated to-one value without triggering a load.
func (o *Object) LoadedRef(name string) (*Object, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.refs[name], o.loaded[name]
}

// LoadedCollection returns a populated to-many value without triggering a load.
func (o *Object) LoadedCollection(name string) ([]*Object, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sets[name], o.loaded[name]
}

// Ref returns the to-one association value, loading it through the attached
// loader when the slot is still empty.
func (o *Object) Ref(ctx context.Context, name string) (*Object, error) {
	assoc, err := o.association(name, entitygraph.ToOne)
	if err != nil {
		return nil, err
	}
	if target, ok := o.LoadedRef(name); ok {
		return target, nil
	}
	if err := o.load(ctx, assoc); err != nil {
		return nil, err
	}
	target, _ := o.LoadedRef(name)
	return target, nil
}

// Collection returns the to-many association value, loading it when needed.
func (o *Object) Collection(ctx context.Context, name string) ([]*Object, error) {
	assoc, err := o.association(name, entitygraph.ToMany)
	if err != nil {
		return nil, err
	}
	if targets, ok := o.LoadedCollection(name); ok {
		return targets, nil
	}
	if err := o.load(ctx, assoc); err != nil {
		return nil, err
	}
	targets, _ := o.LoadedCollection(name)
	return targets, nil
}

func (o *Object) association(name string, want entitygraph.Cardinality) (*entitygraph.Association, error) {
	assoc, ok := o.entity.Association(name)
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", o.entity.Name, name, ErrUnknownAssociation)
	}
	if assoc.Cardinality != want {
		return nil, fmt.Errorf("%s is %s: %w", assoc, assoc.Cardinality, ErrCardinality)
	}
	return assoc, nil
}

func (o *Object) load(ctx context.Context, assoc *entitygraph.Association) error {
	o.mu.Lock()
	loader := o.loader
	o.mu.Unlock()
	if loader == nil {
		return fmt.Errorf("%s: %w", assoc, ErrNotLoaded)
	}
	if err := loader.LoadAssociation(ctx, o, assoc); err != nil {
		return err
	}
	if !o.IsLoaded(assoc.Name) {
		return fmt.Errorf("%s: %w", assoc, ErrNotLoaded)
	}
	return nil
}

func (o *Object) String() string {
	return fmt.Sprintf("%s%v", o.entity.Name, o.primaryKeyValues())
}

func (o *Object) primaryKeyValues() []any {
	values := make([]any, len(o.entity.PrimaryKey))
	for i, col := range o.entity.PrimaryKey {
		values[i] = o.values[col]
	}
	return values
}
