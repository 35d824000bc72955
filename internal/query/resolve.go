package query

import (
	"errors"
	"fmt"
	"strings"

	"batchfetch/internal/entitygraph"
)

var (
	// ErrCollectionPath is returned when a projection or filter path crosses a
	// to-many association; only single-valued paths can be joined into the root query.
	ErrCollectionPath = errors.New("path crosses a collection-valued association")
	// ErrUnknownColumn is returned when a filter or order term names an unmapped column.
	ErrUnknownColumn = errors.New("unknown column")
)

// Filter is a predicate bound to the association chain that reaches its entity.
type Filter struct {
	Predicate
	Chain  []*entitygraph.Association
	Entity *entitygraph.Entity
}

// Sort is an order term bound to its association chain.
type Sort struct {
	Order
	Chain  []*entitygraph.Association
	Entity *entitygraph.Entity
}

// Selection is a descriptor resolved against the entity graph.
type Selection struct {
	Descriptor *Descriptor
	Root       *entitygraph.Entity
	// Projection is the chain from Root to the selected node; empty for a direct selection.
	Projection []*entitygraph.Association
	// BatchRoot is the entity of the returned objects and the start of batch planning.
	BatchRoot *entitygraph.Entity
	Filters   []Filter
	Sorts     []Sort
}

// Nested reports whether the query selects an attribute reached from the root.
func (s *Selection) Nested() bool {
	return len(s.Projection) > 0
}

// Resolve checks d against graph and binds every path to its associations.
// It runs no SQL; failures surface before any query is issued.
func Resolve(graph *entitygraph.Graph, d *Descriptor) (*Selection, error) {
	if d == nil {
		return nil, errors.New("nil query descriptor")
	}
	root, ok := graph.Entity(d.Root)
	if !ok {
		return nil, &entitygraph.UnresolvedPathError{Entity: d.Root, Path: d.Path, Err: entitygraph.ErrUnknownEntity}
	}

	projection, target, err := resolveSingleValued(graph, root, d.Path)
	if err != nil {
		return nil, err
	}

	sel := &Selection{
		Descriptor: d,
		Root:       root,
		Projection: projection,
		BatchRoot:  target,
	}

	for _, p := range d.Predicates {
		chain, entity, err := resolveSingleValued(graph, root, p.Path)
		if err != nil {
			return nil, err
		}
		if !entity.HasColumn(p.Column) {
			return nil, fmt.Errorf("where %s: %s.%s: %w", p, entity.Name, p.Column, ErrUnknownColumn)
		}
		sel.Filters = append(sel.Filters, Filter{Predicate: p, Chain: chain, Entity: entity})
	}

	for _, o := range d.OrderBy {
		chain, entity, err := resolveSingleValued(graph, root, o.Path)
		if err != nil {
			return nil, err
		}
		if !entity.HasColumn(o.Column) {
			return nil, fmt.Errorf("order by %s.%s: %w", entity.Name, o.Column, ErrUnknownColumn)
		}
		sel.Sorts = append(sel.Sorts, Sort{Order: o, Chain: chain, Entity: entity})
	}

	return sel, nil
}

func resolveSingleValued(graph *entitygraph.Graph, root *entitygraph.Entity, path []string) ([]*entitygraph.Association, *entitygraph.Entity, error) {
	chain, err := graph.ResolveChain(root.Name, path)
	if err != nil {
		return nil, nil, err
	}
	current := root
	for _, assoc := range chain {
		if assoc.Cardinality == entitygraph.ToMany {
			return nil, nil, fmt.Errorf("%s (%s): %w", strings.Join(path, "."), assoc, ErrCollectionPath)
		}
		next, ok := graph.Entity(assoc.Target)
		if !ok {
			return nil, nil, &entitygraph.UnresolvedPathError{Entity: assoc.Target, Path: path, Err: entitygraph.ErrUnknownEntity}
		}
		current = next
	}
	return chain, current, nil
}
