// Package entitygraph holds the mapping metadata the batch-fetch engine plans against:
// entities, their key columns, and the to-one/to-many associations between them.
// A Graph is built once (from YAML metadata or the builder API) and is read-only afterwards.
package entitygraph

import (
	"fmt"
	"strings"
)

// Cardinality distinguishes single-valued from collection-valued associations.
type Cardinality int

const (
	// ToOne is a many-to-one or one-to-one association; the FK lives on the source.
	ToOne Cardinality = iota
	// ToMany is a one-to-many association; the FK lives on the target.
	ToMany
)

func (c Cardinality) String() string {
	switch c {
	case ToOne:
		return "to_one"
	case ToMany:
		return "to_many"
	default:
		return fmt.Sprintf("cardinality(%d)", int(c))
	}
}

// ParseCardinality parses the metadata spelling of a cardinality.
func ParseCardinality(s string) (Cardinality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "to_one", "toone", "many_to_one", "one_to_one", "":
		return ToOne, nil
	case "to_many", "tomany", "one_to_many":
		return ToMany, nil
	default:
		return 0, fmt.Errorf("unknown cardinality %q", s)
	}
}

// Strategy selects how a batch fetch restricts the target rows to the current owners.
type Strategy string

const (
	// StrategyIn binds the distinct correlation keys into an IN list.
	StrategyIn Strategy = "IN"
	// StrategyExists correlates through an EXISTS subquery over the owner table.
	StrategyExists Strategy = "EXISTS"
	// StrategyJoin joins the owner table to the target and keys rows by owner primary key.
	StrategyJoin Strategy = "JOIN"
)

// ParseStrategy parses a strategy name; the empty string means StrategyIn.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "IN":
		return StrategyIn, nil
	case "EXISTS":
		return StrategyExists, nil
	case "JOIN":
		return StrategyJoin, nil
	default:
		return "", fmt.Errorf("unknown batch strategy %q", s)
	}
}

// Entity is one mapped type.
type Entity struct {
	Name       string
	Table      string
	Columns    []string
	PrimaryKey []string

	associations []*Association
	byName       map[string]*Association
	columnSet    map[string]struct{}
}

// Associations returns the outgoing associations in declaration order.
func (e *Entity) Associations() []*Association {
	return e.associations
}

// Association looks up an outgoing association by attribute name.
func (e *Entity) Association(name string) (*Association, bool) {
	a, ok := e.byName[name]
	return a, ok
}

// HasColumn reports whether column is mapped on the entity's table.
func (e *Entity) HasColumn(column string) bool {
	_, ok := e.columnSet[column]
	return ok
}

// ColumnIndex returns the position of column in Columns, or -1.
func (e *Entity) ColumnIndex(column string) int {
	for i, c := range e.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

func (e *Entity) String() string {
	return e.Name
}

// Association is a directed edge between two entities.
type Association struct {
	Name        string
	Source      string
	Target      string
	Cardinality Cardinality
	// JoinColumns are the FK columns: on the source table for ToOne, on the target table for ToMany.
	JoinColumns []string
	// ReferencedColumns are the key columns the FK points at: target PK for ToOne, source PK for ToMany.
	ReferencedColumns []string
	Batch             bool
	Strategy          Strategy
}

// OwnerKeyColumns returns the source-side columns whose values identify the related rows.
func (a *Association) OwnerKeyColumns() []string {
	if a.Cardinality == ToMany {
		return a.ReferencedColumns
	}
	return a.JoinColumns
}

// TargetKeyColumns returns the target-side columns matched against OwnerKeyColumns.
func (a *Association) TargetKeyColumns() []string {
	if a.Cardinality == ToMany {
		return a.JoinColumns
	}
	return a.ReferencedColumns
}

func (a *Association) String() string {
	return a.Source + "." + a.Name
}

// Graph is the immutable entity/association metadata table.
type Graph struct {
	entities map[string]*Entity
	order    []string
}

// Entity returns the entity registered under name.
func (g *Graph) Entity(name string) (*Entity, bool) {
	if g == nil {
		return nil, false
	}
	e, ok := g.entities[name]
	return e, ok
}

// Entities returns all entities in registration order.
func (g *Graph) Entities() []*Entity {
	out := make([]*Entity, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.entities[name])
	}
	return out
}

// EdgesOf returns the associations declared on entity, or nil if it is unknown.
func (g *Graph) EdgesOf(entity string) []*Association {
	e, ok := g.Entity(entity)
	if !ok {
		return nil
	}
	return e.associations
}

// ResolveChain walks path from root and returns the association for each segment.
func (g *Graph) ResolveChain(root string, path []string) ([]*Association, error) {
	current, ok := g.Entity(root)
	if !ok {
		return nil, &UnresolvedPathError{Entity: root, Path: path, Err: ErrUnknownEntity}
	}
	chain := make([]*Association, 0, len(path))
	for _, segment := range path {
		assoc, ok := current.Association(segment)
		if !ok {
			return nil, &UnresolvedPathError{Entity: current.Name, Segment: segment, Path: path}
		}
		chain = append(chain, assoc)
		current = g.entities[assoc.Target]
	}
	return chain, nil
}
