package entitygraph

import (
	"fmt"
	"slices"
)

// EntitySpec declares one entity. Empty fields are filled from naming defaults.
type EntitySpec struct {
	Name         string            `yaml:"name"`
	Table        string            `yaml:"table"`
	Columns      []string          `yaml:"columns"`
	PrimaryKey   []string          `yaml:"primary_key"`
	Associations []AssociationSpec `yaml:"associations"`
}

// AssociationSpec declares one outgoing association of an entity.
type AssociationSpec struct {
	Name              string      `yaml:"name"`
	Target            string      `yaml:"target"`
	Cardinality       Cardinality `yaml:"cardinality"`
	JoinColumns       []string    `yaml:"join_columns"`
	ReferencedColumns []string    `yaml:"referenced_columns"`
	Batch             bool        `yaml:"batch"`
	Strategy          Strategy    `yaml:"strategy"`
}

// Builder collects entity declarations and produces a validated Graph.
type Builder struct {
	specs []EntitySpec
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Add registers entity declarations.
func (b *Builder) Add(specs ...EntitySpec) *Builder {
	b.specs = append(b.specs, specs...)
	return b
}

// Build resolves defaults, links associations, and validates the graph.
func (b *Builder) Build() (*Graph, error) {
	g := &Graph{entities: make(map[string]*Entity, len(b.specs))}

	for _, spec := range b.specs {
		if spec.Name == "" {
			return nil, &MetadataError{Entity: "<unnamed>", Message: "entity name is required"}
		}
		if _, dup := g.entities[spec.Name]; dup {
			return nil, &MetadataError{Entity: spec.Name, Message: "declared more than once"}
		}
		e := &Entity{
			Name:       spec.Name,
			Table:      spec.Table,
			Columns:    slices.Clone(spec.Columns),
			PrimaryKey: slices.Clone(spec.PrimaryKey),
			byName:     make(map[string]*Association, len(spec.Associations)),
		}
		if e.Table == "" {
			e.Table = defaultTableName(e.Name)
		}
		if len(e.PrimaryKey) == 0 {
			e.PrimaryKey = []string{defaultPrimaryKey}
		}
		for _, pk := range e.PrimaryKey {
			if !slices.Contains(e.Columns, pk) {
				e.Columns = append([]string{pk}, e.Columns...)
			}
		}
		g.entities[e.Name] = e
		g.order = append(g.order, e.Name)
	}

	// Associations are linked in a second pass so declarations may reference
	// entities registered later.
	for _, spec := range b.specs {
		source := g.entities[spec.Name]
		for _, as := range spec.Associations {
			assoc, err := g.linkAssociation(source, as)
			if err != nil {
				return nil, err
			}
			source.associations = append(source.associations, assoc)
			source.byName[assoc.Name] = assoc
		}
	}

	for _, name := range g.order {
		e := g.entities[name]
		e.columnSet = make(map[string]struct{}, len(e.Columns))
		for _, c := range e.Columns {
			e.columnSet[c] = struct{}{}
		}
	}
	for _, name := range g.order {
		for _, assoc := range g.entities[name].associations {
			if err := g.validateAssociation(assoc); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}

func (g *Graph) linkAssociation(source *Entity, spec AssociationSpec) (*Association, error) {
	if spec.Name == "" {
		return nil, &MetadataError{Entity: source.Name, Message: "association name is required"}
	}
	if _, dup := source.byName[spec.Name]; dup {
		return nil, &MetadataError{Entity: source.Name, Association: spec.Name, Message: "declared more than once"}
	}
	target, ok := g.entities[spec.Target]
	if !ok {
		return nil, &MetadataError{
			Entity:      source.Name,
			Association: spec.Name,
			Message:     fmt.Sprintf("target %q: %v", spec.Target, ErrUnknownEntity),
		}
	}

	assoc := &Association{
		Name:              spec.Name,
		Source:            source.Name,
		Target:            target.Name,
		Cardinality:       spec.Cardinality,
		JoinColumns:       slices.Clone(spec.JoinColumns),
		ReferencedColumns: slices.Clone(spec.ReferencedColumns),
		Batch:             spec.Batch,
		Strategy:          spec.Strategy,
	}
	if assoc.Strategy == "" {
		assoc.Strategy = StrategyIn
	}

	switch assoc.Cardinality {
	case ToOne:
		if len(assoc.ReferencedColumns) == 0 {
			assoc.ReferencedColumns = slices.Clone(target.PrimaryKey)
		}
		if len(assoc.JoinColumns) == 0 {
			assoc.JoinColumns = defaultToOneJoinColumns(assoc.Name, assoc.ReferencedColumns)
		}
		// The FK of a to-one association is part of the owner's row.
		for _, col := range assoc.JoinColumns {
			if !slices.Contains(source.Columns, col) {
				source.Columns = append(source.Columns, col)
			}
		}
	case ToMany:
		if len(assoc.ReferencedColumns) == 0 {
			assoc.ReferencedColumns = slices.Clone(source.PrimaryKey)
		}
		if len(assoc.JoinColumns) == 0 {
			assoc.JoinColumns = defaultToManyJoinColumns(source.Name, assoc.ReferencedColumns)
		}
	default:
		return nil, &MetadataError{Entity: source.Name, Association: spec.Name, Message: "unknown cardinality"}
	}
	return assoc, nil
}

func (g *Graph) validateAssociation(a *Association) error {
	source := g.entities[a.Source]
	target := g.entities[a.Target]
	fail := func(format string, args ...any) error {
		return &MetadataError{Entity: a.Source, Association: a.Name, Message: fmt.Sprintf(format, args...)}
	}

	if len(a.JoinColumns) == 0 {
		return fail("no join column")
	}
	if len(a.JoinColumns) != len(a.ReferencedColumns) {
		return fail("join columns %v do not match referenced columns %v", a.JoinColumns, a.ReferencedColumns)
	}
	switch a.Strategy {
	case StrategyIn, StrategyExists, StrategyJoin:
	default:
		return fail("unknown batch strategy %q", a.Strategy)
	}

	fkOwner, refOwner := source, target
	if a.Cardinality == ToMany {
		fkOwner, refOwner = target, source
	}
	for _, col := range a.JoinColumns {
		if !fkOwner.HasColumn(col) {
			if a.Cardinality == ToMany && a.Batch {
				return fail("batch fetch needs owner id column %q on %s", col, fkOwner.Name)
			}
			return fail("join column %q is not mapped on %s", col, fkOwner.Name)
		}
	}
	for _, col := range a.ReferencedColumns {
		if !refOwner.HasColumn(col) {
			return fail("referenced column %q is not mapped on %s", col, refOwner.Name)
		}
	}
	if a.Strategy == StrategyJoin && len(source.PrimaryKey) == 0 {
		return fail("JOIN strategy needs a primary key on %s", source.Name)
	}
	return nil
}
