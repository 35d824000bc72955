// Package testutil holds shared fixtures for engine tests: the
// Record/Employee/Company entity graph and in-memory SQLite databases seeded
// with matching rows.
package testutil

import (
	"testing"

	"batchfetch/internal/entitygraph"
)

// RecordSpecs returns the Record -> Employee -> Company metadata. Both to-one
// associations are batch-fetched with the IN strategy.
func RecordSpecs() []entitygraph.EntitySpec {
	return []entitygraph.EntitySpec{
		{Name: "Company", Table: "COMPANY", Columns: []string{"ID", "NAME"}, PrimaryKey: []string{"ID"}},
		{
			Name:       "Employee",
			Table:      "EMPLOYEE",
			Columns:    []string{"ID", "NAME"},
			PrimaryKey: []string{"ID"},
			Associations: []entitygraph.AssociationSpec{
				{Name: "company", Target: "Company", JoinColumns: []string{"COMPANY_ID"}, Batch: true},
			},
		},
		{
			Name:       "Record",
			Table:      "RECORD",
			Columns:    []string{"ID"},
			PrimaryKey: []string{"ID"},
			Associations: []entitygraph.AssociationSpec{
				{Name: "employee", Target: "Employee", JoinColumns: []string{"EMPLOYEE_ID"}, Batch: true},
			},
		},
	}
}

// WithAssociation appends an association to the named entity spec.
func WithAssociation(specs []entitygraph.EntitySpec, entity string, assoc entitygraph.AssociationSpec) []entitygraph.EntitySpec {
	for i := range specs {
		if specs[i].Name == entity {
			specs[i].Associations = append(specs[i].Associations, assoc)
		}
	}
	return specs
}

// WithStrategy sets the strategy of every association.
func WithStrategy(specs []entitygraph.EntitySpec, strategy entitygraph.Strategy) []entitygraph.EntitySpec {
	for i := range specs {
		for j := range specs[i].Associations {
			specs[i].Associations[j].Strategy = strategy
		}
	}
	return specs
}

// BuildGraph builds specs or fails the test.
func BuildGraph(t testing.TB, specs []entitygraph.EntitySpec) *entitygraph.Graph {
	t.Helper()
	g, err := entitygraph.NewBuilder().Add(specs...).Build()
	if err != nil {
		t.Fatalf("build entity graph: %v", err)
	}
	return g
}

// RecordGraph is BuildGraph(t, RecordSpecs()).
func RecordGraph(t testing.TB) *entitygraph.Graph {
	t.Helper()
	return BuildGraph(t, RecordSpecs())
}
