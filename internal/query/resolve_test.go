package query

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batchfetch/internal/entitygraph"
)

func testGraph(t *testing.T) *entitygraph.Graph {
	t.Helper()
	g, err := entitygraph.NewBuilder().Add(
		entitygraph.EntitySpec{
			Name:    "Company",
			Table:   "COMPANY",
			Columns: []string{"id", "name"},
			Associations: []entitygraph.AssociationSpec{
				{Name: "employees", Target: "Employee", Cardinality: entitygraph.ToMany, JoinColumns: []string{"COMPANY_ID"}, Batch: true},
			},
		},
		entitygraph.EntitySpec{
			Name:    "Employee",
			Table:   "EMPLOYEE",
			Columns: []string{"id", "name"},
			Associations: []entitygraph.AssociationSpec{
				{Name: "company", Target: "Company", JoinColumns: []string{"COMPANY_ID"}, Batch: true},
			},
		},
		entitygraph.EntitySpec{
			Name:    "Record",
			Table:   "RECORD",
			Columns: []string{"id"},
			Associations: []entitygraph.AssociationSpec{
				{Name: "employee", Target: "Employee", JoinColumns: []string{"EMPLOYEE_ID"}, Batch: true},
			},
		},
	).Build()
	require.NoError(t, err)
	return g
}

func TestResolve_DirectSelection(t *testing.T) {
	g := testGraph(t)
	sel, err := Resolve(g, Select("Record"))
	require.NoError(t, err)
	assert.Equal(t, "Record", sel.Root.Name)
	assert.Same(t, sel.Root, sel.BatchRoot)
	assert.Empty(t, sel.Projection)
	assert.False(t, sel.Nested())
}

func TestResolve_NestedSelection(t *testing.T) {
	g := testGraph(t)
	sel, err := Resolve(g, Select("Record", "employee", "company"))
	require.NoError(t, err)
	assert.Equal(t, "Record", sel.Root.Name)
	assert.Equal(t, "Company", sel.BatchRoot.Name)
	require.Len(t, sel.Projection, 2)
	assert.Equal(t, "Record.employee", sel.Projection[0].String())
	assert.Equal(t, "Employee.company", sel.Projection[1].String())
	assert.True(t, sel.Nested())
}

func TestResolve_UnknownRoot(t *testing.T) {
	g := testGraph(t)
	_, err := Resolve(g, Select("Invoice"))
	var pathErr *entitygraph.UnresolvedPathError
	require.True(t, errors.As(err, &pathErr))
	assert.Equal(t, "Invoice", pathErr.Entity)
	assert.True(t, errors.Is(err, entitygraph.ErrUnknownEntity))
}

func TestResolve_UnknownSegment(t *testing.T) {
	g := testGraph(t)
	_, err := Resolve(g, Select("Record", "employee", "department"))
	var pathErr *entitygraph.UnresolvedPathError
	require.True(t, errors.As(err, &pathErr))
	assert.Equal(t, "Employee", pathErr.Entity)
	assert.Equal(t, "department", pathErr.Segment)
}

func TestResolve_CollectionPathRejected(t *testing.T) {
	g := testGraph(t)
	_, err := Resolve(g, Select("Company", "employees"))
	assert.ErrorIs(t, err, ErrCollectionPath)

	_, err = Resolve(g, Select("Company").Where(Eq("name", "x").On("employees")))
	assert.ErrorIs(t, err, ErrCollectionPath)
}

func TestResolve_Filters(t *testing.T) {
	g := testGraph(t)
	d, err := Parse("SELECT r.employee FROM Record r WHERE r.employee.company.name = ? AND r.id > 1 ORDER BY r.employee.name", "Acme")
	require.NoError(t, err)

	sel, err := Resolve(g, d)
	require.NoError(t, err)
	require.Len(t, sel.Filters, 2)
	assert.Equal(t, "Company", sel.Filters[0].Entity.Name)
	assert.Len(t, sel.Filters[0].Chain, 2)
	assert.Equal(t, "Record", sel.Filters[1].Entity.Name)
	assert.Empty(t, sel.Filters[1].Chain)
	require.Len(t, sel.Sorts, 1)
	assert.Equal(t, "Employee", sel.Sorts[0].Entity.Name)
}

func TestResolve_UnknownColumn(t *testing.T) {
	g := testGraph(t)
	_, err := Resolve(g, Select("Record").Where(Eq("missing", 1)))
	assert.ErrorIs(t, err, ErrUnknownColumn)

	_, err = Resolve(g, Select("Record").OrderByColumn("missing", false))
	assert.ErrorIs(t, err, ErrUnknownColumn)
}
