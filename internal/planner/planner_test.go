package planner

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batchfetch/internal/entitygraph"
	"batchfetch/internal/testutil"
)

func mustEntity(t *testing.T, g *entitygraph.Graph, name string) *entitygraph.Entity {
	t.Helper()
	e, ok := g.Entity(name)
	require.True(t, ok, "entity %s", name)
	return e
}

func stepEdges(p *Plan) []string {
	out := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.Edge.String()
	}
	return out
}

func TestBuildPlan_RecordChain(t *testing.T) {
	g := testutil.RecordGraph(t)
	plan := BuildPlan(g, mustEntity(t, g, "Record"), PlanOptions{})

	assert.Equal(t, []string{"Record.employee", "Employee.company"}, stepEdges(plan))
	assert.Equal(t, RootOwner, plan.Steps[0].Owner)
	assert.Equal(t, 1, plan.Steps[0].Depth)
	assert.Equal(t, 0, plan.Steps[1].Owner)
	assert.Equal(t, 2, plan.Steps[1].Depth)
	assert.Equal(t, entitygraph.StrategyIn, plan.Steps[1].Strategy)
	assert.Equal(t, "Employee", plan.Steps[1].Source.Name)
	assert.Equal(t, "Company", plan.Steps[1].Target.Name)
	assert.Empty(t, plan.Excluded)
}

func TestBuildPlan_NestedBatchRoot(t *testing.T) {
	g := testutil.RecordGraph(t)
	plan := BuildPlan(g, mustEntity(t, g, "Employee"), PlanOptions{})
	assert.Equal(t, []string{"Employee.company"}, stepEdges(plan))
}

func TestBuildPlan_LeafHasNoSteps(t *testing.T) {
	g := testutil.RecordGraph(t)
	plan := BuildPlan(g, mustEntity(t, g, "Company"), PlanOptions{})
	assert.Empty(t, plan.Steps)
	assert.Empty(t, plan.Excluded)
}

func TestBuildPlan_SelfReferenceExcluded(t *testing.T) {
	specs := testutil.WithAssociation(testutil.RecordSpecs(), "Employee",
		entitygraph.AssociationSpec{Name: "manager", Target: "Employee", JoinColumns: []string{"MANAGER_ID"}, Batch: true})
	g := testutil.BuildGraph(t, specs)

	plan := BuildPlan(g, mustEntity(t, g, "Record"), PlanOptions{})
	assert.Equal(t, []string{"Record.employee", "Employee.company"}, stepEdges(plan))
	require.Len(t, plan.Excluded, 1)
	assert.Equal(t, "Employee.manager", plan.Excluded[0].Edge.String())
	assert.Equal(t, []string{"Record", "Employee"}, plan.Excluded[0].Chain)

	var cyclic *CyclicBatchChainError
	require.True(t, errors.As(error(plan.Excluded[0]), &cyclic))
	assert.Contains(t, cyclic.Error(), "Record -> Employee returns to Employee via Employee.manager")
}

func TestBuildPlan_MutualCycleExcluded(t *testing.T) {
	specs := testutil.WithAssociation(testutil.RecordSpecs(), "Company",
		entitygraph.AssociationSpec{Name: "employees", Target: "Employee", Cardinality: entitygraph.ToMany, JoinColumns: []string{"COMPANY_ID"}, Batch: true})
	g := testutil.BuildGraph(t, specs)

	fromRecord := BuildPlan(g, mustEntity(t, g, "Record"), PlanOptions{})
	assert.Equal(t, []string{"Record.employee", "Employee.company"}, stepEdges(fromRecord))
	require.Len(t, fromRecord.Excluded, 1)
	assert.Equal(t, "Company.employees", fromRecord.Excluded[0].Edge.String())

	fromCompany := BuildPlan(g, mustEntity(t, g, "Company"), PlanOptions{})
	assert.Equal(t, []string{"Company.employees"}, stepEdges(fromCompany))
	require.Len(t, fromCompany.Excluded, 1)
	assert.Equal(t, "Employee.company", fromCompany.Excluded[0].Edge.String())
	assert.Equal(t, []string{"Company", "Employee"}, fromCompany.Excluded[0].Chain)
}

func TestBuildPlan_DeepChain(t *testing.T) {
	specs := append(testutil.RecordSpecs(),
		entitygraph.EntitySpec{Name: "Region", Table: "REGION", Columns: []string{"ID"}, PrimaryKey: []string{"ID"},
			Associations: []entitygraph.AssociationSpec{
				{Name: "country", Target: "Country", JoinColumns: []string{"COUNTRY_ID"}, Batch: true},
			}},
		entitygraph.EntitySpec{Name: "Country", Table: "COUNTRY", Columns: []string{"ID"}, PrimaryKey: []string{"ID"}},
	)
	specs = testutil.WithAssociation(specs, "Company",
		entitygraph.AssociationSpec{Name: "region", Target: "Region", JoinColumns: []string{"REGION_ID"}, Batch: true})
	g := testutil.BuildGraph(t, specs)

	plan := BuildPlan(g, mustEntity(t, g, "Record"), PlanOptions{})
	assert.Equal(t, []string{"Record.employee", "Employee.company", "Company.region", "Region.country"}, stepEdges(plan))
	for i, s := range plan.Steps {
		assert.Equal(t, i+1, s.Depth)
		assert.Equal(t, i-1, s.Owner)
	}

	chain := plan.Ancestors(3)
	require.Len(t, chain, 4)
	assert.Equal(t, "Record.employee", chain[0].Edge.String())
	assert.Equal(t, "Region.country", chain[3].Edge.String())

	limited := BuildPlan(g, mustEntity(t, g, "Record"), PlanOptions{MaxDepth: 2})
	assert.Equal(t, []string{"Record.employee", "Employee.company"}, stepEdges(limited))
	require.Len(t, limited.Truncated, 1)
	assert.Equal(t, "Company.region", limited.Truncated[0].String())
}

func TestBuildPlan_DiamondAndNonBatchEdges(t *testing.T) {
	specs := testutil.RecordSpecs()
	specs = testutil.WithAssociation(specs, "Record",
		entitygraph.AssociationSpec{Name: "approver", Target: "Employee", JoinColumns: []string{"APPROVER_ID"}, Batch: true})
	specs = testutil.WithAssociation(specs, "Record",
		entitygraph.AssociationSpec{Name: "auditor", Target: "Employee", JoinColumns: []string{"AUDITOR_ID"}})
	g := testutil.BuildGraph(t, specs)

	plan := BuildPlan(g, mustEntity(t, g, "Record"), PlanOptions{})
	assert.Equal(t, []string{"Record.employee", "Record.approver", "Employee.company", "Employee.company"}, stepEdges(plan))
	assert.Equal(t, 0, plan.Steps[2].Owner)
	assert.Equal(t, 1, plan.Steps[3].Owner)

	roots := plan.Children(RootOwner)
	require.Len(t, roots, 2)
	assert.Equal(t, "Record.approver", roots[1].Edge.String())

	for i, s := range plan.Steps {
		assert.Equal(t, i, s.Index)
		assert.Less(t, s.Owner, s.Index)
		if i > 0 {
			assert.GreaterOrEqual(t, s.Depth, plan.Steps[i-1].Depth)
		}
	}
}

func TestBuildPlan_NilRoot(t *testing.T) {
	plan := BuildPlan(testutil.RecordGraph(t), nil, PlanOptions{})
	assert.Empty(t, plan.Steps)
	assert.Equal(t, "<empty plan>", plan.String())
}
