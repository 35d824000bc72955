package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batchfetch/internal/dialect"
	"batchfetch/internal/entitygraph"
	"batchfetch/internal/testutil"
)

func tuples(values ...any) []ParentTuple {
	out := make([]ParentTuple, len(values))
	for i, v := range values {
		out[i] = ParentTuple{Values: []any{v}}
	}
	return out
}

func edgeFetch(t *testing.T, g *entitygraph.Graph, source, name string, strategy entitygraph.Strategy) EdgeFetch {
	t.Helper()
	src := mustEntity(t, g, source)
	edge, ok := src.Association(name)
	require.True(t, ok)
	return EdgeFetch{Edge: edge, Source: src, Target: mustEntity(t, g, edge.Target), Strategy: strategy}
}

func companyEmployeesGraph(t *testing.T) *entitygraph.Graph {
	specs := testutil.WithAssociation(testutil.RecordSpecs(), "Company",
		entitygraph.AssociationSpec{Name: "employees", Target: "Employee", Cardinality: entitygraph.ToMany, JoinColumns: []string{"COMPANY_ID"}, Batch: true})
	return testutil.BuildGraph(t, specs)
}

func TestPlanBatch_InToOne(t *testing.T) {
	g := testutil.RecordGraph(t)
	f := edgeFetch(t, g, "Employee", "company", entitygraph.StrategyIn)

	planned, err := PlanBatch(f, dialect.MySQL, tuples(1, 2))
	require.NoError(t, err)
	assert.Equal(t, "SELECT `ID`, `NAME`, `ID` AS __batch_parent_id FROM `COMPANY` WHERE `ID` IN (?,?) ORDER BY `ID`", planned.SQL)
	assert.Equal(t, []any{1, 2}, planned.Args)
	assert.Equal(t, []string{"COMPANY_ID"}, f.OwnerColumns())
	assert.Equal(t, []string{"ID", "NAME", BatchParentAlias}, f.ResultColumns())
}

func TestPlanBatch_InToMany(t *testing.T) {
	g := companyEmployeesGraph(t)
	f := edgeFetch(t, g, "Company", "employees", entitygraph.StrategyIn)

	planned, err := PlanBatch(f, dialect.Postgres, tuples(1, 2))
	require.NoError(t, err)
	assert.Equal(t, `SELECT "ID", "NAME", "COMPANY_ID", "COMPANY_ID" AS __batch_parent_id FROM "EMPLOYEE" WHERE "COMPANY_ID" IN ($1,$2) ORDER BY "ID"`, planned.SQL)
	assert.Equal(t, []any{1, 2}, planned.Args)
	assert.Equal(t, []string{"ID"}, f.OwnerColumns())
}

func TestPlanBatch_Exists(t *testing.T) {
	g := testutil.RecordGraph(t)
	f := edgeFetch(t, g, "Employee", "company", entitygraph.StrategyExists)

	planned, err := PlanBatch(f, dialect.Postgres, tuples(1, 2))
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "t"."ID", "t"."NAME", "t"."ID" AS __batch_parent_id FROM "COMPANY" "t" WHERE EXISTS (SELECT 1 FROM "EMPLOYEE" "o" WHERE "o"."COMPANY_ID" = "t"."ID" AND "o"."COMPANY_ID" IN ($1,$2)) ORDER BY "t"."ID"`,
		planned.SQL)
	assert.Equal(t, []any{1, 2}, planned.Args)
}

func TestPlanBatch_Join(t *testing.T) {
	g := testutil.RecordGraph(t)
	f := edgeFetch(t, g, "Employee", "company", entitygraph.StrategyJoin)

	planned, err := PlanBatch(f, dialect.MySQL, tuples(10, 11, 12))
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT `t`.`ID`, `t`.`NAME`, `o`.`ID` AS __batch_parent_id FROM `EMPLOYEE` `o` INNER JOIN `COMPANY` `t` ON `o`.`COMPANY_ID` = `t`.`ID` WHERE `o`.`ID` IN (?,?,?) ORDER BY `o`.`ID`, `t`.`ID`",
		planned.SQL)
	assert.Equal(t, []any{10, 11, 12}, planned.Args)
	assert.Equal(t, []string{"ID"}, f.OwnerColumns())
	assert.Equal(t, entitygraph.StrategyIn, f.PerOwner().Strategy)
}

func TestPlanBatch_CompositeKeys(t *testing.T) {
	g := testutil.BuildGraph(t, []entitygraph.EntitySpec{
		{Name: "Order", Table: "orders", Columns: []string{"region", "num"}, PrimaryKey: []string{"region", "num"}},
		{Name: "Line", Table: "lines", Columns: []string{"id"}, Associations: []entitygraph.AssociationSpec{
			{Name: "order", Target: "Order", JoinColumns: []string{"order_region", "order_num"}, Batch: true},
		}},
	})
	f := edgeFetch(t, g, "Line", "order", entitygraph.StrategyIn)

	planned, err := PlanBatch(f, dialect.SQLite, []ParentTuple{{Values: []any{"eu", 1}}, {Values: []any{"us", 2}}})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "region", "num", "region" AS __batch_parent_0, "num" AS __batch_parent_1 FROM "orders" WHERE ("region", "num") IN ((?,?), (?,?)) ORDER BY "region", "num"`,
		planned.SQL)
	assert.Equal(t, []any{"eu", 1, "us", 2}, planned.Args)
	assert.Equal(t, []string{"__batch_parent_0", "__batch_parent_1"}, f.ParentAliases())

	_, err = PlanBatch(f, dialect.SQLite, tuples("eu"))
	assert.ErrorContains(t, err, "tuple width mismatch")
}

func TestPlanBatch_EmptyChunk(t *testing.T) {
	g := testutil.RecordGraph(t)
	f := edgeFetch(t, g, "Employee", "company", entitygraph.StrategyIn)

	planned, err := PlanBatch(f, dialect.MySQL, nil)
	require.NoError(t, err)
	assert.True(t, planned.Empty())
}

func TestPlanBatch_UnknownStrategy(t *testing.T) {
	g := testutil.RecordGraph(t)
	f := edgeFetch(t, g, "Employee", "company", entitygraph.Strategy("SUBSELECT"))
	_, err := PlanBatch(f, dialect.MySQL, tuples(1))
	assert.ErrorContains(t, err, "unsupported batch strategy")
}

func TestBatchParentAliases(t *testing.T) {
	assert.Equal(t, []string{BatchParentAlias}, BatchParentAliases(1))
	assert.Equal(t, []string{"__batch_parent_0", "__batch_parent_1", "__batch_parent_2"}, BatchParentAliases(3))
}
