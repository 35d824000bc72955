package planner

import (
	"fmt"
	"strings"

	"batchfetch/internal/dialect"
	"batchfetch/internal/entitygraph"
	"batchfetch/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
)

const (
	ownerAlias  = "o"
	targetAlias = "t"
)

// EdgeFetch is everything needed to fetch the targets of one association for
// a set of owners.
type EdgeFetch struct {
	Edge     *entitygraph.Association
	Source   *entitygraph.Entity
	Target   *entitygraph.Entity
	Strategy entitygraph.Strategy
}

// OwnerColumns are the owner columns whose values form the correlation tuples
// bound into a batch query. IN and EXISTS correlate on the association key;
// JOIN correlates on the owner primary key.
func (f EdgeFetch) OwnerColumns() []string {
	if f.Strategy == entitygraph.StrategyJoin {
		return f.Source.PrimaryKey
	}
	return f.Edge.OwnerKeyColumns()
}

// ParentAliases are the extra result columns carrying each row's correlation key.
func (f EdgeFetch) ParentAliases() []string {
	return BatchParentAliases(len(f.OwnerColumns()))
}

// ResultColumns lists the columns of a batch result row in scan order.
func (f EdgeFetch) ResultColumns() []string {
	cols := make([]string, 0, len(f.Target.Columns)+len(f.OwnerColumns()))
	cols = append(cols, f.Target.Columns...)
	return append(cols, f.ParentAliases()...)
}

// PerOwner returns the fetch used to load the association for a single owner:
// always a plain IN lookup.
func (f EdgeFetch) PerOwner() EdgeFetch {
	f.Strategy = entitygraph.StrategyIn
	return f
}

// PlanBatch builds the SQL for one chunk of correlation tuples. An empty chunk
// yields an empty SQLQuery and nothing should be executed.
func PlanBatch(f EdgeFetch, d dialect.Dialect, tuples []ParentTuple) (SQLQuery, error) {
	if len(tuples) == 0 {
		return SQLQuery{}, nil
	}
	if f.Edge == nil || f.Source == nil || f.Target == nil {
		return SQLQuery{}, fmt.Errorf("batch fetch requires an association and both entities")
	}
	if len(f.Target.PrimaryKey) == 0 {
		return SQLQuery{}, fmt.Errorf("%w: entity %s", ErrNoPrimaryKey, f.Target.Name)
	}
	switch f.Strategy {
	case entitygraph.StrategyIn, "":
		return planInBatch(f, d, tuples)
	case entitygraph.StrategyExists:
		return planExistsBatch(f, d, tuples)
	case entitygraph.StrategyJoin:
		return planJoinBatch(f, d, tuples)
	default:
		return SQLQuery{}, fmt.Errorf("unsupported batch strategy %q", f.Strategy)
	}
}

// planInBatch selects target rows whose key columns are in the owner tuples:
// the target PK for to-one associations, the target FK for to-many.
func planInBatch(f EdgeFetch, d dialect.Dialect, tuples []ParentTuple) (SQLQuery, error) {
	keyCols := f.Edge.TargetKeyColumns()
	aliases := BatchParentAliases(len(keyCols))

	builder := sq.Select(sqlutil.QualifyAll(d.Quote, "", f.Target.Columns)...).
		From(d.Quote(f.Target.Table))
	for i, col := range keyCols {
		builder = builder.Column(fmt.Sprintf("%s AS %s", d.Quote(col), aliases[i]))
	}

	whereSQL, whereArgs, err := buildTupleInCondition(sqlutil.QualifyAll(d.Quote, "", keyCols), tuples)
	if err != nil {
		return SQLQuery{}, err
	}
	builder = builder.
		Where(sq.Expr(whereSQL, whereArgs...)).
		OrderBy(sqlutil.QualifyAll(d.Quote, "", f.Target.PrimaryKey)...)
	return toSQLQuery(builder.PlaceholderFormat(d.Placeholder))
}

// planExistsBatch restricts target rows with a correlated EXISTS over the
// owner table instead of binding the keys against the target directly.
func planExistsBatch(f EdgeFetch, d dialect.Dialect, tuples []ParentTuple) (SQLQuery, error) {
	ownerCols := f.Edge.OwnerKeyColumns()
	targetCols := f.Edge.TargetKeyColumns()
	aliases := BatchParentAliases(len(targetCols))

	inSQL, inArgs, err := buildTupleInCondition(sqlutil.QualifyAll(d.Quote, ownerAlias, ownerCols), tuples)
	if err != nil {
		return SQLQuery{}, err
	}
	subSQL, subArgs, err := sq.Select("1").
		From(d.Quote(f.Source.Table) + " " + d.Quote(ownerAlias)).
		Where(correlation(d.Quote, ownerCols, targetCols)).
		Where(sq.Expr(inSQL, inArgs...)).
		ToSql()
	if err != nil {
		return SQLQuery{}, err
	}

	builder := sq.Select(sqlutil.QualifyAll(d.Quote, targetAlias, f.Target.Columns)...).
		From(d.Quote(f.Target.Table) + " " + d.Quote(targetAlias))
	for i, col := range targetCols {
		builder = builder.Column(fmt.Sprintf("%s AS %s", sqlutil.Qualify(d.Quote, targetAlias, col), aliases[i]))
	}
	builder = builder.
		Where(sq.Expr("EXISTS ("+subSQL+")", subArgs...)).
		OrderBy(sqlutil.QualifyAll(d.Quote, targetAlias, f.Target.PrimaryKey)...)
	return toSQLQuery(builder.PlaceholderFormat(d.Placeholder))
}

// planJoinBatch joins the owner table to the target and returns the owner
// primary key with every target row. A target shared by several owners is
// returned once per owner.
func planJoinBatch(f EdgeFetch, d dialect.Dialect, tuples []ParentTuple) (SQLQuery, error) {
	ownerPK := f.Source.PrimaryKey
	if len(ownerPK) == 0 {
		return SQLQuery{}, fmt.Errorf("%w: entity %s", ErrNoPrimaryKey, f.Source.Name)
	}
	aliases := BatchParentAliases(len(ownerPK))

	builder := sq.Select(sqlutil.QualifyAll(d.Quote, targetAlias, f.Target.Columns)...).
		From(d.Quote(f.Source.Table) + " " + d.Quote(ownerAlias))
	for i, col := range ownerPK {
		builder = builder.Column(fmt.Sprintf("%s AS %s", sqlutil.Qualify(d.Quote, ownerAlias, col), aliases[i]))
	}
	builder = builder.InnerJoin(fmt.Sprintf("%s %s ON %s",
		d.Quote(f.Target.Table), d.Quote(targetAlias),
		correlation(d.Quote, f.Edge.OwnerKeyColumns(), f.Edge.TargetKeyColumns())))

	whereSQL, whereArgs, err := buildTupleInCondition(sqlutil.QualifyAll(d.Quote, ownerAlias, ownerPK), tuples)
	if err != nil {
		return SQLQuery{}, err
	}
	builder = builder.
		Where(sq.Expr(whereSQL, whereArgs...)).
		OrderBy(sqlutil.QualifyAll(d.Quote, ownerAlias, ownerPK)...).
		OrderBy(sqlutil.QualifyAll(d.Quote, targetAlias, f.Target.PrimaryKey)...)
	return toSQLQuery(builder.PlaceholderFormat(d.Placeholder))
}

// correlation renders o.owner_i = t.target_i for every key column pair.
func correlation(quote sqlutil.QuoteFunc, ownerCols, targetCols []string) string {
	conds := make([]string, len(ownerCols))
	for i := range ownerCols {
		conds[i] = fmt.Sprintf("%s = %s",
			sqlutil.Qualify(quote, ownerAlias, ownerCols[i]),
			sqlutil.Qualify(quote, targetAlias, targetCols[i]))
	}
	return strings.Join(conds, " AND ")
}

func buildTupleInCondition(quotedColumns []string, tuples []ParentTuple) (string, []any, error) {
	if len(tuples) == 0 {
		return "", nil, nil
	}
	width := len(quotedColumns)
	if width == 0 {
		return "", nil, fmt.Errorf("tuple IN requires at least one column")
	}

	if width == 1 {
		placeholders := sq.Placeholders(len(tuples))
		args := make([]any, 0, len(tuples))
		for _, tuple := range tuples {
			if len(tuple.Values) != 1 {
				return "", nil, fmt.Errorf("tuple width mismatch: expected 1 value")
			}
			args = append(args, tuple.Values[0])
		}
		return fmt.Sprintf("%s IN (%s)", quotedColumns[0], placeholders), args, nil
	}

	args := make([]any, 0, len(tuples)*width)
	rowPlaceholders := make([]string, 0, len(tuples))
	valuePlaceholders := "(" + strings.TrimSuffix(strings.Repeat("?,", width), ",") + ")"
	for _, tuple := range tuples {
		if len(tuple.Values) != width {
			return "", nil, fmt.Errorf("tuple width mismatch: expected %d values", width)
		}
		rowPlaceholders = append(rowPlaceholders, valuePlaceholders)
		args = append(args, tuple.Values...)
	}

	return fmt.Sprintf("(%s) IN (%s)", strings.Join(quotedColumns, ", "), strings.Join(rowPlaceholders, ", ")), args, nil
}
