package planner

import (
	"errors"
	"fmt"
	"strings"

	"batchfetch/internal/dialect"
	"batchfetch/internal/entitygraph"
	"batchfetch/internal/query"
	"batchfetch/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
)

// ErrNoPrimaryKey indicates a required primary key is missing for a batch plan.
var ErrNoPrimaryKey = errors.New("no primary key")

// BatchParentAlias is the column alias used to return parent keys in batch queries.
const BatchParentAlias = "__batch_parent_id"

const batchParentAliasPrefix = "__batch_parent_"

// ParentTuple represents an ordered composite parent key used in batch plans.
type ParentTuple struct {
	Values []any
}

// BatchParentAliases returns the extra scan aliases emitted by batch SQL.
func BatchParentAliases(columnCount int) []string {
	if columnCount <= 1 {
		return []string{BatchParentAlias}
	}
	aliases := make([]string, columnCount)
	for i := 0; i < columnCount; i++ {
		aliases[i] = batchParentAliasPrefix + fmt.Sprint(i)
	}
	return aliases
}

// SQLQuery represents a planned SQL statement with bound args.
type SQLQuery struct {
	SQL  string
	Args []any
}

// Empty reports whether there is nothing to execute.
func (q SQLQuery) Empty() bool {
	return q.SQL == ""
}

// RootQuery is the planned root statement plus the column layout of its rows.
type RootQuery struct {
	SQLQuery
	// Entity is the type materialized from each row.
	Entity *entitygraph.Entity
	// Columns lists Entity's columns in select order.
	Columns []string
}

// PlanRootQuery builds the statement that selects the batch-root rows of sel.
//
// Every association on the projection, filter and order paths becomes an
// INNER JOIN (t0 is the query root, t1.. follow in first-use order). A nested
// selection returns one row per root row that reaches a target, without
// DISTINCT, so the row order mirrors the root order.
func PlanRootQuery(graph *entitygraph.Graph, sel *query.Selection, d dialect.Dialect) (RootQuery, error) {
	if sel == nil || sel.Root == nil || sel.BatchRoot == nil {
		return RootQuery{}, errors.New("root query requires a resolved selection")
	}
	if len(sel.BatchRoot.PrimaryKey) == 0 {
		return RootQuery{}, fmt.Errorf("%w: entity %s", ErrNoPrimaryKey, sel.BatchRoot.Name)
	}

	joins := newJoinTree(graph, d.Quote)
	if err := joins.add(sel.Projection); err != nil {
		return RootQuery{}, err
	}
	for _, f := range sel.Filters {
		if err := joins.add(f.Chain); err != nil {
			return RootQuery{}, err
		}
	}
	for _, s := range sel.Sorts {
		if err := joins.add(s.Chain); err != nil {
			return RootQuery{}, err
		}
	}

	targetAlias := joins.aliasOf(sel.Projection)
	builder := sq.Select(sqlutil.QualifyAll(d.Quote, targetAlias, sel.BatchRoot.Columns)...).
		From(d.Quote(sel.Root.Table) + " " + d.Quote(rootAlias))
	for _, j := range joins.clauses {
		builder = builder.InnerJoin(j)
	}

	for _, f := range sel.Filters {
		cond, err := f.Sqlizer(sqlutil.Qualify(d.Quote, joins.aliasOf(f.Chain), f.Column))
		if err != nil {
			return RootQuery{}, fmt.Errorf("where %s: %w", f.Predicate, err)
		}
		builder = builder.Where(cond)
	}

	if len(sel.Sorts) > 0 {
		for _, s := range sel.Sorts {
			builder = builder.OrderBy(orderTerm(sqlutil.Qualify(d.Quote, joins.aliasOf(s.Chain), s.Column), s.Desc))
		}
	} else {
		// Stable default: root identity, then target identity for nested selections.
		builder = builder.OrderBy(sqlutil.QualifyAll(d.Quote, rootAlias, sel.Root.PrimaryKey)...)
		if len(sel.Projection) > 0 {
			builder = builder.OrderBy(sqlutil.QualifyAll(d.Quote, targetAlias, sel.BatchRoot.PrimaryKey)...)
		}
	}

	if sel.Descriptor != nil && sel.Descriptor.Limit > 0 {
		builder = builder.Limit(sel.Descriptor.Limit)
	}

	q, err := toSQLQuery(builder.PlaceholderFormat(d.Placeholder))
	if err != nil {
		return RootQuery{}, err
	}
	return RootQuery{SQLQuery: q, Entity: sel.BatchRoot, Columns: sel.BatchRoot.Columns}, nil
}

const rootAlias = "t0"

// joinTree assigns one table alias per distinct association path.
type joinTree struct {
	graph   *entitygraph.Graph
	quote   sqlutil.QuoteFunc
	aliases map[string]string
	clauses []string
}

func newJoinTree(graph *entitygraph.Graph, quote sqlutil.QuoteFunc) *joinTree {
	return &joinTree{
		graph:   graph,
		quote:   quote,
		aliases: map[string]string{"": rootAlias},
	}
}

func (j *joinTree) add(chain []*entitygraph.Association) error {
	for i, assoc := range chain {
		key := pathKey(chain[:i+1])
		if _, ok := j.aliases[key]; ok {
			continue
		}
		if assoc.Cardinality != entitygraph.ToOne {
			return fmt.Errorf("cannot join collection-valued association %s", assoc)
		}
		target, ok := j.graph.Entity(assoc.Target)
		if !ok {
			return fmt.Errorf("%s: %w %q", assoc, entitygraph.ErrUnknownEntity, assoc.Target)
		}
		parent := j.aliases[pathKey(chain[:i])]
		alias := fmt.Sprintf("t%d", len(j.aliases))
		j.aliases[key] = alias

		conds := make([]string, len(assoc.JoinColumns))
		for k := range assoc.JoinColumns {
			conds[k] = fmt.Sprintf("%s = %s",
				sqlutil.Qualify(j.quote, parent, assoc.JoinColumns[k]),
				sqlutil.Qualify(j.quote, alias, assoc.ReferencedColumns[k]))
		}
		j.clauses = append(j.clauses, fmt.Sprintf("%s %s ON %s",
			j.quote(target.Table), j.quote(alias), strings.Join(conds, " AND ")))
	}
	return nil
}

func (j *joinTree) aliasOf(chain []*entitygraph.Association) string {
	return j.aliases[pathKey(chain)]
}

func pathKey(chain []*entitygraph.Association) string {
	parts := make([]string, len(chain))
	for i, a := range chain {
		parts[i] = a.Name
	}
	return strings.Join(parts, ".")
}

func orderTerm(column string, desc bool) string {
	if desc {
		return column + " DESC"
	}
	return column + " ASC"
}

func toSQLQuery(builder sq.SelectBuilder) (SQLQuery, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}
