// Package query describes a root query: which entity it ranges over, which node of
// the association chain it projects, and the filters already applied to it.
// Descriptors come from Parse (a small JPQL subset) or from the builder functions.
package query

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Operator is a predicate comparison.
type Operator string

const (
	OpEq        Operator = "="
	OpNotEq     Operator = "<>"
	OpLt        Operator = "<"
	OpLtEq      Operator = "<="
	OpGt        Operator = ">"
	OpGtEq      Operator = ">="
	OpIn        Operator = "IN"
	OpIsNull    Operator = "IS NULL"
	OpIsNotNull Operator = "IS NOT NULL"
)

// Predicate filters on one column of the root entity or of an entity reached
// from it through to-one associations (Path).
type Predicate struct {
	Path   []string
	Column string
	Op     Operator
	Values []any
}

// Eq builds column = value.
func Eq(column string, value any) Predicate {
	return Predicate{Column: column, Op: OpEq, Values: []any{value}}
}

// NotEq builds column <> value.
func NotEq(column string, value any) Predicate {
	return Predicate{Column: column, Op: OpNotEq, Values: []any{value}}
}

// Lt builds column < value.
func Lt(column string, value any) Predicate {
	return Predicate{Column: column, Op: OpLt, Values: []any{value}}
}

// LtEq builds column <= value.
func LtEq(column string, value any) Predicate {
	return Predicate{Column: column, Op: OpLtEq, Values: []any{value}}
}

// Gt builds column > value.
func Gt(column string, value any) Predicate {
	return Predicate{Column: column, Op: OpGt, Values: []any{value}}
}

// GtEq builds column >= value.
func GtEq(column string, value any) Predicate {
	return Predicate{Column: column, Op: OpGtEq, Values: []any{value}}
}

// In builds column IN (values...).
func In(column string, values ...any) Predicate {
	return Predicate{Column: column, Op: OpIn, Values: values}
}

// IsNull builds column IS NULL.
func IsNull(column string) Predicate {
	return Predicate{Column: column, Op: OpIsNull}
}

// IsNotNull builds column IS NOT NULL.
func IsNotNull(column string) Predicate {
	return Predicate{Column: column, Op: OpIsNotNull}
}

// On moves the predicate onto the entity reached through path.
func (p Predicate) On(path ...string) Predicate {
	p.Path = append([]string(nil), path...)
	return p
}

// Sqlizer renders the predicate against an already-quoted column expression.
func (p Predicate) Sqlizer(column string) (sq.Sqlizer, error) {
	switch p.Op {
	case OpIsNull:
		return sq.Eq{column: nil}, nil
	case OpIsNotNull:
		return sq.NotEq{column: nil}, nil
	case OpIn:
		if len(p.Values) == 0 {
			return sq.Expr("1 = 0"), nil
		}
		return sq.Eq{column: p.Values}, nil
	}
	if len(p.Values) != 1 {
		return nil, fmt.Errorf("operator %s takes exactly one value, got %d", p.Op, len(p.Values))
	}
	if p.Values[0] == nil {
		return nil, fmt.Errorf("operator %s cannot compare with NULL; use IS NULL", p.Op)
	}
	v := p.Values[0]
	switch p.Op {
	case OpEq:
		return sq.Eq{column: v}, nil
	case OpNotEq:
		return sq.NotEq{column: v}, nil
	case OpLt:
		return sq.Lt{column: v}, nil
	case OpLtEq:
		return sq.LtOrEq{column: v}, nil
	case OpGt:
		return sq.Gt{column: v}, nil
	case OpGtEq:
		return sq.GtOrEq{column: v}, nil
	default:
		return nil, fmt.Errorf("unsupported operator %q", p.Op)
	}
}

func (p Predicate) String() string {
	target := strings.Join(append(append([]string(nil), p.Path...), p.Column), ".")
	switch p.Op {
	case OpIsNull, OpIsNotNull:
		return fmt.Sprintf("%s %s", target, p.Op)
	case OpIn:
		return fmt.Sprintf("%s IN %v", target, p.Values)
	default:
		return fmt.Sprintf("%s %s %v", target, p.Op, p.Values)
	}
}

// Order is one ORDER BY term.
type Order struct {
	Path   []string
	Column string
	Desc   bool
}

// Descriptor is a parsed or built root query.
type Descriptor struct {
	Root       string
	Alias      string
	Path       []string
	Predicates []Predicate
	OrderBy    []Order
	Limit      uint64
}

// Select starts a descriptor over root projecting the entity reached through path.
func Select(root string, path ...string) *Descriptor {
	return &Descriptor{
		Root:  root,
		Alias: defaultAlias(root),
		Path:  append([]string(nil), path...),
	}
}

// Where appends predicates; they are combined with AND.
func (d *Descriptor) Where(preds ...Predicate) *Descriptor {
	d.Predicates = append(d.Predicates, preds...)
	return d
}

// OrderByColumn appends an ORDER BY term on a root column.
func (d *Descriptor) OrderByColumn(column string, desc bool) *Descriptor {
	d.OrderBy = append(d.OrderBy, Order{Column: column, Desc: desc})
	return d
}

// WithLimit caps the number of root rows.
func (d *Descriptor) WithLimit(n uint64) *Descriptor {
	d.Limit = n
	return d
}

// Projects reports whether the query selects a nested attribute instead of the root.
func (d *Descriptor) Projects() bool {
	return len(d.Path) > 0
}

// String renders the descriptor in JPQL form for logs.
func (d *Descriptor) String() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(append([]string{d.Alias}, d.Path...), "."))
	fmt.Fprintf(&b, " FROM %s %s", d.Root, d.Alias)
	for i, p := range d.Predicates {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		b.WriteString(d.Alias + "." + p.String())
	}
	for i, o := range d.OrderBy {
		if i == 0 {
			b.WriteString(" ORDER BY ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(strings.Join(append(append([]string{d.Alias}, o.Path...), o.Column), "."))
		if o.Desc {
			b.WriteString(" DESC")
		}
	}
	return b.String()
}

func defaultAlias(root string) string {
	if root == "" {
		return "e"
	}
	return strings.ToLower(root[:1])
}
