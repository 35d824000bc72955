// Package planner turns a resolved selection into SQL: the root query that
// returns the batch-root rows, and the ordered set of batch fetch steps that
// load their associations with a bounded number of IN/EXISTS/JOIN queries.
package planner

import (
	"fmt"
	"strings"

	"batchfetch/internal/entitygraph"
)

// RootOwner is the Owner of a step whose owners are the root query's objects.
const RootOwner = -1

// PlanOptions tunes plan construction.
type PlanOptions struct {
	// MaxDepth bounds the length of a batch chain. Zero means unlimited.
	MaxDepth int
}

// FetchStep loads one association for every owner produced by an earlier step.
type FetchStep struct {
	EdgeFetch
	Index int
	// Owner is the index of the step whose targets own this edge, or RootOwner.
	Owner int
	// Depth is 1 for edges leaving the batch root.
	Depth int
}

func (s FetchStep) String() string {
	return fmt.Sprintf("#%d %s [%s] depth=%d owner=%d", s.Index, s.Edge, s.Strategy, s.Depth, s.Owner)
}

// CyclicBatchChainError records a batch edge that would revisit an entity
// already on its own chain. The edge is left out of the plan and falls back
// to per-owner loading; the error is never returned from a query.
type CyclicBatchChainError struct {
	Edge *entitygraph.Association
	// Chain lists the entity names from the batch root to the edge source.
	Chain []string
}

func (e *CyclicBatchChainError) Error() string {
	return fmt.Sprintf("cyclic batch chain: %s returns to %s via %s",
		strings.Join(e.Chain, " -> "), e.Edge.Target, e.Edge)
}

// Plan is the ordered batch fetch plan for one batch root.
type Plan struct {
	Root  *entitygraph.Entity
	Steps []FetchStep
	// Excluded holds batch edges skipped to break a cycle.
	Excluded []*CyclicBatchChainError
	// Truncated holds batch edges skipped because of PlanOptions.MaxDepth.
	Truncated []*entitygraph.Association
}

// Children returns the steps whose owners are the targets of step (or of the
// root objects for RootOwner).
func (p *Plan) Children(step int) []FetchStep {
	var out []FetchStep
	for _, s := range p.Steps {
		if s.Owner == step {
			out = append(out, s)
		}
	}
	return out
}

// Ancestors returns the chain of steps leading to step, outermost first,
// ending with step itself.
func (p *Plan) Ancestors(step int) []FetchStep {
	var chain []FetchStep
	for i := step; i != RootOwner; i = p.Steps[i].Owner {
		chain = append(chain, p.Steps[i])
	}
	for l, r := 0, len(chain)-1; l < r; l, r = l+1, r-1 {
		chain[l], chain[r] = chain[r], chain[l]
	}
	return chain
}

func (p *Plan) String() string {
	if p == nil || p.Root == nil {
		return "<empty plan>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "batch root %s, %d step(s)", p.Root.Name, len(p.Steps))
	for _, s := range p.Steps {
		b.WriteString("; ")
		b.WriteString(s.String())
	}
	for _, ex := range p.Excluded {
		fmt.Fprintf(&b, "; excluded %s", ex.Edge)
	}
	return b.String()
}

type planNode struct {
	entity  *entitygraph.Entity
	step    int
	depth   int
	chain   []string
	onChain map[string]struct{}
}

// BuildPlan walks the batch-flagged associations reachable from root
// breadth-first. Each queued node carries the entity types on its own chain;
// an edge whose target is already on that chain is recorded in Excluded and
// skipped, so every emitted step's owner is an earlier step and depths never
// decrease. Non-batch edges are never crossed.
func BuildPlan(graph *entitygraph.Graph, root *entitygraph.Entity, opts PlanOptions) *Plan {
	plan := &Plan{Root: root}
	if root == nil {
		return plan
	}

	queue := []planNode{{
		entity:  root,
		step:    RootOwner,
		chain:   []string{root.Name},
		onChain: map[string]struct{}{root.Name: {}},
	}}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		for _, edge := range node.entity.Associations() {
			if !edge.Batch {
				continue
			}
			if _, cyclic := node.onChain[edge.Target]; cyclic {
				plan.Excluded = append(plan.Excluded, &CyclicBatchChainError{
					Edge:  edge,
					Chain: append([]string(nil), node.chain...),
				})
				continue
			}
			if opts.MaxDepth > 0 && node.depth >= opts.MaxDepth {
				plan.Truncated = append(plan.Truncated, edge)
				continue
			}
			target, ok := graph.Entity(edge.Target)
			if !ok {
				continue
			}

			step := FetchStep{
				EdgeFetch: EdgeFetch{
					Edge:     edge,
					Source:   node.entity,
					Target:   target,
					Strategy: edge.Strategy,
				},
				Index: len(plan.Steps),
				Owner: node.step,
				Depth: node.depth + 1,
			}
			plan.Steps = append(plan.Steps, step)

			onChain := make(map[string]struct{}, len(node.onChain)+1)
			for name := range node.onChain {
				onChain[name] = struct{}{}
			}
			onChain[target.Name] = struct{}{}
			queue = append(queue, planNode{
				entity:  target,
				step:    step.Index,
				depth:   step.Depth,
				chain:   append(append([]string(nil), node.chain...), target.Name),
				onChain: onChain,
			})
		}
	}
	return plan
}
