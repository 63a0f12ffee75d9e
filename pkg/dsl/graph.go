package dsl

import "github.com/aretw0/issueflow/pkg/domain"

// End is the terminal marker a run completes at.
const End domain.Step = "END"

// Edge is either a fixed successor or a decision function.
type Edge struct {
	To      domain.Step
	Decide  DecideFunc
	Options []domain.Step
}

// Conditional reports whether the edge is a decision function.
func (e Edge) Conditional() bool {
	return e.Decide != nil
}

// Next returns the successor for state.
func (e Edge) Next(state *domain.WorkflowState) domain.Step {
	if e.Decide != nil {
		return e.Decide(state)
	}
	return e.To
}

// Targets returns every step the edge may lead to.
func (e Edge) Targets() []domain.Step {
	if e.Decide != nil {
		return e.Options
	}
	return []domain.Step{e.To}
}

// Graph is a compiled workflow graph. It is immutable and safe for concurrent use.
type Graph struct {
	entry      domain.Step
	order      []domain.Step
	nodes      map[domain.Step]NodeFunc
	edges      map[domain.Step]Edge
	interrupts map[domain.Step]bool
}

// Entry returns the step fresh runs start at.
func (g *Graph) Entry() domain.Step {
	return g.entry
}

// Steps returns the node steps in declaration order.
func (g *Graph) Steps() []domain.Step {
	return append([]domain.Step(nil), g.order...)
}

// Node returns the body registered for step.
func (g *Graph) Node(step domain.Step) (NodeFunc, bool) {
	fn, ok := g.nodes[step]
	return fn, ok
}

// Edge returns the outgoing edge of step. A node without an edge leads to End.
func (g *Graph) Edge(step domain.Step) (Edge, bool) {
	e, ok := g.edges[step]
	return e, ok
}

// Next returns the successor of step for state.
func (g *Graph) Next(step domain.Step, state *domain.WorkflowState) domain.Step {
	e, ok := g.edges[step]
	if !ok {
		return End
	}
	return e.Next(state)
}

// Interrupts reports whether the engine suspends before step.
func (g *Graph) Interrupts(step domain.Step) bool {
	return g.interrupts[step]
}
