package dsl

import (
	"context"

	"github.com/aretw0/issueflow/pkg/domain"
)

// NodeFunc is the body of a node. It receives the current snapshot, which it
// must not modify, and returns the fields it changed.
type NodeFunc func(ctx context.Context, state *domain.WorkflowState) (domain.Update, error)

// DecideFunc chooses the successor of a node from the post-update state.
type DecideFunc func(state *domain.WorkflowState) domain.Step

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	step    domain.Step
	do      NodeFunc
	edge    *Edge
	builder *Builder
}

// Do sets the node body.
func (n *NodeBuilder) Do(fn NodeFunc) *NodeBuilder {
	n.do = fn
	return n
}

// Go adds an unconditional transition to the target node.
func (n *NodeBuilder) Go(target domain.Step) *NodeBuilder {
	n.edge = &Edge{To: target}
	return n
}

// Branch adds a conditional transition. targets lists every step decide may
// return; they are checked by Build and drawn by graph renderers.
func (n *NodeBuilder) Branch(decide DecideFunc, targets ...domain.Step) *NodeBuilder {
	n.edge = &Edge{Decide: decide, Options: targets}
	return n
}

// Terminal marks the node as the last of the flow.
func (n *NodeBuilder) Terminal() *NodeBuilder {
	return n.Go(End)
}

// Add is a shortcut back to the graph builder.
func (n *NodeBuilder) Add(step domain.Step) *NodeBuilder {
	return n.builder.Add(step)
}
