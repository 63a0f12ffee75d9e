package dsl

import (
	"errors"
	"fmt"

	"github.com/aretw0/issueflow/pkg/domain"
)

// Builder manages the graph construction.
type Builder struct {
	order      []domain.Step
	nodes      map[domain.Step]*NodeBuilder
	entry      domain.Step
	interrupts []domain.Step
}

// New creates a new graph builder.
func New() *Builder {
	return &Builder{
		nodes: make(map[domain.Step]*NodeBuilder),
	}
}

// Add creates a new node in the graph.
// If the node already exists, it returns the existing builder.
func (b *Builder) Add(step domain.Step) *NodeBuilder {
	if nb, ok := b.nodes[step]; ok {
		return nb
	}
	nb := &NodeBuilder{step: step, builder: b}
	b.nodes[step] = nb
	b.order = append(b.order, step)
	return nb
}

// Entry sets the step a fresh run starts at.
func (b *Builder) Entry(step domain.Step) *Builder {
	b.entry = step
	return b
}

// InterruptBefore marks steps the engine suspends in front of.
func (b *Builder) InterruptBefore(steps ...domain.Step) *Builder {
	b.interrupts = append(b.interrupts, steps...)
	return b
}

// Build compiles the graph. Every step referenced by the entry point, an edge
// or the interrupt set must have a node body.
func (b *Builder) Build() (*Graph, error) {
	g := &Graph{
		entry:      b.entry,
		order:      append([]domain.Step(nil), b.order...),
		nodes:      make(map[domain.Step]NodeFunc, len(b.nodes)),
		edges:      make(map[domain.Step]Edge, len(b.nodes)),
		interrupts: make(map[domain.Step]bool, len(b.interrupts)),
	}

	var errs []error
	if b.entry == "" {
		errs = append(errs, errors.New("entry point is not set"))
	} else if _, ok := b.nodes[b.entry]; !ok {
		errs = append(errs, fmt.Errorf("entry point %s has no node", b.entry))
	}

	for _, step := range b.order {
		nb := b.nodes[step]
		if nb.do == nil {
			errs = append(errs, fmt.Errorf("node %s has no body", step))
			continue
		}
		g.nodes[step] = nb.do
		if nb.edge == nil {
			continue
		}
		for _, target := range nb.edge.Targets() {
			if target == End {
				continue
			}
			if _, ok := b.nodes[target]; !ok {
				errs = append(errs, fmt.Errorf("edge %s -> %s targets an unknown node", step, target))
			}
		}
		g.edges[step] = *nb.edge
	}

	for _, step := range b.interrupts {
		if _, ok := b.nodes[step]; !ok {
			errs = append(errs, fmt.Errorf("interrupt %s has no node", step))
		}
		g.interrupts[step] = true
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}
	return g, nil
}
