/*
Package dsl provides a fluent builder for workflow graphs.

Nodes are keyed by domain.Step and carry a Go function as body; edges are
either a fixed successor or a decision function over the state.

Example usage:

	b := dsl.New().Entry(domain.StepPlanning)

	b.Add(domain.StepPlanning).
		Do(plan).
		Go(domain.StepGeneratingFix)

	b.Add(domain.StepGeneratingFix).
		Do(generate).
		Terminal()

	graph, err := b.Build()
*/
package dsl
