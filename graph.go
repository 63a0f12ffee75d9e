package issueflow

import (
	"fmt"

	"github.com/aretw0/issueflow/pkg/domain"
	"github.com/aretw0/issueflow/pkg/dsl"
)

// buildGraph wires every step through nodeFor and edgeFor.
func (w *Workflow) buildGraph() (*dsl.Graph, error) {
	b := dsl.New().Entry(domain.StepResearchDecision)
	for _, step := range domain.Steps() {
		fn, err := w.nodeFor(step)
		if err != nil {
			return nil, err
		}
		nb := b.Add(step).Do(fn)
		if err := w.edgeFor(step, nb); err != nil {
			return nil, err
		}
	}
	if !w.headless {
		b.InterruptBefore(domain.StepAwaitingHuman)
	}
	return b.Build()
}

func (w *Workflow) nodeFor(step domain.Step) (dsl.NodeFunc, error) {
	switch step {
	case domain.StepResearchDecision:
		return w.researchDecision, nil
	case domain.StepResearchTool:
		return w.researchTool, nil
	case domain.StepPlanning:
		return w.planning, nil
	case domain.StepGeneratingFix:
		return w.generateFix, nil
	case domain.StepAwaitingHuman:
		return w.awaitingHuman, nil
	case domain.StepCreatingPR:
		return w.createPR, nil
	}
	return nil, fmt.Errorf("no node body for step %s", step)
}

func (w *Workflow) edgeFor(step domain.Step, nb *dsl.NodeBuilder) error {
	switch step {
	case domain.StepResearchDecision:
		nb.Branch(w.researchBranch, domain.StepResearchTool, domain.StepPlanning, domain.StepResearchDecision)
	case domain.StepResearchTool:
		nb.Go(domain.StepResearchDecision)
	case domain.StepPlanning:
		nb.Go(domain.StepGeneratingFix)
	case domain.StepGeneratingFix:
		nb.Go(domain.StepAwaitingHuman)
	case domain.StepAwaitingHuman:
		nb.Go(domain.StepCreatingPR)
	case domain.StepCreatingPR:
		nb.Terminal()
	default:
		return fmt.Errorf("no edge for step %s", step)
	}
	return nil
}

// researchBranch picks the successor of RESEARCH_DECISION from the latest turn.
// A finish call or an exhausted loop or turn budget moves on to planning;
// any other call runs the tools.
func (w *Workflow) researchBranch(state *domain.WorkflowState) domain.Step {
	last, _ := domain.LastTurn(state.ResearchHistory)
	if last.HasCall(domain.ActionFinishResearch) || state.ResearchLoopCount > w.maxLoops {
		return domain.StepPlanning
	}
	if w.maxTurns > 0 && domain.CountTurns(state.ResearchHistory, domain.RoleModel) >= w.maxTurns {
		return domain.StepPlanning
	}
	if len(last.Calls) > 0 {
		return domain.StepResearchTool
	}
	return domain.StepResearchDecision
}

// BuildGraph compiles the workflow graph for inspection and rendering.
// Its nodes are bound to no collaborators and must not be run.
func BuildGraph(headless bool) (*dsl.Graph, error) {
	w := &Workflow{headless: headless, maxLoops: DefaultMaxResearchLoops, maxTurns: DefaultMaxResearchTurns}
	return w.buildGraph()
}
