package issueflow_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/issueflow"
	"github.com/aretw0/issueflow/pkg/domain"
)

// ExampleWorkflow_SubmitDecision runs a workflow up to the review gate and rejects the patches.
func ExampleWorkflow_SubmitDecision() {
	model := newScriptedModel(ok(calls(call(domain.ActionReadFile, map[string]any{"path": "main.go"}))))
	wf, err := issueflow.New(testKey, newFakeRepo(), model)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	state, err := wf.Start(ctx, testIssue)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(state.Status, len(state.Patches))

	state, err = wf.SubmitDecision(ctx, false, "keep the old behaviour")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(state.Status, state.Error)

	// Output:
	// AWAITING_HUMAN 1
	// FAILED Feedback: keep the old behaviour
}
