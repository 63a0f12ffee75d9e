/*
Package issueflow automates the resolution of a tracked issue: it researches a code repository, drafts a fix plan,
generates file-level patches with a generative model, pauses for human review, and publishes the result as a pull request.

# Concept

A Workflow is bound to one issue of one repository. It runs a fixed graph of steps on the internal engine:

	RESEARCH_DECISION -> { RESEARCH_TOOL | PLANNING | RESEARCH_DECISION }
	RESEARCH_TOOL     -> RESEARCH_DECISION
	PLANNING          -> GENERATING_FIX
	GENERATING_FIX    -> AWAITING_HUMAN (interrupt, unless headless)
	AWAITING_HUMAN    -> CREATING_PR
	CREATING_PR       -> END

Every intermediate state is broadcast to subscribers. Failures never cross the lifecycle API as errors:
callers inspect Status and Error on the returned state. A step rejected for exhausted quota leaves the
workflow in PAUSED_QUOTA, and Resume retries it.

# Usage

	wf, err := issueflow.New(key, repo, model, issueflow.WithLogger(logger))
	if err != nil {
		log.Fatal(err)
	}

	unsubscribe := wf.Subscribe(func(s *domain.WorkflowState) {
		_ = store.Save(ctx, s)
	})
	defer unsubscribe()

	state, err := wf.Start(ctx, issue)
	if err != nil {
		log.Fatal(err) // context cancelled
	}

	if state.Status == domain.StepAwaitingHuman.Status() {
		state, _ = wf.SubmitDecision(ctx, true, "")
	}

The collaborators are the interfaces of package ports; package service hosts many workflows with persistence and locking.
*/
package issueflow
