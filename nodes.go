package issueflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/aretw0/issueflow/internal/runtime"
	"github.com/aretw0/issueflow/pkg/domain"
	"github.com/aretw0/issueflow/pkg/ports"
	"github.com/mitchellh/mapstructure"
)

const (
	readReason       = "Read by Research Agent"
	noFilesAnalysis  = "No files were read during research. Cannot plan fix."
	defaultPRBody    = "AI Fix"
	permissionDenied = "Permission Denied: Check GitHub Token scopes."
)

// researchDecision asks the model for the next research turn.
func (w *Workflow) researchDecision(ctx context.Context, state *domain.WorkflowState) (domain.Update, error) {
	if state.Issue == nil {
		return domain.Update{}, domain.Precondition("No issue in context")
	}

	if state.ResearchLoopCount > w.maxLoops {
		return domain.Update{
			Logs: domain.Set(domain.AppendLogs(state.Logs, "[System] Research loop limit reached. Forcing plan.")),
		}, nil
	}

	history := state.ResearchHistory
	if len(history) == 0 {
		history = []domain.Turn{{Role: domain.RoleUser, Text: ResearchPrompt(*state.Issue)}}
	}

	turn, err := w.model.ResearchStep(ctx, history)
	if err != nil {
		return domain.Update{}, err
	}
	turn.Role = domain.RoleModel

	return domain.Update{
		ResearchHistory: domain.Set(domain.AppendTurns(history, turn)),
		Logs:            domain.Set(domain.AppendLogs(state.Logs, summarizeTurn(turn))),
	}, nil
}

// formatArgs renders call arguments as JSON, falling back to Go syntax for
// values JSON cannot encode.
func formatArgs(args map[string]any) string {
	if args == nil {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprint(args)
	}
	return string(b)
}

func summarizeTurn(turn domain.Turn) string {
	if turn.Text == "" {
		return "[Agent] (Thinking/Calling Tool...)"
	}
	return "[Agent] " + turn.Text
}

// researchTool executes every action call of the latest turn, one tool turn per call.
func (w *Workflow) researchTool(ctx context.Context, state *domain.WorkflowState) (domain.Update, error) {
	last, _ := domain.LastTurn(state.ResearchHistory)
	upd := domain.Update{ResearchLoopCount: domain.Set(state.ResearchLoopCount + 1)}
	if len(last.Calls) == 0 {
		upd.Logs = domain.Set(domain.AppendLogs(state.Logs, "[System] No tool call found."))
		return upd, nil
	}

	logs := slices.Clone(state.Logs)
	files := slices.Clone(state.RelevantFiles)
	turns := make([]domain.Turn, 0, len(last.Calls))

	for _, call := range last.Calls {
		logs = append(logs, fmt.Sprintf("[Tool] Executing %s(%s)", call.Name, formatArgs(call.Args)))

		output, read, err := w.executeAction(ctx, call)
		if err != nil {
			if runtime.Classify(err) == domain.KindRateLimited || ctx.Err() != nil {
				return domain.Update{}, err
			}
			output = "Error: " + err.Error()
		}
		if read != nil && !slices.ContainsFunc(files, func(f domain.RelevantFile) bool { return f.Path == read.Path }) {
			files = append(files, *read)
		}

		turns = append(turns, domain.Turn{
			Role:    domain.RoleTool,
			Results: []domain.ActionResult{{CallID: call.ID, Name: call.Name, Output: output}},
		})
	}

	upd.Logs = domain.Set(logs)
	upd.RelevantFiles = domain.Set(files)
	upd.ResearchHistory = domain.Set(domain.AppendTurns(state.ResearchHistory, turns...))
	return upd, nil
}

type pathArgs struct {
	Path string `mapstructure:"path"`
}

type searchArgs struct {
	Query string `mapstructure:"query"`
}

func decodeArgs(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

// executeAction runs one research action. A successful read also returns the file to record.
func (w *Workflow) executeAction(ctx context.Context, call domain.ActionCall) (string, *domain.RelevantFile, error) {
	switch call.Name {
	case domain.ActionListFiles:
		var args pathArgs
		if err := decodeArgs(call.Args, &args); err != nil {
			return "", nil, err
		}
		path := args.Path
		if path == "." {
			path = ""
		}
		entries, err := w.repo.ListDirectory(ctx, path)
		if err != nil {
			return "", nil, err
		}
		lines := make([]string, len(entries))
		for i, e := range entries {
			lines[i] = fmt.Sprintf("%s (%s)", e.Path, e.Kind)
		}
		out, err := json.Marshal(lines)
		return string(out), nil, err

	case domain.ActionReadFile:
		var args pathArgs
		if err := decodeArgs(call.Args, &args); err != nil {
			return "", nil, err
		}
		content, err := w.repo.ReadFile(ctx, args.Path)
		if errors.Is(err, domain.ErrFileNotFound) || (err == nil && content == "") {
			return "File empty or not found.", nil, nil
		}
		if err != nil {
			return "", nil, err
		}
		file := &domain.RelevantFile{Path: args.Path, Reason: readReason, Content: content}
		return fmt.Sprintf("File Content (%d chars):\n%s", len(content), content), file, nil

	case domain.ActionSearchCode:
		var args searchArgs
		if err := decodeArgs(call.Args, &args); err != nil {
			return "", nil, err
		}
		paths, err := w.repo.SearchCode(ctx, args.Query)
		if err != nil {
			return "", nil, err
		}
		if paths == nil {
			paths = []string{}
		}
		out, err := json.Marshal(paths)
		return string(out), nil, err

	case domain.ActionFinishResearch:
		return "Research Completed.", nil, nil
	}
	return "", nil, fmt.Errorf("unknown action %q", call.Name)
}

// planning drafts the fix plan from the files read during research.
func (w *Workflow) planning(ctx context.Context, state *domain.WorkflowState) (domain.Update, error) {
	if state.Issue == nil {
		return domain.Update{}, domain.Precondition("No issue")
	}

	var files []ports.FileContent
	for _, f := range state.RelevantFiles {
		if f.Content != "" {
			files = append(files, ports.FileContent{Path: f.Path, Content: f.Content})
		}
	}

	if len(files) == 0 {
		return domain.Update{
			Plan: domain.Set(&domain.Plan{Analysis: noFilesAnalysis, Steps: []string{}}),
			Logs: domain.Set(domain.AppendLogs(state.Logs, "[Agent] No relevant files found to fix.")),
		}, nil
	}

	plan, err := w.model.Plan(ctx, state.Issue.Title, state.Issue.Body, files)
	if err != nil {
		return domain.Update{}, err
	}
	if plan.Steps == nil {
		plan.Steps = []string{}
	}

	return domain.Update{
		Plan: domain.Set(&plan),
		Logs: domain.Set(domain.AppendLogs(state.Logs, "[Agent] Plan generated: "+plan.Analysis)),
	}, nil
}

// generateFix proposes one patch per file read during research.
func (w *Workflow) generateFix(ctx context.Context, state *domain.WorkflowState) (domain.Update, error) {
	if state.Issue == nil || state.Plan == nil {
		return domain.Update{}, domain.Precondition("Missing inputs for generation")
	}

	patches := []domain.Patch{}
	for _, f := range state.RelevantFiles {
		if f.Content == "" {
			continue
		}
		fix, err := w.model.GenerateFix(ctx, state.Issue.Body, state.Plan.Analysis, f.Path, f.Content)
		if err != nil {
			return domain.Update{}, err
		}
		patches = append(patches, domain.Patch{
			File:            f.Path,
			OriginalContent: f.Content,
			NewContent:      fix.NewContent,
			Explanation:     fix.Explanation,
		})
	}

	msg := fmt.Sprintf("[Agent] Generated %d patches. Waiting for review.", len(patches))
	if w.headless {
		msg = fmt.Sprintf("[Agent] Generated %d patches.", len(patches))
	}
	return domain.Update{
		Patches: domain.Set(patches),
		Logs:    domain.Set(domain.AppendLogs(state.Logs, msg)),
	}, nil
}

func (w *Workflow) awaitingHuman(_ context.Context, state *domain.WorkflowState) (domain.Update, error) {
	return domain.Update{
		Logs: domain.Set(domain.AppendLogs(state.Logs, "[System] Paused for Review.")),
	}, nil
}

// publishError reports a rejected publish with a hint about token scopes.
type publishError struct {
	err error
}

func (e *publishError) Error() string { return permissionDenied }
func (e *publishError) Unwrap() error { return e.err }

// createPR publishes the patches as a change request.
func (w *Workflow) createPR(ctx context.Context, state *domain.WorkflowState) (domain.Update, error) {
	if state.Issue == nil || len(state.Patches) == 0 {
		return domain.Update{}, domain.Precondition("Cannot create PR without patches")
	}

	files := make([]ports.FileChange, len(state.Patches))
	for i, p := range state.Patches {
		files[i] = ports.FileChange{Path: p.File, Content: p.NewContent}
	}
	body := defaultPRBody
	if state.Plan != nil && state.Plan.Analysis != "" {
		body = state.Plan.Analysis
	}

	url, err := w.repo.PublishChange(ctx, ports.ChangeRequest{
		IssueNumber: state.Issue.Number,
		Title:       state.Issue.Title,
		Body:        body,
		Files:       files,
	})
	if err != nil {
		if errors.Is(err, domain.ErrPermissionDenied) {
			return domain.Update{}, &publishError{err: err}
		}
		return domain.Update{}, err
	}

	return domain.Update{
		PublishedURL: domain.Set(url),
		Logs:         domain.Set(domain.AppendLogs(state.Logs, "[GitHub] PR Created: "+url)),
	}, nil
}
