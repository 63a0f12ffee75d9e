package issueflow_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/issueflow/pkg/domain"
	"github.com/aretw0/issueflow/pkg/ports"
	"github.com/stretchr/testify/mock"
)

var testKey = domain.WorkflowKey{Owner: "acme", Repo: "api", Issue: 7}

var testIssue = domain.Issue{
	Number: 7,
	Title:  "Crash on empty config",
	Body:   "The server panics when config.yaml is empty.",
}

// fakeRepo serves a fixed file tree. Publishing goes through the mock.
type fakeRepo struct {
	mock.Mock
	dirs    map[string][]ports.DirEntry
	files   map[string]string
	search  map[string][]string
	readErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		dirs: map[string][]ports.DirEntry{
			"": {{Path: "main.go", Kind: "file"}, {Path: "config", Kind: "dir"}},
		},
		files: map[string]string{
			"main.go":          "package main\n",
			"config/config.go": "package config\n",
		},
		search: map[string][]string{
			"panic": {"config/config.go"},
		},
	}
}

func (r *fakeRepo) ListDirectory(_ context.Context, path string) ([]ports.DirEntry, error) {
	entries, ok := r.dirs[path]
	if !ok {
		return nil, fmt.Errorf("path %q not found", path)
	}
	return entries, nil
}

func (r *fakeRepo) ReadFile(_ context.Context, path string) (string, error) {
	if r.readErr != nil {
		return "", r.readErr
	}
	content, ok := r.files[path]
	if !ok {
		return "", domain.ErrFileNotFound
	}
	return content, nil
}

func (r *fakeRepo) SearchCode(_ context.Context, query string) ([]string, error) {
	return r.search[query], nil
}

func (r *fakeRepo) PublishChange(_ context.Context, req ports.ChangeRequest) (string, error) {
	args := r.Called(req)
	return args.String(0), args.Error(1)
}

func (r *fakeRepo) publishedRequest(i int) ports.ChangeRequest {
	return r.Calls[i].Arguments.Get(0).(ports.ChangeRequest)
}

type reply struct {
	turn domain.Turn
	err  error
}

// scriptedModel replays research replies in order and finishes research once they run out.
type scriptedModel struct {
	mu       sync.Mutex
	replies  []reply
	repeat   *domain.Turn
	planErrs []error
	plan     domain.Plan
	fixErr   error

	researchCalls int
	planCalls     int
	fixedPaths    []string
}

func newScriptedModel(replies ...reply) *scriptedModel {
	return &scriptedModel{
		replies: replies,
		plan:    domain.Plan{Analysis: "config is dereferenced before the empty check", Steps: []string{"guard nil config"}},
	}
}

func (m *scriptedModel) ResearchStep(_ context.Context, history []domain.Turn) (domain.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.researchCalls++
	if len(history) == 0 {
		return domain.Turn{}, fmt.Errorf("empty history")
	}
	if m.repeat != nil {
		return *m.repeat, nil
	}
	if len(m.replies) == 0 {
		return calls(call(domain.ActionFinishResearch, nil)), nil
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	return r.turn, r.err
}

func (m *scriptedModel) Plan(_ context.Context, _, _ string, _ []ports.FileContent) (domain.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.planCalls++
	if len(m.planErrs) > 0 {
		err := m.planErrs[0]
		m.planErrs = m.planErrs[1:]
		return domain.Plan{}, err
	}
	return m.plan, nil
}

func (m *scriptedModel) GenerateFix(_ context.Context, _, _, path, content string) (domain.Fix, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fixErr != nil {
		return domain.Fix{}, m.fixErr
	}
	m.fixedPaths = append(m.fixedPaths, path)
	return domain.Fix{NewContent: content + "// fixed\n", Explanation: "guard " + path}, nil
}

func call(name string, args map[string]any) domain.ActionCall {
	return domain.ActionCall{ID: name, Name: name, Args: args}
}

func calls(cs ...domain.ActionCall) domain.Turn {
	return domain.Turn{Calls: cs}
}

func ok(t domain.Turn) reply { return reply{turn: t} }

func quota() reply { return reply{err: fmt.Errorf("Error 429: RESOURCE_EXHAUSTED")} }
