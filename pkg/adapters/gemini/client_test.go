package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/issueflow/pkg/domain"
	"github.com/aretw0/issueflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	args := m.Called(model, contents, config)
	resp, _ := args.Get(0).(*genai.GenerateContentResponse)
	return resp, args.Error(1)
}

func reply(parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Role: string(genai.RoleModel), Parts: parts},
	}}}
}

func TestClient_ResearchStep(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("GenerateContent", DefaultModel, mock.Anything, mock.Anything).Return(reply(
		&genai.Part{Text: "Looking at main.go"},
		&genai.Part{FunctionCall: &genai.FunctionCall{ID: "c1", Name: domain.ActionReadFile, Args: map[string]any{"path": "main.go"}}},
	), nil)
	client := NewWithGenerator(gen)

	history := []domain.Turn{{Role: domain.RoleUser, Text: "prompt"}}
	turn, err := client.ResearchStep(context.Background(), history)
	require.NoError(t, err)

	assert.Equal(t, domain.RoleModel, turn.Role)
	assert.Equal(t, "Looking at main.go", turn.Text)
	assert.Equal(t, []domain.ActionCall{{ID: "c1", Name: domain.ActionReadFile, Args: map[string]any{"path": "main.go"}}}, turn.Calls)

	config := gen.Calls[0].Arguments.Get(2).(*genai.GenerateContentConfig)
	require.Len(t, config.Tools, 1)
	var names []string
	for _, fd := range config.Tools[0].FunctionDeclarations {
		names = append(names, fd.Name)
	}
	assert.Equal(t, []string{"listFiles", "readFile", "searchCode", "finishResearch"}, names)
}

func TestClient_ResearchStep_EmptyHistory(t *testing.T) {
	client := NewWithGenerator(&mockGenerator{})
	_, err := client.ResearchStep(context.Background(), nil)
	assert.ErrorContains(t, err, "history is empty")
}

func TestClient_ResearchStep_NoResponse(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
	}{
		{"nil", nil},
		{"no candidates", &genai.GenerateContentResponse{}},
		{"blocked candidate", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &mockGenerator{}
			gen.On("GenerateContent", DefaultModel, mock.Anything, mock.Anything).Return(tt.resp, nil)
			client := NewWithGenerator(gen)

			turn, err := client.ResearchStep(context.Background(), []domain.Turn{{Role: domain.RoleUser, Text: "prompt"}})
			require.ErrorIs(t, err, ErrNoResponse)
			assert.EqualError(t, err, "No response from Research Agent")
			assert.Empty(t, turn.Calls)
			gen.AssertNumberOfCalls(t, "GenerateContent", 1)
		})
	}
}

func TestClient_QuotaErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"429", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED", Message: "quota"}, true},
		{"status only", genai.APIError{Code: 400, Status: "RESOURCE_EXHAUSTED"}, true},
		{"server error", genai.APIError{Code: 500, Status: "INTERNAL"}, false},
		{"transport", errors.New("connection reset"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gen := &mockGenerator{}
			gen.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything).Return(nil, tc.err)
			client := NewWithGenerator(gen)

			_, err := client.Plan(context.Background(), "t", "b", nil)
			require.Error(t, err)
			assert.Equal(t, tc.want, errors.Is(err, domain.ErrRateLimited))
		})
	}
}

func TestClient_Plan(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("GenerateContent", "gemini-custom", mock.Anything, mock.Anything).
		Return(reply(&genai.Part{Text: `{"analysis":"nil config","steps":["guard it"]}`}), nil)
	client := NewWithGenerator(gen, WithModel("gemini-custom"))

	plan, err := client.Plan(context.Background(), "Crash on start", "boom", []ports.FileContent{{Path: "main.go", Content: "package main"}})
	require.NoError(t, err)
	assert.Equal(t, domain.Plan{Analysis: "nil config", Steps: []string{"guard it"}}, plan)

	contents := gen.Calls[0].Arguments.Get(1).([]*genai.Content)
	prompt := contents[0].Parts[0].Text
	assert.Contains(t, prompt, "Issue: Crash on start\nboom")
	assert.Contains(t, prompt, "--- main.go ---\npackage main\n")
	config := gen.Calls[0].Arguments.Get(2).(*genai.GenerateContentConfig)
	assert.Equal(t, "application/json", config.ResponseMIMEType)
}

func TestClient_PlanEmptyResponse(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything).Return(reply(), nil)

	plan, err := NewWithGenerator(gen).Plan(context.Background(), "t", "b", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.Plan{Analysis: "Failed to analyze", Steps: []string{}}, plan)
}

func TestClient_GenerateFix(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything).
		Return(reply(&genai.Part{Text: `{"newContent":"package main\n","explanation":"guarded"}`}), nil).Once()
	gen.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything).
		Return(reply(&genai.Part{Text: `{"newContent":"","explanation":"nothing"}`}), nil).Once()
	client := NewWithGenerator(gen)

	fix, err := client.GenerateFix(context.Background(), "boom", "nil config", "main.go", "package main")
	require.NoError(t, err)
	assert.Equal(t, domain.Fix{NewContent: "package main\n", Explanation: "guarded"}, fix)

	contents := gen.Calls[0].Arguments.Get(1).([]*genai.Content)
	assert.Contains(t, contents[0].Parts[0].Text, "Target File: main.go")

	_, err = client.GenerateFix(context.Background(), "boom", "nil config", "main.go", "package main")
	assert.ErrorContains(t, err, "empty content for main.go")
}

func TestToContents(t *testing.T) {
	history := []domain.Turn{
		{Role: domain.RoleUser, Text: "prompt"},
		{Role: domain.RoleModel, Calls: []domain.ActionCall{
			{ID: "a", Name: domain.ActionListFiles, Args: map[string]any{"path": "."}},
			{ID: "b", Name: domain.ActionReadFile, Args: map[string]any{"path": "main.go"}},
		}},
		{Role: domain.RoleTool, Results: []domain.ActionResult{{CallID: "a", Name: domain.ActionListFiles, Output: "[]"}}},
		{Role: domain.RoleTool, Results: []domain.ActionResult{{CallID: "b", Name: domain.ActionReadFile, Output: "File empty or not found."}}},
	}

	contents := toContents(history)
	require.Len(t, contents, 3)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Len(t, contents[1].Parts, 2)

	responses := contents[2]
	assert.Equal(t, "user", responses.Role)
	require.Len(t, responses.Parts, 2)
	assert.Equal(t, "a", responses.Parts[0].FunctionResponse.ID)
	assert.Equal(t, map[string]any{"result": "File empty or not found."}, responses.Parts[1].FunctionResponse.Response)
}
