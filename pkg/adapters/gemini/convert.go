package gemini

import (
	"github.com/aretw0/issueflow/pkg/domain"
	"google.golang.org/genai"
)

// toContents converts the research history. Consecutive tool turns are
// merged into one user message, so every call of a model turn is answered together.
func toContents(history []domain.Turn) []*genai.Content {
	out := make([]*genai.Content, 0, len(history))
	for _, t := range history {
		switch t.Role {
		case domain.RoleTool:
			parts := make([]*genai.Part, 0, len(t.Results))
			for _, r := range t.Results {
				parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       r.CallID,
					Name:     r.Name,
					Response: map[string]any{"result": r.Output},
				}})
			}
			if n := len(out); n > 0 && out[n-1].Role == string(genai.RoleUser) && isResponses(out[n-1]) {
				out[n-1].Parts = append(out[n-1].Parts, parts...)
				continue
			}
			out = append(out, &genai.Content{Role: string(genai.RoleUser), Parts: parts})

		case domain.RoleModel:
			var parts []*genai.Part
			if t.Text != "" {
				parts = append(parts, &genai.Part{Text: t.Text})
			}
			for _, c := range t.Calls {
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: c.ID, Name: c.Name, Args: c.Args}})
			}
			out = append(out, &genai.Content{Role: string(genai.RoleModel), Parts: parts})

		default:
			out = append(out, genai.NewContentFromText(t.Text, genai.RoleUser))
		}
	}
	return out
}

func isResponses(c *genai.Content) bool {
	for _, p := range c.Parts {
		if p.FunctionResponse == nil {
			return false
		}
	}
	return len(c.Parts) > 0
}

// fromResponse converts the first candidate into a model turn.
func fromResponse(resp *genai.GenerateContentResponse) domain.Turn {
	turn := domain.Turn{Role: domain.RoleModel}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return turn
	}
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil {
			continue
		}
		if p.Text != "" && !p.Thought {
			turn.Text += p.Text
		}
		if p.FunctionCall != nil {
			turn.Calls = append(turn.Calls, domain.ActionCall{
				ID:   p.FunctionCall.ID,
				Name: p.FunctionCall.Name,
				Args: p.FunctionCall.Args,
			})
		}
	}
	return turn
}
