// Package gemini implements ports.ModelClient on the Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/issueflow/internal/logging"
	"github.com/aretw0/issueflow/pkg/domain"
	"github.com/aretw0/issueflow/pkg/ports"
	"google.golang.org/genai"
)

// DefaultModel is the model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

// ErrNoResponse is returned when a research call yields no candidate content,
// as happens when a reply is blocked.
var ErrNoResponse = errors.New("No response from Research Agent")

// Generator is the subset of the genai client the adapter calls.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client produces research turns, plans and fixes with a Gemini model.
type Client struct {
	gen    Generator
	model  string
	logger *slog.Logger
}

var _ ports.ModelClient = (*Client)(nil)

// Option configures the Client.
type Option func(*Client)

// WithModel selects the model name.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithLogger configures a logger for the Client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a Client for the Gemini API using apiKey.
func New(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: API key is required (GEMINI_API_KEY)")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return NewWithGenerator(gc.Models, opts...), nil
}

// NewWithGenerator creates a Client on top of an existing generator.
func NewWithGenerator(gen Generator, opts ...Option) *Client {
	c := &Client{gen: gen, model: DefaultModel, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResearchStep asks the model for the next research turn.
func (c *Client) ResearchStep(ctx context.Context, history []domain.Turn) (domain.Turn, error) {
	if len(history) == 0 {
		return domain.Turn{}, errors.New("research history is empty: the initial prompt is required")
	}
	resp, err := c.generate(ctx, "research", toContents(history), &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{FunctionDeclarations: researchTools}},
	})
	if err != nil {
		return domain.Turn{}, err
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return domain.Turn{}, ErrNoResponse
	}
	return fromResponse(resp), nil
}

// Plan drafts a fix plan from the issue and the collected files.
func (c *Client) Plan(ctx context.Context, title, body string, files []ports.FileContent) (domain.Plan, error) {
	resp, err := c.generate(ctx, "plan", []*genai.Content{genai.NewContentFromText(planPrompt(title, body, files), genai.RoleUser)}, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   planSchema,
	})
	if err != nil {
		return domain.Plan{}, err
	}
	plan := domain.Plan{Analysis: "Failed to analyze", Steps: []string{}}
	text := resp.Text()
	if text == "" {
		return plan, nil
	}
	if err := json.Unmarshal([]byte(text), &plan); err != nil {
		return domain.Plan{}, fmt.Errorf("decode plan: %w", err)
	}
	if plan.Steps == nil {
		plan.Steps = []string{}
	}
	return plan, nil
}

// GenerateFix asks the model for the full new content of one file.
func (c *Client) GenerateFix(ctx context.Context, issueBody, analysis, path, content string) (domain.Fix, error) {
	resp, err := c.generate(ctx, "fix", []*genai.Content{genai.NewContentFromText(fixPrompt(issueBody, analysis, path, content), genai.RoleUser)}, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   fixSchema,
	})
	if err != nil {
		return domain.Fix{}, err
	}
	var fix domain.Fix
	text := resp.Text()
	if text == "" {
		return domain.Fix{}, fmt.Errorf("model returned no fix for %s", path)
	}
	if err := json.Unmarshal([]byte(text), &fix); err != nil {
		return domain.Fix{}, fmt.Errorf("decode fix for %s: %w", path, err)
	}
	if fix.NewContent == "" {
		return domain.Fix{}, fmt.Errorf("model returned empty content for %s", path)
	}
	return fix, nil
}

func (c *Client) generate(ctx context.Context, op string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	resp, err := c.gen.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		c.logger.Debug("Model call failed", "op", op, "model", c.model, "err", err)
		return nil, mapError(op, err)
	}
	return resp, nil
}

// mapError marks quota exhaustion with domain.ErrRateLimited.
func mapError(op string, err error) error {
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr) && isQuota(apiErr):
		return fmt.Errorf("%s: %w: %v", op, domain.ErrRateLimited, err)
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil && isQuota(*apiErrPtr):
		return fmt.Errorf("%s: %w: %v", op, domain.ErrRateLimited, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isQuota(e genai.APIError) bool {
	return e.Code == http.StatusTooManyRequests || strings.EqualFold(e.Status, "RESOURCE_EXHAUSTED")
}
