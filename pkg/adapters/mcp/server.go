// Package mcp exposes the workflow service as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aretw0/issueflow"
	"github.com/aretw0/issueflow/internal/logging"
	"github.com/aretw0/issueflow/internal/presentation/graph"
	"github.com/aretw0/issueflow/pkg/domain"
	"github.com/aretw0/issueflow/pkg/dsl"
	"github.com/aretw0/issueflow/pkg/ports"
	"github.com/aretw0/issueflow/pkg/service"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/mitchellh/mapstructure"
)

const graphURI = "issueflow://graph"

// Workflows is the lifecycle surface the tools call.
type Workflows interface {
	Start(ctx context.Context, key domain.WorkflowKey) (*domain.WorkflowState, error)
	Resume(ctx context.Context, key domain.WorkflowKey) (*domain.WorkflowState, error)
	Decide(ctx context.Context, key domain.WorkflowKey, approved bool, feedback string) (*domain.WorkflowState, error)
	Get(ctx context.Context, key domain.WorkflowKey) (*domain.WorkflowState, error)
	List(ctx context.Context, opts ports.ListOptions) ([]domain.Snapshot, error)
	Issues(ctx context.Context, owner, repo string) ([]service.IssueStatus, error)
}

// Server wraps the workflow service and exposes it as an MCP Server.
type Server struct {
	svc       Workflows
	graph     *dsl.Graph
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(svc Workflows, opts ...Option) (*Server, error) {
	g, err := issueflow.BuildGraph(false)
	if err != nil {
		return nil, err
	}
	s := &Server{
		svc:       svc,
		graph:     g,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("issueflow-mcp", issueflow.Version),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s, nil
}

// ServeStdio serves on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// SSEHandler returns an HTTP handler serving the SSE transport under /sse and /message.
func (s *Server) SSEHandler(baseURL string) http.Handler {
	sse := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))
	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sse.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sse.MessageHandler()))
	return mux
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// toolArgs is the union of every tool's arguments.
type toolArgs struct {
	Repository string `mapstructure:"repository"`
	Issue      int    `mapstructure:"issue"`
	Approved   bool   `mapstructure:"approved"`
	Feedback   string `mapstructure:"feedback"`
	Limit      int    `mapstructure:"limit"`
}

func decodeArgs(request mcp.CallToolRequest) (toolArgs, error) {
	var args toolArgs
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &args,
	})
	if err != nil {
		return args, err
	}
	if err := dec.Decode(request.GetArguments()); err != nil {
		return args, fmt.Errorf("invalid arguments: %w", err)
	}
	return args, nil
}

func (a toolArgs) key() (domain.WorkflowKey, error) {
	owner, repo, err := domain.ParseRepository(a.Repository)
	if err != nil {
		return domain.WorkflowKey{}, err
	}
	key := domain.WorkflowKey{Owner: owner, Repo: repo, Issue: a.Issue}
	return key, key.Validate()
}

func (s *Server) registerTools() {
	repoArg := mcp.WithString("repository", mcp.Required(), mcp.Description("Repository as owner/name"))
	issueArg := mcp.WithNumber("issue", mcp.Required(), mcp.Description("Issue number"))

	s.mcpServer.AddTool(mcp.NewTool("start_workflow",
		mcp.WithDescription("Start resolving an issue: research the repository, plan and generate a fix, then wait for review."),
		repoArg, issueArg,
	), s.workflowTool(func(ctx context.Context, key domain.WorkflowKey, _ toolArgs) (*domain.WorkflowState, error) {
		return s.svc.Start(ctx, key)
	}))

	s.mcpServer.AddTool(mcp.NewTool("get_workflow",
		mcp.WithDescription("Get the current state of an issue workflow."),
		repoArg, issueArg,
	), s.workflowTool(func(ctx context.Context, key domain.WorkflowKey, _ toolArgs) (*domain.WorkflowState, error) {
		return s.svc.Get(ctx, key)
	}))

	s.mcpServer.AddTool(mcp.NewTool("resume_workflow",
		mcp.WithDescription("Resume a workflow paused on quota, or continue one waiting for review."),
		repoArg, issueArg,
	), s.workflowTool(func(ctx context.Context, key domain.WorkflowKey, _ toolArgs) (*domain.WorkflowState, error) {
		return s.svc.Resume(ctx, key)
	}))

	s.mcpServer.AddTool(mcp.NewTool("submit_decision",
		mcp.WithDescription("Approve the generated patches to open a pull request, or reject them with feedback."),
		repoArg, issueArg,
		mcp.WithBoolean("approved", mcp.Required(), mcp.Description("Whether the patches are approved")),
		mcp.WithString("feedback", mcp.Description("Reason for rejecting the patches")),
	), s.workflowTool(func(ctx context.Context, key domain.WorkflowKey, args toolArgs) (*domain.WorkflowState, error) {
		return s.svc.Decide(ctx, key, args.Approved, args.Feedback)
	}))

	s.mcpServer.AddTool(mcp.NewTool("list_workflows",
		mcp.WithDescription("List stored workflows, newest first."),
		mcp.WithString("repository", mcp.Description("Only workflows of owner/name (optional)")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of workflows (optional)")),
	), s.handleListWorkflows)

	s.mcpServer.AddTool(mcp.NewTool("list_issues",
		mcp.WithDescription("List the open issues of a repository with the status of their workflows."),
		repoArg,
	), s.handleListIssues)

	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get the workflow graph as a Mermaid flowchart, highlighting a workflow's progress when repository and issue are given."),
		mcp.WithString("repository", mcp.Description("Repository as owner/name (optional)")),
		mcp.WithNumber("issue", mcp.Description("Issue number (optional)")),
	), s.handleGetGraph)
}

type workflowFunc func(ctx context.Context, key domain.WorkflowKey, args toolArgs) (*domain.WorkflowState, error)

// workflowTool adapts fn to a tool whose result is the workflow state as JSON.
// Failures are tool errors the client can read, not protocol errors.
func (s *Server) workflowTool(fn workflowFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := decodeArgs(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		key, err := args.key()
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		state, err := fn(ctx, key, args)
		if err != nil {
			s.logger.Warn("MCP tool failed", "tool", request.Params.Name, "workflow", key.String(), "err", err)
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(state)
	}
}

func (s *Server) handleListWorkflows(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decodeArgs(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	opts := ports.ListOptions{Limit: args.Limit}
	if args.Repository != "" {
		if opts.Owner, opts.Repo, err = domain.ParseRepository(args.Repository); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	snaps, err := s.svc.List(ctx, opts)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(snaps)
}

func (s *Server) handleListIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decodeArgs(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	owner, repo, err := domain.ParseRepository(args.Repository)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	issues, err := s.svc.Issues(ctx, owner, repo)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(issues)
}

func (s *Server) handleGetGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decodeArgs(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var overlay *graph.Overlay
	if args.Repository != "" {
		key, err := args.key()
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		state, err := s.svc.Get(ctx, key)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		overlay = graph.OverlayFor(state)
	}
	return mcp.NewToolResultText(graph.GenerateMermaid(s.graph, overlay)), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(graphURI, "Workflow Graph",
		mcp.WithMIMEType("text/vnd.mermaid"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      graphURI,
				MIMEType: "text/vnd.mermaid",
				Text:     graph.GenerateMermaid(s.graph, nil),
			},
		}, nil
	})
}
