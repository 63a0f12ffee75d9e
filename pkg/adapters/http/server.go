// Package http exposes the workflow service as a REST and Server-Sent Events API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/aretw0/issueflow"
	"github.com/aretw0/issueflow/internal/logging"
	"github.com/aretw0/issueflow/internal/presentation/graph"
	"github.com/aretw0/issueflow/pkg/domain"
	"github.com/aretw0/issueflow/pkg/dsl"
	"github.com/aretw0/issueflow/pkg/ports"
	"github.com/aretw0/issueflow/pkg/service"
	"github.com/go-chi/chi/v5"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 100
)

// Workflows is the lifecycle surface the server exposes.
type Workflows interface {
	Start(ctx context.Context, key domain.WorkflowKey) (*domain.WorkflowState, error)
	Resume(ctx context.Context, key domain.WorkflowKey) (*domain.WorkflowState, error)
	Decide(ctx context.Context, key domain.WorkflowKey, approved bool, feedback string) (*domain.WorkflowState, error)
	Get(ctx context.Context, key domain.WorkflowKey) (*domain.WorkflowState, error)
	List(ctx context.Context, opts ports.ListOptions) ([]domain.Snapshot, error)
	Issues(ctx context.Context, owner, repo string) ([]service.IssueStatus, error)
	Repositories(ctx context.Context) ([]ports.RepositoryInfo, error)
	Observe(fn service.Observer) func()
}

// Server serves the API and streams state diffs of running workflows.
type Server struct {
	svc     Workflows
	streams *StreamManager
	graph   *dsl.Graph
	logger  *slog.Logger

	mu   sync.Mutex
	last map[domain.WorkflowKey]*domain.WorkflowState

	stopObserving func()
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithGraph sets the graph rendered by the graph endpoints.
func WithGraph(g *dsl.Graph) Option {
	return func(s *Server) {
		s.graph = g
	}
}

// New creates a Server observing svc. Call Close to stop observing.
func New(svc Workflows, opts ...Option) (*Server, error) {
	s := &Server{
		svc:    svc,
		logger: logging.NewNop(),
		last:   make(map[domain.WorkflowKey]*domain.WorkflowState),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.graph == nil {
		g, err := issueflow.BuildGraph(false)
		if err != nil {
			return nil, err
		}
		s.graph = g
	}
	s.streams = NewStreamManager(s.logger)
	s.stopObserving = svc.Observe(s.publish)
	return s, nil
}

// Close stops forwarding workflow states to streams.
func (s *Server) Close() {
	s.stopObserving()
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)

	r.Route("/api", func(r chi.Router) {
		r.Get("/graph", s.GetGraph)
		r.Get("/repos", s.ListRepositories)
		r.Get("/repos/{owner}/{repo}/issues", s.ListIssues)
		r.Get("/repos/{owner}/{repo}/workflows", s.ListRepoWorkflows)
		r.Get("/workflows/recent", s.ListRecentWorkflows)

		r.Route("/workflows/{owner}/{repo}/{issue}", func(r chi.Router) {
			r.Get("/", s.GetWorkflow)
			r.Post("/start", s.StartWorkflow)
			r.Post("/resume", s.ResumeWorkflow)
			r.Post("/decision", s.SubmitDecision)
			r.Get("/events", s.SubscribeEvents)
			r.Get("/graph", s.GetWorkflowGraph)
		})
	})

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Custom-Header")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// publish turns every observed state into a diff for the workflow's streams.
func (s *Server) publish(state *domain.WorkflowState) {
	s.mu.Lock()
	prev := s.last[state.Key]
	if state.Status.Terminal() {
		delete(s.last, state.Key)
	} else {
		s.last[state.Key] = state
	}
	s.mu.Unlock()

	diff := domain.Diff(prev, state)
	if diff == nil {
		return
	}
	data, err := json.Marshal(diff)
	if err != nil {
		s.logger.Error("Failed to encode state diff", "workflow", state.Key.String(), "err", err)
		return
	}
	s.streams.Broadcast(state.Key.ID(), string(data))
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "issueflow",
		"version": issueflow.Version,
	})
}

// GetGraph handles GET /api/graph.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(graph.GenerateMermaid(s.graph, nil)))
}

// ListRepositories handles GET /api/repos.
func (s *Server) ListRepositories(w http.ResponseWriter, r *http.Request) {
	repos, err := s.svc.Repositories(r.Context())
	if err != nil {
		s.writeError(w, "ListRepositories", err)
		return
	}
	writeJSON(w, http.StatusOK, repos)
}

// ListIssues handles GET /api/repos/{owner}/{repo}/issues.
func (s *Server) ListIssues(w http.ResponseWriter, r *http.Request) {
	issues, err := s.svc.Issues(r.Context(), chi.URLParam(r, "owner"), chi.URLParam(r, "repo"))
	if err != nil {
		s.writeError(w, "ListIssues", err)
		return
	}
	writeJSON(w, http.StatusOK, issues)
}

// ListRepoWorkflows handles GET /api/repos/{owner}/{repo}/workflows.
func (s *Server) ListRepoWorkflows(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.svc.List(r.Context(), ports.ListOptions{
		Owner: chi.URLParam(r, "owner"),
		Repo:  chi.URLParam(r, "repo"),
	})
	if err != nil {
		s.writeError(w, "ListRepoWorkflows", err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

// ListRecentWorkflows handles GET /api/workflows/recent?limit=N.
func (s *Server) ListRecentWorkflows(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.svc.List(r.Context(), ports.ListOptions{Limit: recentLimit(r.URL.Query().Get("limit"))})
	if err != nil {
		s.writeError(w, "ListRecentWorkflows", err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

// recentLimit parses limit, clamped to [1, 100]; anything unparsable is the default.
func recentLimit(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return defaultRecentLimit
	}
	return min(max(n, 1), maxRecentLimit)
}

// GetWorkflow handles GET /api/workflows/{owner}/{repo}/{issue}.
func (s *Server) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	key, ok := s.key(w, r)
	if !ok {
		return
	}
	state, err := s.svc.Get(r.Context(), key)
	if err != nil {
		s.writeError(w, "GetWorkflow", err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// StartWorkflow handles POST /api/workflows/{owner}/{repo}/{issue}/start.
func (s *Server) StartWorkflow(w http.ResponseWriter, r *http.Request) {
	key, ok := s.key(w, r)
	if !ok {
		return
	}
	state, err := s.svc.Start(r.Context(), key)
	if err != nil {
		s.writeError(w, "StartWorkflow", err)
		return
	}
	writeJSON(w, http.StatusAccepted, state)
}

// ResumeWorkflow handles POST /api/workflows/{owner}/{repo}/{issue}/resume.
func (s *Server) ResumeWorkflow(w http.ResponseWriter, r *http.Request) {
	key, ok := s.key(w, r)
	if !ok {
		return
	}
	state, err := s.svc.Resume(r.Context(), key)
	if err != nil {
		s.writeError(w, "ResumeWorkflow", err)
		return
	}
	writeJSON(w, http.StatusAccepted, state)
}

// DecisionRequest is the body of a review decision.
type DecisionRequest struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback"`
}

// SubmitDecision handles POST /api/workflows/{owner}/{repo}/{issue}/decision.
func (s *Server) SubmitDecision(w http.ResponseWriter, r *http.Request) {
	key, ok := s.key(w, r)
	if !ok {
		return
	}
	var body DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid request body"})
		s.logger.Warn("SubmitDecision: Invalid request body", "err", err)
		return
	}
	state, err := s.svc.Decide(r.Context(), key, body.Approved, body.Feedback)
	if err != nil {
		s.writeError(w, "SubmitDecision", err)
		return
	}
	writeJSON(w, http.StatusAccepted, state)
}

// GetWorkflowGraph handles GET /api/workflows/{owner}/{repo}/{issue}/graph.
func (s *Server) GetWorkflowGraph(w http.ResponseWriter, r *http.Request) {
	key, ok := s.key(w, r)
	if !ok {
		return
	}
	state, err := s.svc.Get(r.Context(), key)
	if err != nil {
		s.writeError(w, "GetWorkflowGraph", err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(graph.GenerateMermaid(s.graph, graph.OverlayFor(state))))
}

// SubscribeEvents handles GET /api/workflows/{owner}/{repo}/{issue}/events (SSE).
// The first message is the full stored state as a diff; later messages are
// diffs of every persisted state. watch=status,logs,research,plan,patches filters them.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	key, ok := s.key(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}

	ch, cancel := s.streams.Subscribe(key.ID())
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	if state, err := s.svc.Get(r.Context(), key); err == nil {
		if data, err := json.Marshal(domain.Diff(nil, state)); err == nil {
			fmt.Fprintf(w, "data: %s\n\n", data)
		}
	}
	flusher.Flush()

	var watchList []string
	if raw := r.URL.Query().Get("watch"); raw != "" {
		watchList = strings.Split(raw, ",")
	}

	s.logger.Info("SSE: Subscribing to workflow updates", "workflow", key.String())
	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE Client Disconnected", "workflow", key.String())
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if len(watchList) > 0 && !matchesWatch(msg, watchList) {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func matchesWatch(msg string, watchList []string) bool {
	var diff domain.StateDiff
	if err := json.Unmarshal([]byte(msg), &diff); err != nil {
		return true
	}
	for _, field := range watchList {
		switch strings.TrimSpace(field) {
		case "status":
			if diff.Status != nil || diff.Error != nil || diff.Pause != nil || diff.PublishedURL != nil {
				return true
			}
		case "logs":
			if diff.Logs != nil {
				return true
			}
		case "research":
			if len(diff.RelevantFiles) > 0 || diff.ResearchLoopCount != nil {
				return true
			}
		case "plan":
			if diff.Plan != nil {
				return true
			}
		case "patches":
			if len(diff.Patches) > 0 {
				return true
			}
		}
	}
	return false
}

// -- Helpers --

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) key(w http.ResponseWriter, r *http.Request) (domain.WorkflowKey, bool) {
	issue, err := strconv.Atoi(chi.URLParam(r, "issue"))
	key := domain.WorkflowKey{Owner: chi.URLParam(r, "owner"), Repo: chi.URLParam(r, "repo"), Issue: issue}
	if err == nil {
		err = key.Validate()
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("invalid workflow key: %v", err)})
		return domain.WorkflowKey{}, false
	}
	return key, true
}

func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrWorkflowNotFound), errors.Is(err, domain.ErrIssueNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidKey), errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrWorkflowBusy), errors.Is(err, domain.ErrNotAwaitingDecision):
		status = http.StatusConflict
	case errors.Is(err, service.ErrListingUnsupported):
		status = http.StatusNotImplemented
	case errors.Is(err, domain.ErrRateLimited):
		status = http.StatusTooManyRequests
	}
	if status == http.StatusInternalServerError {
		s.logger.Error(op+" failed", "err", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
