package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/issueflow/pkg/domain"
	"github.com/aretw0/issueflow/pkg/ports"
	"github.com/aretw0/issueflow/pkg/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = domain.WorkflowKey{Owner: "acme", Repo: "api", Issue: 7}

// stubWorkflows answers from a single stored state and records calls.
type stubWorkflows struct {
	mu       sync.Mutex
	state    *domain.WorkflowState
	err      error
	listOpts []ports.ListOptions
	decision *DecisionRequest
	observer service.Observer
}

func (s *stubWorkflows) Start(ctx context.Context, key domain.WorkflowKey) (*domain.WorkflowState, error) {
	return s.state, s.err
}

func (s *stubWorkflows) Resume(ctx context.Context, key domain.WorkflowKey) (*domain.WorkflowState, error) {
	return s.state, s.err
}

func (s *stubWorkflows) Decide(ctx context.Context, key domain.WorkflowKey, approved bool, feedback string) (*domain.WorkflowState, error) {
	s.decision = &DecisionRequest{Approved: approved, Feedback: feedback}
	return s.state, s.err
}

func (s *stubWorkflows) Get(ctx context.Context, key domain.WorkflowKey) (*domain.WorkflowState, error) {
	if s.state == nil {
		return nil, domain.ErrWorkflowNotFound
	}
	return s.state, nil
}

func (s *stubWorkflows) List(ctx context.Context, opts ports.ListOptions) ([]domain.Snapshot, error) {
	s.listOpts = append(s.listOpts, opts)
	return []domain.Snapshot{}, nil
}

func (s *stubWorkflows) Issues(ctx context.Context, owner, repo string) ([]service.IssueStatus, error) {
	return []service.IssueStatus{{Issue: domain.Issue{Number: 7, Title: "Crash on start"}, Status: domain.StatusIdle}}, nil
}

func (s *stubWorkflows) Repositories(ctx context.Context) ([]ports.RepositoryInfo, error) {
	return nil, service.ErrListingUnsupported
}

func (s *stubWorkflows) Observe(fn service.Observer) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.observer = nil
	}
}

func (s *stubWorkflows) emit(state *domain.WorkflowState) {
	s.mu.Lock()
	fn := s.observer
	s.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

func awaitingState() *domain.WorkflowState {
	s := domain.NewWorkflowState(testKey)
	s.Status = domain.StepAwaitingHuman.Status()
	s.Issue = &domain.Issue{Number: 7, Title: "Crash on start"}
	s.Logs = []string{"Starting Iterative Research for #7..."}
	return s
}

func newTestServer(t *testing.T, stub *stubWorkflows) (*Server, http.Handler) {
	t.Helper()
	srv, err := New(stub)
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	return srv, srv.Handler()
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestServer_GetWorkflow(t *testing.T) {
	stub := &stubWorkflows{}
	_, h := newTestServer(t, stub)

	w := do(h, http.MethodGet, "/api/workflows/acme/api/7", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	stub.state = awaitingState()
	w = do(h, http.MethodGet, "/api/workflows/acme/api/7", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got domain.WorkflowState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, domain.StepAwaitingHuman.Status(), got.Status)

	w = do(h, http.MethodGet, "/api/workflows/acme/api/seven", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_Lifecycle(t *testing.T) {
	stub := &stubWorkflows{state: awaitingState()}
	_, h := newTestServer(t, stub)

	assert.Equal(t, http.StatusAccepted, do(h, http.MethodPost, "/api/workflows/acme/api/7/start", "").Code)
	assert.Equal(t, http.StatusAccepted, do(h, http.MethodPost, "/api/workflows/acme/api/7/resume", "").Code)

	w := do(h, http.MethodPost, "/api/workflows/acme/api/7/decision", `{"approved":false,"feedback":"keep it"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, &DecisionRequest{Approved: false, Feedback: "keep it"}, stub.decision)

	w = do(h, http.MethodPost, "/api/workflows/acme/api/7/decision", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_ErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{domain.ErrWorkflowBusy, http.StatusConflict},
		{domain.ErrNotAwaitingDecision, http.StatusConflict},
		{domain.ErrIssueNotFound, http.StatusNotFound},
		{domain.ErrRateLimited, http.StatusTooManyRequests},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		stub := &stubWorkflows{err: tt.err}
		_, h := newTestServer(t, stub)
		w := do(h, http.MethodPost, "/api/workflows/acme/api/7/start", "")
		assert.Equal(t, tt.code, w.Code, tt.err.Error())
		assert.Contains(t, w.Body.String(), `"error"`)
	}
}

func TestServer_Listings(t *testing.T) {
	stub := &stubWorkflows{}
	_, h := newTestServer(t, stub)

	w := do(h, http.MethodGet, "/api/repos/acme/api/issues", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"title":"Crash on start"`)

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/repos/acme/api/workflows", "").Code)
	assert.Equal(t, http.StatusNotImplemented, do(h, http.MethodGet, "/api/repos", "").Code)

	for _, target := range []string{
		"/api/workflows/recent",
		"/api/workflows/recent?limit=0",
		"/api/workflows/recent?limit=500",
		"/api/workflows/recent?limit=5",
	} {
		assert.Equal(t, http.StatusOK, do(h, http.MethodGet, target, "").Code)
	}
	assert.Equal(t, []ports.ListOptions{
		{Owner: "acme", Repo: "api"},
		{Limit: 20},
		{Limit: 1},
		{Limit: 100},
		{Limit: 5},
	}, stub.listOpts)
}

func TestServer_Graph(t *testing.T) {
	stub := &stubWorkflows{state: awaitingState()}
	_, h := newTestServer(t, stub)

	w := do(h, http.MethodGet, "/api/graph", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "graph TD")
	assert.NotContains(t, w.Body.String(), "class ")

	w = do(h, http.MethodGet, "/api/workflows/acme/api/7/graph", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "class AWAITING_HUMAN current;")
}

func TestServer_HealthAndInfo(t *testing.T) {
	_, h := newTestServer(t, &stubWorkflows{})
	assert.JSONEq(t, `{"status":"ok"}`, do(h, http.MethodGet, "/health", "").Body.String())
	assert.Contains(t, do(h, http.MethodGet, "/info", "").Body.String(), `"app":"issueflow"`)

	w := do(h, http.MethodOptions, "/api/graph", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_SubscribeEvents(t *testing.T) {
	initial := awaitingState()
	stub := &stubWorkflows{state: initial}
	srv, h := newTestServer(t, stub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/workflows/acme/api/7/events?watch=status", nil).WithContext(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeHTTP(w, req)
	}()
	require.Eventually(t, func() bool { return srv.streams.Subscribers(testKey.ID()) == 1 }, time.Second, 10*time.Millisecond)

	stub.emit(initial)

	logsOnly := initial.Clone()
	logsOnly.Logs = append(logsOnly.Logs, "[Human] Approved. Creating PR...")
	stub.emit(logsOnly)

	completed := logsOnly.Clone()
	completed.Status = domain.StatusCompleted
	completed.PublishedURL = "https://github.com/acme/api/pull/1"
	stub.emit(completed)

	cancel()
	<-done

	out := w.Body.String()
	assert.Contains(t, out, "event: ping\ndata: connected\n\n")
	assert.Contains(t, out, `"status":"AWAITING_HUMAN"`, "initial snapshot")
	assert.Contains(t, out, `"status":"COMPLETED"`)
	assert.Contains(t, out, `"publishedUrl":"https://github.com/acme/api/pull/1"`)
	assert.NotContains(t, out, "Creating PR", "log-only diffs are filtered by watch=status")
}

func TestRecentLimit(t *testing.T) {
	assert.Equal(t, 20, recentLimit(""))
	assert.Equal(t, 20, recentLimit("abc"))
	assert.Equal(t, 1, recentLimit("-3"))
	assert.Equal(t, 100, recentLimit("101"))
	assert.Equal(t, 42, recentLimit("42"))
}
