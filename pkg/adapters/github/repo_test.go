package github_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/issueflow/pkg/adapters/github"
	"github.com/aretw0/issueflow/pkg/domain"
	"github.com/aretw0/issueflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type request struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

// fakeGitHub serves canned responses keyed by "METHOD /path" and records every request.
type fakeGitHub struct {
	mu       sync.Mutex
	routes   map[string]func(w http.ResponseWriter)
	requests []request
}

func newFakeGitHub(t *testing.T) (*fakeGitHub, ports.Repository, *github.Client) {
	t.Helper()
	f := &fakeGitHub{routes: map[string]func(w http.ResponseWriter){}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)

	clock := func() time.Time { return time.UnixMilli(1700000000000) }
	client, err := github.New("token", srv.Client(), github.WithBaseURL(srv.URL), github.WithClock(clock))
	require.NoError(t, err)
	repo, err := client.Repository("acme", "api")
	require.NoError(t, err)
	return f, repo, client
}

func (f *fakeGitHub) handle(route string, status int, body any) {
	f.routes[route] = func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func (f *fakeGitHub) serve(w http.ResponseWriter, r *http.Request) {
	req := request{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery}
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		_ = json.Unmarshal(data, &req.Body)
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	h, ok := f.routes[r.Method+" "+r.URL.Path]
	f.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
		return
	}
	h(w)
}

func (f *fakeGitHub) find(method, prefix string) (request, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.Method == method && strings.HasPrefix(r.Path, prefix) {
			return r, true
		}
	}
	return request{}, false
}

func TestRepo_ListDirectory(t *testing.T) {
	f, repo, _ := newFakeGitHub(t)
	f.handle("GET /repos/acme/api/contents/src", http.StatusOK, []map[string]any{
		{"path": "src/main.go", "type": "file"},
		{"path": "src/util", "type": "dir"},
	})

	entries, err := repo.ListDirectory(context.Background(), "src")
	require.NoError(t, err)
	assert.Equal(t, []ports.DirEntry{
		{Path: "src/main.go", Kind: "file"},
		{Path: "src/util", Kind: "dir"},
	}, entries)
}

func TestRepo_ReadFile(t *testing.T) {
	f, repo, _ := newFakeGitHub(t)
	f.handle("GET /repos/acme/api/contents/main.go", http.StatusOK, map[string]any{
		"type":     "file",
		"path":     "main.go",
		"encoding": "base64",
		"content":  base64.StdEncoding.EncodeToString([]byte("package main\n")),
	})

	content, err := repo.ReadFile(context.Background(), "main.go")
	require.NoError(t, err)
	assert.Equal(t, "package main\n", content)

	_, err = repo.ReadFile(context.Background(), "missing.go")
	assert.ErrorIs(t, err, domain.ErrFileNotFound)
}

func TestRepo_SearchCode(t *testing.T) {
	f, repo, _ := newFakeGitHub(t)
	items := []map[string]any{}
	for _, p := range []string{"a.go", "b.go", "c.go", "d.go", "e.go", "f.go"} {
		items = append(items, map[string]any{"path": p})
	}
	f.handle("GET /search/code", http.StatusOK, map[string]any{"total_count": 6, "items": items})

	paths, err := repo.SearchCode(context.Background(), "panic")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go", "b.go", "c.go", "d.go", "e.go"}, paths)

	req, ok := f.find(http.MethodGet, "/search/code")
	require.True(t, ok)
	assert.Contains(t, req.Query, "per_page=5")
	assert.Contains(t, req.Query, "repo%3Aacme%2Fapi")
}

func TestRepo_Issues(t *testing.T) {
	f, repo, _ := newFakeGitHub(t)
	f.handle("GET /repos/acme/api/issues", http.StatusOK, []map[string]any{
		{"number": 7, "title": "Crash on start", "body": "boom", "html_url": "https://github.com/acme/api/issues/7"},
		{"number": 8, "title": "A pull request", "pull_request": map[string]any{"url": "x"}},
	})
	f.handle("GET /repos/acme/api/issues/7", http.StatusOK, map[string]any{"number": 7, "title": "Crash on start", "body": "boom"})

	issues, err := repo.ListIssues(context.Background())
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, domain.Issue{Number: 7, Title: "Crash on start", Body: "boom", URL: "https://github.com/acme/api/issues/7"}, issues[0])

	req, _ := f.find(http.MethodGet, "/repos/acme/api/issues")
	assert.Contains(t, req.Query, "state=open")
	assert.Contains(t, req.Query, "per_page=20")

	issue, err := repo.GetIssue(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "Crash on start", issue.Title)

	_, err = repo.GetIssue(context.Background(), 99)
	assert.ErrorIs(t, err, domain.ErrIssueNotFound)
}

func publishRoutes(f *fakeGitHub) {
	f.handle("GET /repos/acme/api", http.StatusOK, map[string]any{"default_branch": "main"})
	f.handle("GET /repos/acme/api/git/ref/heads/main", http.StatusOK, map[string]any{"ref": "refs/heads/main", "object": map[string]any{"sha": "base"}})
	f.handle("GET /repos/acme/api/git/refs/heads/main", http.StatusOK, map[string]any{"ref": "refs/heads/main", "object": map[string]any{"sha": "base"}})
	f.handle("POST /repos/acme/api/git/refs", http.StatusCreated, map[string]any{"ref": "refs/heads/fix"})
	f.handle("POST /repos/acme/api/git/blobs", http.StatusCreated, map[string]any{"sha": "blob"})
	f.handle("POST /repos/acme/api/git/trees", http.StatusCreated, map[string]any{"sha": "tree"})
	f.handle("POST /repos/acme/api/git/commits", http.StatusCreated, map[string]any{"sha": "commit"})
	f.handle("PATCH /repos/acme/api/git/refs/heads/fix/issue-7-1700000000000", http.StatusOK, map[string]any{"ref": "refs/heads/fix"})
	f.handle("POST /repos/acme/api/pulls", http.StatusCreated, map[string]any{"html_url": "https://github.com/acme/api/pull/9"})
}

func TestRepo_PublishChange(t *testing.T) {
	f, repo, _ := newFakeGitHub(t)
	publishRoutes(f)

	url, err := repo.PublishChange(context.Background(), ports.ChangeRequest{
		IssueNumber: 7,
		Title:       "Crash on start",
		Body:        "Guard the nil config.",
		Files:       []ports.FileChange{{Path: "main.go", Content: "package main\n"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/acme/api/pull/9", url)

	ref, ok := f.find(http.MethodPost, "/repos/acme/api/git/refs")
	require.True(t, ok)
	assert.Equal(t, "refs/heads/fix/issue-7-1700000000000", ref.Body["ref"])
	assert.Equal(t, "base", ref.Body["sha"])

	blob, _ := f.find(http.MethodPost, "/repos/acme/api/git/blobs")
	assert.Equal(t, "package main\n", blob.Body["content"])

	tree, _ := f.find(http.MethodPost, "/repos/acme/api/git/trees")
	assert.Equal(t, "base", tree.Body["base_tree"])

	commit, _ := f.find(http.MethodPost, "/repos/acme/api/git/commits")
	assert.Equal(t, "Fix for issue #7: Crash on start", commit.Body["message"])
	assert.Equal(t, "tree", commit.Body["tree"])

	_, ok = f.find(http.MethodPatch, "/repos/acme/api/git/refs/heads/fix/issue-7-1700000000000")
	assert.True(t, ok, "branch moved to the new commit")

	pr, _ := f.find(http.MethodPost, "/repos/acme/api/pulls")
	assert.Equal(t, "Fix: Crash on start", pr.Body["title"])
	assert.Equal(t, "Resolves #7\n\nGuard the nil config.", pr.Body["body"])
	assert.Equal(t, "fix/issue-7-1700000000000", pr.Body["head"])
	assert.Equal(t, "main", pr.Body["base"])
}

func TestRepo_PublishChange_PermissionDenied(t *testing.T) {
	f, repo, _ := newFakeGitHub(t)
	publishRoutes(f)
	f.handle("POST /repos/acme/api/git/refs", http.StatusForbidden, map[string]any{"message": "Resource not accessible by integration"})

	_, err := repo.PublishChange(context.Background(), ports.ChangeRequest{
		IssueNumber: 7,
		Title:       "Crash on start",
		Files:       []ports.FileChange{{Path: "main.go", Content: "x"}},
	})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, ok := f.find(http.MethodPost, "/repos/acme/api/pulls")
	assert.False(t, ok)
}

func TestRepo_RateLimited(t *testing.T) {
	f, repo, _ := newFakeGitHub(t)
	f.handle("GET /search/code", http.StatusTooManyRequests, map[string]any{"message": "slow down"})

	_, err := repo.SearchCode(context.Background(), "panic")
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestClient_ListRepositories(t *testing.T) {
	f, _, client := newFakeGitHub(t)
	f.handle("GET /user/repos", http.StatusOK, []map[string]any{
		{"name": "api", "owner": map[string]any{"login": "acme"}, "description": "The API", "html_url": "https://github.com/acme/api"},
	})

	repos, err := client.ListRepositories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []ports.RepositoryInfo{{Owner: "acme", Name: "api", Description: "The API", URL: "https://github.com/acme/api"}}, repos)
}

func TestClient_RepositoryValidation(t *testing.T) {
	client, err := github.New("", nil)
	require.NoError(t, err)
	_, err = client.Repository("", "api")
	assert.ErrorIs(t, err, domain.ErrInvalidKey)
}
