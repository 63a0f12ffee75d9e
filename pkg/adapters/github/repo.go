package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aretw0/issueflow/pkg/domain"
	"github.com/aretw0/issueflow/pkg/ports"
	gh "github.com/google/go-github/v68/github"
)

// Repo is a single GitHub repository. It is safe for concurrent use.
type Repo struct {
	client *Client
	owner  string
	name   string
	logger *slog.Logger
}

var _ ports.Repository = (*Repo)(nil)

// ListDirectory lists the entries directly under path.
func (r *Repo) ListDirectory(ctx context.Context, path string) ([]ports.DirEntry, error) {
	file, dir, _, err := r.client.api.Repositories.GetContents(ctx, r.owner, r.name, path, nil)
	if err != nil {
		return nil, mapError("list directory", err)
	}
	if file != nil {
		return nil, fmt.Errorf("list directory: %q is a file", path)
	}
	out := make([]ports.DirEntry, 0, len(dir))
	for _, item := range dir {
		out = append(out, ports.DirEntry{Path: item.GetPath(), Kind: item.GetType()})
	}
	return out, nil
}

// ReadFile returns the decoded content of path.
func (r *Repo) ReadFile(ctx context.Context, path string) (string, error) {
	file, _, _, err := r.client.api.Repositories.GetContents(ctx, r.owner, r.name, path, nil)
	if err != nil {
		return "", mapError("read file", err)
	}
	if file == nil {
		return "", fmt.Errorf("read file: %q is a directory: %w", path, domain.ErrFileNotFound)
	}
	content, err := file.GetContent()
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return content, nil
}

// SearchCode returns up to five paths of the repository matching query.
func (r *Repo) SearchCode(ctx context.Context, query string) ([]string, error) {
	q := fmt.Sprintf("%s repo:%s/%s", query, r.owner, r.name)
	res, _, err := r.client.api.Search.Code(ctx, q, &gh.SearchOptions{ListOptions: gh.ListOptions{PerPage: searchLimit}})
	if err != nil {
		r.logger.Warn("Code search failed", "query", query, "err", err)
		return nil, mapError("search code", err)
	}
	paths := make([]string, 0, len(res.CodeResults))
	for _, item := range res.CodeResults {
		paths = append(paths, item.GetPath())
		if len(paths) == searchLimit {
			break
		}
	}
	return paths, nil
}

// ListIssues returns up to twenty open issues, excluding pull requests.
func (r *Repo) ListIssues(ctx context.Context) ([]domain.Issue, error) {
	issues, _, err := r.client.api.Issues.ListByRepo(ctx, r.owner, r.name, &gh.IssueListByRepoOptions{
		State:       "open",
		ListOptions: gh.ListOptions{PerPage: issuesLimit},
	})
	if err != nil {
		return nil, mapError("list issues", err)
	}
	out := make([]domain.Issue, 0, len(issues))
	for _, is := range issues {
		if is.IsPullRequest() {
			continue
		}
		out = append(out, toIssue(is))
	}
	return out, nil
}

// GetIssue fetches a single issue.
func (r *Repo) GetIssue(ctx context.Context, number int) (domain.Issue, error) {
	is, _, err := r.client.api.Issues.Get(ctx, r.owner, r.name, number)
	if err != nil {
		var resp *gh.ErrorResponse
		if errors.As(err, &resp) && resp.Response != nil && resp.Response.StatusCode == http.StatusNotFound {
			return domain.Issue{}, fmt.Errorf("%w: #%d in %s/%s", domain.ErrIssueNotFound, number, r.owner, r.name)
		}
		return domain.Issue{}, mapError("get issue", err)
	}
	return toIssue(is), nil
}

func toIssue(is *gh.Issue) domain.Issue {
	return domain.Issue{
		Number: is.GetNumber(),
		Title:  is.GetTitle(),
		Body:   is.GetBody(),
		URL:    is.GetHTMLURL(),
	}
}

// PublishChange commits the files on a fresh branch off the default branch and opens a pull request.
func (r *Repo) PublishChange(ctx context.Context, req ports.ChangeRequest) (string, error) {
	api := r.client.api

	repo, _, err := api.Repositories.Get(ctx, r.owner, r.name)
	if err != nil {
		return "", mapError("get repository", err)
	}
	base := repo.GetDefaultBranch()
	branch := fmt.Sprintf("fix/issue-%d-%d", req.IssueNumber, r.client.now().UnixMilli())

	baseRef, _, err := api.Git.GetRef(ctx, r.owner, r.name, "heads/"+base)
	if err != nil {
		return "", mapError("get base ref", err)
	}
	baseSHA := baseRef.GetObject().GetSHA()

	if _, _, err := api.Git.CreateRef(ctx, r.owner, r.name, &gh.Reference{
		Ref:    gh.Ptr("refs/heads/" + branch),
		Object: &gh.GitObject{SHA: gh.Ptr(baseSHA)},
	}); err != nil {
		return "", mapError("create branch", err)
	}

	entries := make([]*gh.TreeEntry, 0, len(req.Files))
	for _, f := range req.Files {
		blob, _, err := api.Git.CreateBlob(ctx, r.owner, r.name, &gh.Blob{
			Content:  gh.Ptr(f.Content),
			Encoding: gh.Ptr("utf-8"),
		})
		if err != nil {
			return "", mapError("create blob", err)
		}
		entries = append(entries, &gh.TreeEntry{
			Path: gh.Ptr(f.Path),
			Mode: gh.Ptr("100644"),
			Type: gh.Ptr("blob"),
			SHA:  blob.SHA,
		})
	}

	tree, _, err := api.Git.CreateTree(ctx, r.owner, r.name, baseSHA, entries)
	if err != nil {
		return "", mapError("create tree", err)
	}

	commit, _, err := api.Git.CreateCommit(ctx, r.owner, r.name, &gh.Commit{
		Message: gh.Ptr(fmt.Sprintf("Fix for issue #%d: %s", req.IssueNumber, req.Title)),
		Tree:    &gh.Tree{SHA: tree.SHA},
		Parents: []*gh.Commit{{SHA: gh.Ptr(baseSHA)}},
	}, nil)
	if err != nil {
		return "", mapError("create commit", err)
	}

	if _, _, err := api.Git.UpdateRef(ctx, r.owner, r.name, &gh.Reference{
		Ref:    gh.Ptr("heads/" + branch),
		Object: &gh.GitObject{SHA: commit.SHA},
	}, false); err != nil {
		return "", mapError("update branch", err)
	}

	pr, _, err := api.PullRequests.Create(ctx, r.owner, r.name, &gh.NewPullRequest{
		Title: gh.Ptr("Fix: " + req.Title),
		Body:  gh.Ptr(fmt.Sprintf("Resolves #%d\n\n%s", req.IssueNumber, req.Body)),
		Head:  gh.Ptr(branch),
		Base:  gh.Ptr(base),
	})
	if err != nil {
		return "", mapError("create pull request", err)
	}

	r.logger.Info("Pull request created", "issue", req.IssueNumber, "branch", branch, "url", pr.GetHTMLURL())
	return pr.GetHTMLURL(), nil
}
