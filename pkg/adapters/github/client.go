// Package github implements the repository ports on the GitHub REST API.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aretw0/issueflow/internal/logging"
	"github.com/aretw0/issueflow/pkg/domain"
	"github.com/aretw0/issueflow/pkg/ports"
	gh "github.com/google/go-github/v68/github"
)

const (
	searchLimit = 5
	issuesLimit = 20
	reposLimit  = 50
)

// Client hands out repositories backed by one authenticated GitHub client.
type Client struct {
	api    *gh.Client
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the Client.
type Option func(*Client) error

// WithBaseURL points the client at a GitHub Enterprise or test server.
func WithBaseURL(raw string) Option {
	return func(c *Client) error {
		if !strings.HasSuffix(raw, "/") {
			raw += "/"
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid base url: %w", err)
		}
		c.api.BaseURL = u
		return nil
	}
}

// WithLogger configures a logger for the Client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// WithClock overrides the time source used to name fix branches.
func WithClock(now func() time.Time) Option {
	return func(c *Client) error {
		c.now = now
		return nil
	}
}

// New creates a Client. An empty token yields an anonymous client.
func New(token string, httpClient *http.Client, opts ...Option) (*Client, error) {
	api := gh.NewClient(httpClient)
	if token != "" {
		api = api.WithAuthToken(token)
	}
	c := &Client{api: api, logger: logging.NewNop(), now: time.Now}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Repository returns the repository owner/name.
func (c *Client) Repository(owner, name string) (ports.Repository, error) {
	if owner == "" || name == "" {
		return nil, fmt.Errorf("%w: owner and repository are required", domain.ErrInvalidKey)
	}
	return &Repo{
		client: c,
		owner:  owner,
		name:   name,
		logger: c.logger.With("repo", owner+"/"+name),
	}, nil
}

// ListRepositories lists the repositories of the authenticated user, most recently updated first.
func (c *Client) ListRepositories(ctx context.Context) ([]ports.RepositoryInfo, error) {
	repos, _, err := c.api.Repositories.ListByAuthenticatedUser(ctx, &gh.RepositoryListByAuthenticatedUserOptions{
		Sort:        "updated",
		ListOptions: gh.ListOptions{PerPage: reposLimit},
	})
	if err != nil {
		return nil, mapError("list repositories", err)
	}
	out := make([]ports.RepositoryInfo, 0, len(repos))
	for _, r := range repos {
		out = append(out, ports.RepositoryInfo{
			Owner:       r.GetOwner().GetLogin(),
			Name:        r.GetName(),
			Description: r.GetDescription(),
			URL:         r.GetHTMLURL(),
		})
	}
	return out, nil
}

// mapError translates GitHub failures into domain errors.
func mapError(op string, err error) error {
	var rle *gh.RateLimitError
	var abuse *gh.AbuseRateLimitError
	if errors.As(err, &rle) || errors.As(err, &abuse) {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrRateLimited, err)
	}

	var resp *gh.ErrorResponse
	if errors.As(err, &resp) && resp.Response != nil {
		switch resp.Response.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w", op, domain.ErrFileNotFound)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%s: %w: %v", op, domain.ErrRateLimited, err)
		case http.StatusForbidden:
			return fmt.Errorf("%s: %w: %v", op, domain.ErrPermissionDenied, err)
		}
	}
	if strings.Contains(err.Error(), "Resource not accessible") {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrPermissionDenied, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
