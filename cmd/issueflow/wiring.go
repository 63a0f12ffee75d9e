package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aretw0/issueflow"
	"github.com/aretw0/issueflow/internal/config"
	"github.com/aretw0/issueflow/pkg/adapters/file"
	"github.com/aretw0/issueflow/pkg/adapters/gemini"
	"github.com/aretw0/issueflow/pkg/adapters/github"
	"github.com/aretw0/issueflow/pkg/adapters/memory"
	"github.com/aretw0/issueflow/pkg/adapters/postgres"
	"github.com/aretw0/issueflow/pkg/adapters/redis"
	"github.com/aretw0/issueflow/pkg/adapters/sqlite"
	"github.com/aretw0/issueflow/pkg/domain"
	"github.com/aretw0/issueflow/pkg/persistence/middleware"
	"github.com/aretw0/issueflow/pkg/ports"
	"github.com/aretw0/issueflow/pkg/service"
	"github.com/aretw0/issueflow/pkg/session"
)

// openSessions opens the configured store. The returned func releases its connections.
func openSessions(ctx context.Context, c *config.Config) (*session.Manager, func(), error) {
	opts := []session.Option{session.WithLogger(logger)}
	if c.Store.LockTTL > 0 {
		opts = append(opts, session.WithLockTTL(c.Store.LockTTL))
	}

	var (
		store   ports.SnapshotStore
		closeFn = func() {}
	)
	switch c.Store.Driver {
	case config.StoreMemory:
		store = memory.NewStore()
	case config.StoreFile:
		store = file.New(c.Store.DSN)
	case config.StoreSQLite:
		s, err := sqlite.Open(c.Store.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		store, closeFn = s, func() { _ = s.Close() }
	case config.StorePostgres:
		s, err := postgres.Open(ctx, c.Store.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		store, closeFn = s, func() { _ = s.Close() }
	case config.StoreRedis:
		var ropts []redis.Option
		if c.Store.TTL > 0 {
			ropts = append(ropts, redis.WithTTL(c.Store.TTL))
		}
		s := redis.New(c.Store.DSN, c.Store.RedisPassword, c.Store.RedisDB, ropts...)
		if err := s.Client().Ping(ctx).Err(); err != nil {
			_ = s.Close()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		// Workflows shared through Redis may be driven by several processes.
		opts = append(opts, session.WithLocker(redis.NewLocker(s.Client(), "issueflow:lock:")))
		store, closeFn = s, func() { _ = s.Close() }
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	mws := []middleware.Middleware{middleware.NewRedactMiddleware(middleware.DefaultSecretPatterns)}
	active, fallback, err := c.Store.Keys()
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	if active != nil {
		enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: active, FallbackKeys: fallback})
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		mws = append(mws, enc)
	}
	store = middleware.Chain(store, mws...)

	logger.Debug("store opened", "driver", c.Store.Driver, "encrypted", active != nil)
	return session.NewManager(store, opts...), closeFn, nil
}

// newService wires GitHub, Gemini and the store into a workflow service.
func newService(ctx context.Context, c *config.Config, opts ...service.Option) (*service.Service, func(), error) {
	if err := c.RequireCredentials(); err != nil {
		return nil, nil, err
	}

	var ghOpts []github.Option
	ghOpts = append(ghOpts, github.WithLogger(logger))
	if c.GitHub.BaseURL != "" {
		ghOpts = append(ghOpts, github.WithBaseURL(c.GitHub.BaseURL))
	}
	gh, err := github.New(c.GitHub.Token, nil, ghOpts...)
	if err != nil {
		return nil, nil, err
	}

	model, err := gemini.New(ctx, c.Model.APIKey, gemini.WithModel(c.Model.Name), gemini.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}

	sessions, closeStore, err := openSessions(ctx, c)
	if err != nil {
		return nil, nil, err
	}

	wfOpts := []issueflow.Option{}
	if c.Workflow.MaxResearchLoops > 0 {
		wfOpts = append(wfOpts, issueflow.WithMaxResearchLoops(c.Workflow.MaxResearchLoops))
	}
	if c.Workflow.MaxResearchTurns > 0 {
		wfOpts = append(wfOpts, issueflow.WithMaxResearchTurns(c.Workflow.MaxResearchTurns))
	}
	all := append([]service.Option{
		service.WithLogger(logger),
		service.WithWorkflowOptions(wfOpts...),
		service.WithMaxFeedbackSize(c.Workflow.MaxFeedbackSize),
	}, opts...)

	svc := service.New(gh, model, sessions, all...)
	return svc, func() {
		svc.Close()
		closeStore()
	}, nil
}

// parseKey accepts owner/repo#n, or a bare issue number in the configured repository.
func parseKey(arg string) (domain.WorkflowKey, error) {
	if strings.Contains(arg, "#") {
		return domain.ParseKey(arg)
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		return domain.WorkflowKey{}, fmt.Errorf("%w: %q is not owner/repo#issue or an issue number", domain.ErrInvalidKey, arg)
	}
	if cfg == nil || cfg.GitHub.Repository == "" {
		return domain.WorkflowKey{}, fmt.Errorf("%w: issue %d needs a repository (set GITHUB_REPOSITORY)", domain.ErrInvalidKey, n)
	}
	owner, repo, err := domain.ParseRepository(cfg.GitHub.Repository)
	if err != nil {
		return domain.WorkflowKey{}, err
	}
	key := domain.WorkflowKey{Owner: owner, Repo: repo, Issue: n}
	return key, key.Validate()
}
