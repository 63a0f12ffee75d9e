package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/issueflow/pkg/domain"
	"github.com/aretw0/issueflow/pkg/ports"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements ports.SnapshotStore on PostgreSQL.
type Store struct {
	Pool *pgxpool.Pool
}

// Open opens a PostgreSQL connection pool and runs migrations. dsn may be empty to use DATABASE_URL env.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		return nil, errors.New("postgres DSN or DATABASE_URL required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 20
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	s := &Store{Pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if s == nil || s.Pool == nil {
		return nil
	}
	s.Pool.Close()
	return nil
}

// Migrate runs pending migrations (only those not already in schema_migrations).
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.Pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at BIGINT NOT NULL
)`); err != nil {
		return err
	}

	applied := make(map[int]bool)
	rows, err := s.Pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	rows.Close()

	type mig struct {
		version   int
		name, sql string
	}
	var migs []mig
	files, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return err
	}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".sql") {
			continue
		}
		v, err := strconv.Atoi(strings.SplitN(strings.TrimSuffix(f.Name(), ".sql"), "_", 2)[0])
		if err != nil || applied[v] {
			continue
		}
		body, err := migrationsFS.ReadFile("migrations/" + f.Name())
		if err != nil {
			return err
		}
		migs = append(migs, mig{v, f.Name(), string(body)})
	}
	sort.Slice(migs, func(i, j int) bool { return migs[i].version < migs[j].version })

	for _, m := range migs {
		if _, err := s.Pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.name, err)
		}
		if _, err := s.Pool.Exec(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES($1, $2) ON CONFLICT (version) DO NOTHING`, m.version, time.Now().Unix()); err != nil {
			return err
		}
	}
	return nil
}

// Save upserts the snapshot.
func (s *Store) Save(ctx context.Context, state *domain.WorkflowState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	snap := state.Snapshot()
	_, err = s.Pool.Exec(ctx, `
INSERT INTO workflows(id, owner, repo, issue, status, issue_title, published_url, state, updated_at)
VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  issue_title = EXCLUDED.issue_title,
  published_url = EXCLUDED.published_url,
  state = EXCLUDED.state,
  updated_at = EXCLUDED.updated_at`,
		state.Key.ID(), state.Key.Owner, state.Key.Repo, state.Key.Issue,
		string(snap.Status), snap.IssueTitle, snap.Published, data, state.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}
	return nil
}

// Load retrieves the snapshot for key.
func (s *Store) Load(ctx context.Context, key domain.WorkflowKey) (*domain.WorkflowState, error) {
	var raw []byte
	err := s.Pool.QueryRow(ctx, `SELECT state FROM workflows WHERE id = $1`, key.ID()).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrWorkflowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow: %w", err)
	}
	var state domain.WorkflowState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &state, nil
}

// Delete removes the snapshot for key.
func (s *Store) Delete(ctx context.Context, key domain.WorkflowKey) error {
	if _, err := s.Pool.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, key.ID()); err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	return nil
}

// List returns snapshots newest first, filtered in SQL.
func (s *Store) List(ctx context.Context, opts ports.ListOptions) ([]domain.Snapshot, error) {
	q := `SELECT owner, repo, issue, status, issue_title, published_url, updated_at FROM workflows WHERE TRUE`
	var args []any
	if opts.Owner != "" {
		args = append(args, opts.Owner)
		q += fmt.Sprintf(` AND owner = $%d`, len(args))
	}
	if opts.Repo != "" {
		args = append(args, opts.Repo)
		q += fmt.Sprintf(` AND repo = $%d`, len(args))
	}
	q += ` ORDER BY updated_at DESC`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		q += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	out := []domain.Snapshot{}
	for rows.Next() {
		var snap domain.Snapshot
		var status string
		if err := rows.Scan(&snap.Key.Owner, &snap.Key.Repo, &snap.Key.Issue, &status,
			&snap.IssueTitle, &snap.Published, &snap.UpdatedAt); err != nil {
			return nil, err
		}
		snap.Status = domain.Status(status)
		out = append(out, snap)
	}
	return out, rows.Err()
}
