package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/issueflow/pkg/domain"
	"github.com/aretw0/issueflow/pkg/ports"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements ports.SnapshotStore on a SQLite database.
type Store struct {
	DB *sql.DB
}

// Open opens the SQLite database at path, creating it if needed, and runs migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{DB: db}
	if err := s.initPragmas(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

func (s *Store) initPragmas(ctx context.Context) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, q := range stmts {
		if _, err := s.DB.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

type migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrate applies the embedded migrations not yet recorded in schema_migrations.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store not initialized")
	}
	if _, err := s.DB.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at INTEGER NOT NULL
);`); err != nil {
		return err
	}
	applied, err := s.appliedVersions(ctx)
	if err != nil {
		return err
	}
	files, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return err
	}
	var migs []migration
	for _, f := range files {
		name := f.Name()
		if f.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		v, err := parseMigrationVersion(name)
		if err != nil {
			return err
		}
		body, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return err
		}
		migs = append(migs, migration{Version: v, Name: name, SQL: string(body)})
	}
	sort.Slice(migs, func(i, j int) bool { return migs[i].Version < migs[j].Version })
	for _, m := range migs {
		if applied[m.Version] {
			continue
		}
		if err := s.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.Name, err)
		}
	}
	return nil
}

func (s *Store) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out[v] = true
	}
	return out, rows.Err()
}

func (s *Store) applyMigration(ctx context.Context, m migration) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES(?, ?)`, m.Version, time.Now().Unix()); err != nil {
		return err
	}
	return tx.Commit()
}

func parseMigrationVersion(filename string) (int, error) {
	base := strings.TrimSuffix(filename, ".sql")
	v, err := strconv.Atoi(strings.SplitN(base, "_", 2)[0])
	if err != nil {
		return 0, fmt.Errorf("invalid migration version in %s", filename)
	}
	return v, nil
}

// Save upserts the snapshot.
func (s *Store) Save(ctx context.Context, state *domain.WorkflowState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	snap := state.Snapshot()
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO workflows(id, owner, repo, issue, status, issue_title, published_url, state, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  status = excluded.status,
  issue_title = excluded.issue_title,
  published_url = excluded.published_url,
  state = excluded.state,
  updated_at = excluded.updated_at`,
		state.Key.ID(), state.Key.Owner, state.Key.Repo, state.Key.Issue,
		string(snap.Status), snap.IssueTitle, snap.Published, string(data), state.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}
	return nil
}

// Load retrieves the snapshot for key.
func (s *Store) Load(ctx context.Context, key domain.WorkflowKey) (*domain.WorkflowState, error) {
	var raw string
	err := s.DB.QueryRowContext(ctx, `SELECT state FROM workflows WHERE id = ?`, key.ID()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrWorkflowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow: %w", err)
	}
	var state domain.WorkflowState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &state, nil
}

// Delete removes the snapshot for key.
func (s *Store) Delete(ctx context.Context, key domain.WorkflowKey) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, key.ID()); err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	return nil
}

// List returns snapshots newest first, filtered in SQL.
func (s *Store) List(ctx context.Context, opts ports.ListOptions) ([]domain.Snapshot, error) {
	q := `SELECT owner, repo, issue, status, issue_title, published_url, updated_at FROM workflows WHERE 1=1`
	var args []any
	if opts.Owner != "" {
		q += ` AND owner = ?`
		args = append(args, opts.Owner)
	}
	if opts.Repo != "" {
		q += ` AND repo = ?`
		args = append(args, opts.Repo)
	}
	q += ` ORDER BY updated_at DESC`
	if opts.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []domain.Snapshot{}
	for rows.Next() {
		var snap domain.Snapshot
		var status string
		var updated int64
		if err := rows.Scan(&snap.Key.Owner, &snap.Key.Repo, &snap.Key.Issue, &status,
			&snap.IssueTitle, &snap.Published, &updated); err != nil {
			return nil, err
		}
		snap.Status = domain.Status(status)
		snap.UpdatedAt = time.Unix(0, updated).UTC()
		out = append(out, snap)
	}
	return out, rows.Err()
}
