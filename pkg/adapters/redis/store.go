package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/issueflow/pkg/domain"
	"github.com/aretw0/issueflow/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

const defaultPrefix = "issueflow:"

// Store implements ports.SnapshotStore using Redis.
// Each workflow is a JSON string; a sorted set indexes them by update time.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for workflow snapshots.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: defaultPrefix,
		ttl:    0, // No expiration by default
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Client returns the underlying client, e.g. to share it with a Locker.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(id string) string {
	return s.prefix + "workflow:" + id
}

func (s *Store) indexKey() string {
	return s.prefix + "workflows"
}

// Save persists the state and moves it to the front of the index.
func (s *Store) Save(ctx context.Context, state *domain.WorkflowState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	id := state.Key.ID()

	pipe := s.client.TxPipeline()
	// 0 means no expiration.
	pipe.Set(ctx, s.key(id), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  float64(state.UpdatedAt.UnixMilli()),
		Member: id,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves the state from Redis.
func (s *Store) Load(ctx context.Context, key domain.WorkflowKey) (*domain.WorkflowState, error) {
	val, err := s.client.Get(ctx, s.key(key.ID())).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrWorkflowNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var state domain.WorkflowState
	if err := json.Unmarshal(val, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &state, nil
}

// Delete removes the workflow and its index entry.
func (s *Store) Delete(ctx context.Context, key domain.WorkflowKey) error {
	id := key.ID()
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(id))
	pipe.ZRem(ctx, s.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}

// List walks the index newest first. Index entries whose snapshot has
// expired are pruned lazily.
func (s *Store) List(ctx context.Context, opts ports.ListOptions) ([]domain.Snapshot, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	if len(ids) == 0 {
		return []domain.Snapshot{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load workflows: %w", err)
	}

	snaps := make([]domain.Snapshot, 0, len(ids))
	var expired []any
	for i, val := range vals {
		raw, ok := val.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		var state domain.WorkflowState
		if err := json.Unmarshal([]byte(raw), &state); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", ids[i], err)
		}
		snaps = append(snaps, state.Snapshot())
	}

	if len(expired) > 0 {
		if err := s.client.ZRem(ctx, s.indexKey(), expired...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune expired workflows: %w", err)
		}
	}

	return ports.Collect(snaps, opts), nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
