// Package config loads issueflow settings from a YAML or JSON file and the environment.
package config

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no --config flag is given. A missing default file is not an error.
const DefaultPath = "issueflow.yaml"

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreRedis    = "redis"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

type GitHub struct {
	Token string `yaml:"token" json:"token"`
	// BaseURL points at a GitHub Enterprise API; empty means api.github.com.
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Repository is the default owner/name for commands that take an issue number only.
	Repository string `yaml:"repository" json:"repository"`
}

type Model struct {
	APIKey string `yaml:"api_key" json:"api_key"`
	Name   string `yaml:"name" json:"name"`
}

type Store struct {
	Driver string `yaml:"driver" json:"driver"`
	// DSN is the driver's location: a directory for file, a path for sqlite,
	// an address for redis, a connection URL for postgres.
	DSN           string        `yaml:"dsn" json:"dsn"`
	RedisPassword string        `yaml:"redis_password" json:"redis_password"`
	RedisDB       int           `yaml:"redis_db" json:"redis_db"`
	TTL           time.Duration `yaml:"ttl" json:"ttl"`
	LockTTL       time.Duration `yaml:"lock_ttl" json:"lock_ttl"`
	// EncryptionKey is a base64 AES-256 key. When set, repository content is encrypted at rest.
	EncryptionKey string `yaml:"encryption_key" json:"encryption_key"`
	// FallbackKeys decrypt content written under earlier keys.
	FallbackKeys []string `yaml:"fallback_keys" json:"fallback_keys"`
}

type Workflow struct {
	MaxResearchLoops int `yaml:"max_research_loops" json:"max_research_loops"`
	MaxResearchTurns int `yaml:"max_research_turns" json:"max_research_turns"`
	// MaxFeedbackSize bounds review feedback in bytes.
	MaxFeedbackSize int `yaml:"max_feedback_size" json:"max_feedback_size"`
}

type Server struct {
	Addr string `yaml:"addr" json:"addr"`
	// Metrics exposes /metrics next to the API.
	Metrics bool `yaml:"metrics" json:"metrics"`
}

type Log struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Config is the complete application configuration.
type Config struct {
	GitHub   GitHub   `yaml:"github" json:"github"`
	Model    Model    `yaml:"model" json:"model"`
	Store    Store    `yaml:"store" json:"store"`
	Workflow Workflow `yaml:"workflow" json:"workflow"`
	Server   Server   `yaml:"server" json:"server"`
	Log      Log      `yaml:"log" json:"log"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Model:    Model{Name: "gemini-2.5-flash"},
		Store:    Store{Driver: StoreFile, DSN: ".issueflow/workflows", LockTTL: 30 * time.Second},
		Workflow: Workflow{MaxResearchLoops: 15, MaxResearchTurns: 40, MaxFeedbackSize: 4096},
		Server:   Server{Addr: ":8080", Metrics: true},
		Log:      Log{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults and applies the environment on top.
// The default path may be absent; an explicitly named file must exist.
func Load(path string) (*Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, cfg); err != nil {
			return nil, err
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays environment variables. lookup is os.LookupEnv outside tests.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	set := func(dst *string, names ...string) {
		for _, name := range names {
			if v, ok := lookup(name); ok && v != "" {
				*dst = v
				return
			}
		}
	}

	set(&c.GitHub.Token, "GITHUB_TOKEN")
	set(&c.GitHub.BaseURL, "GITHUB_API_URL")
	set(&c.GitHub.Repository, "GITHUB_REPOSITORY")
	set(&c.Model.APIKey, "GEMINI_API_KEY", "API_KEY")
	set(&c.Model.Name, "ISSUEFLOW_MODEL")
	set(&c.Store.Driver, "ISSUEFLOW_STORE")
	set(&c.Store.EncryptionKey, "ISSUEFLOW_ENCRYPTION_KEY")
	set(&c.Server.Addr, "ISSUEFLOW_ADDR")
	set(&c.Log.Level, "ISSUEFLOW_LOG_LEVEL")
	set(&c.Log.Format, "ISSUEFLOW_LOG_FORMAT")

	// Driver-specific locations apply only to their driver.
	switch c.Store.Driver {
	case StoreRedis:
		set(&c.Store.DSN, "ISSUEFLOW_STORE_DSN", "REDIS_ADDR")
	case StorePostgres:
		set(&c.Store.DSN, "ISSUEFLOW_STORE_DSN", "DATABASE_URL")
	default:
		set(&c.Store.DSN, "ISSUEFLOW_STORE_DSN")
	}

	if v, ok := lookup("ISSUEFLOW_MAX_RESEARCH_LOOPS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ISSUEFLOW_MAX_RESEARCH_LOOPS %q: %w", v, err)
		}
		c.Workflow.MaxResearchLoops = n
	}
	if v, ok := lookup("ISSUEFLOW_MAX_FEEDBACK_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ISSUEFLOW_MAX_FEEDBACK_SIZE %q: %w", v, err)
		}
		c.Workflow.MaxFeedbackSize = n
	}
	return nil
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreMemory:
	case StoreFile, StoreSQLite, StoreRedis, StorePostgres:
		if c.Store.DSN == "" && c.Store.Driver != StorePostgres {
			return fmt.Errorf("store %q requires a dsn", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Workflow.MaxResearchLoops < 0 || c.Workflow.MaxResearchTurns < 0 {
		return fmt.Errorf("research limits must not be negative")
	}
	if c.Workflow.MaxFeedbackSize < 0 {
		return fmt.Errorf("feedback limit must not be negative")
	}
	if _, _, err := c.Store.Keys(); err != nil {
		return err
	}
	if c.Store.TTL < 0 {
		return fmt.Errorf("store ttl must not be negative")
	}
	return nil
}

// RequireCredentials checks what running workflows needs on top of Validate.
func (c *Config) RequireCredentials() error {
	var missing []string
	if c.GitHub.Token == "" {
		missing = append(missing, "GITHUB_TOKEN")
	}
	if c.Model.APIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Keys decodes the encryption keys. A nil active key means encryption is off.
func (s Store) Keys() (active []byte, fallback [][]byte, err error) {
	if s.EncryptionKey == "" {
		return nil, nil, nil
	}
	decode := func(k string) ([]byte, error) {
		b, err := base64.StdEncoding.DecodeString(k)
		if err != nil {
			return nil, fmt.Errorf("invalid encryption key: %w", err)
		}
		if len(b) != 32 {
			return nil, fmt.Errorf("encryption key must decode to 32 bytes, got %d", len(b))
		}
		return b, nil
	}
	if active, err = decode(s.EncryptionKey); err != nil {
		return nil, nil, err
	}
	for _, k := range s.FallbackKeys {
		b, err := decode(k)
		if err != nil {
			return nil, nil, err
		}
		fallback = append(fallback, b)
	}
	return active, fallback, nil
}
