package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func TestLoad_MissingDefaultUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, StoreFile, cfg.Store.Driver)
	assert.Equal(t, 15, cfg.Workflow.MaxResearchLoops)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "issueflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
github:
  repository: acme/api
store:
  driver: sqlite
  dsn: /tmp/issueflow.db
  lock_ttl: 1m
workflow:
  max_research_loops: 4
log:
  level: debug
  format: json
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "acme/api", cfg.GitHub.Repository)
	assert.Equal(t, StoreSQLite, cfg.Store.Driver)
	assert.Equal(t, time.Minute, cfg.Store.LockTTL)
	assert.Equal(t, 4, cfg.Workflow.MaxResearchLoops)
	assert.Equal(t, 40, cfg.Workflow.MaxResearchTurns, "unset keys keep defaults")
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "issueflow.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server":{"addr":":9090"}}`), 0644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
}

func TestLoad_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "issueflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store: [oops"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.applyEnv(envOf(map[string]string{
		"GITHUB_TOKEN":                 "ghp_x",
		"API_KEY":                      "fallback",
		"ISSUEFLOW_STORE":              "postgres",
		"DATABASE_URL":                 "postgres://localhost/issueflow",
		"REDIS_ADDR":                   "localhost:6379",
		"ISSUEFLOW_MAX_RESEARCH_LOOPS": "3",
		"ISSUEFLOW_MAX_FEEDBACK_SIZE":  "512",
	})))
	assert.Equal(t, "ghp_x", cfg.GitHub.Token)
	assert.Equal(t, "fallback", cfg.Model.APIKey)
	assert.Equal(t, "postgres://localhost/issueflow", cfg.Store.DSN)
	assert.Equal(t, 3, cfg.Workflow.MaxResearchLoops)
	assert.Equal(t, 512, cfg.Workflow.MaxFeedbackSize)

	cfg = Default()
	require.NoError(t, cfg.applyEnv(envOf(map[string]string{
		"GEMINI_API_KEY":  "primary",
		"API_KEY":         "fallback",
		"ISSUEFLOW_STORE": "redis",
		"REDIS_ADDR":      "localhost:6379",
	})))
	assert.Equal(t, "primary", cfg.Model.APIKey)
	assert.Equal(t, "localhost:6379", cfg.Store.DSN)

	cfg = Default()
	assert.Error(t, cfg.applyEnv(envOf(map[string]string{"ISSUEFLOW_MAX_RESEARCH_LOOPS": "many"})))
	assert.Error(t, cfg.applyEnv(envOf(map[string]string{"ISSUEFLOW_MAX_FEEDBACK_SIZE": "big"})))
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Store.Driver = "etcd"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Store = Store{Driver: StoreRedis}
	assert.Error(t, cfg.Validate())

	cfg.Store.Driver = StorePostgres
	assert.NoError(t, cfg.Validate(), "postgres may take DATABASE_URL at open")

	cfg.Store.Driver = StoreMemory
	cfg.Workflow.MaxResearchLoops = -1
	assert.Error(t, cfg.Validate())

	cfg.Workflow.MaxResearchLoops = 0
	cfg.Workflow.MaxFeedbackSize = -1
	assert.Error(t, cfg.Validate())
}

func TestRequireCredentials(t *testing.T) {
	cfg := Default()
	err := cfg.RequireCredentials()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GITHUB_TOKEN")
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")

	cfg.GitHub.Token, cfg.Model.APIKey = "t", "k"
	assert.NoError(t, cfg.RequireCredentials())
}

func TestStoreKeys(t *testing.T) {
	active, fallback, err := Store{}.Keys()
	require.NoError(t, err)
	assert.Nil(t, active)
	assert.Nil(t, fallback)

	key := base64.StdEncoding.EncodeToString(make([]byte, 32))
	active, fallback, err = Store{EncryptionKey: key, FallbackKeys: []string{key}}.Keys()
	require.NoError(t, err)
	assert.Len(t, active, 32)
	assert.Len(t, fallback, 1)

	_, _, err = Store{EncryptionKey: base64.StdEncoding.EncodeToString([]byte("short"))}.Keys()
	assert.Error(t, err)

	cfg := Default()
	cfg.Store.EncryptionKey = "%%%"
	assert.Error(t, cfg.Validate())
}
