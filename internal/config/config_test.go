package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// clearEnv unsets variables Load reads, restoring them afterwards
func clearEnv(t *testing.T) {
	for _, k := range []string{"OPENAI_API_KEY", "OPENAI_BASE_URL", "DOCSYNC_STORE_TYPE", "DOCSYNC_LOG_LEVEL", "DOCSYNC_NAME"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.Parse.DocGapLines)
	assert.Equal(t, 60, cfg.Git.RenameThreshold)
	assert.Equal(t, "sqlite", cfg.Store.Type)
}

func TestLoadWithoutFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(t.TempDir(), "")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "docsync.yaml", `
name: demo
doc_style: numpy
source_paths: [src, lib]
languages: [python, javascript]
parse:
  doc_gap_lines: 0
  extensions:
    .pyw: python
llm:
  model: gpt-4o-mini
  timeout: 45s
  rate_limit:
    requests_per_second: 5
    burst: 10
store:
  type: memory
`)
	cfg, err := Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, "demo", cfg.Name)
	assert.Equal(t, "numpy", cfg.DocStyle)
	assert.Equal(t, []string{"src", "lib"}, cfg.SourcePaths)
	assert.Equal(t, 0, cfg.Parse.DocGapLines)
	assert.Equal(t, "python", cfg.Parse.Extensions[".pyw"])
	assert.Equal(t, Duration(45*time.Second), cfg.LLM.Timeout)
	assert.Equal(t, 5.0, cfg.LLM.RateLimit.RequestsPerSecond)
	assert.Equal(t, "memory", cfg.Store.Type)

	// Unset fields keep their defaults
	assert.Equal(t, 4, cfg.LLM.Concurrency)
	assert.Equal(t, 60, cfg.Git.RenameThreshold)
}

func TestLoadTOML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "docsync.toml", `
doc_style = "jsdoc"
source_paths = ["web"]

[git]
rename_threshold = 75

[llm]
timeout = "2m"
`)
	cfg, err := Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, "jsdoc", cfg.DocStyle)
	assert.Equal(t, 75, cfg.Git.RenameThreshold)
	assert.Equal(t, Duration(2*time.Minute), cfg.LLM.Timeout)
}

func TestLoadJSONExplicitPath(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "custom.json", `{"doc_style": "godoc", "log": {"level": "debug", "format": "json"}}`)

	cfg, err := Load(dir, path)
	require.NoError(t, err)
	assert.Equal(t, "godoc", cfg.DocStyle)
	assert.Equal(t, "debug", cfg.Log.Level)

	_, err = Load(dir, filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "docsync.yaml", "store:\n  type: sqlite\n")
	writeFile(t, dir, ".env", "OPENAI_API_KEY=sk-from-dotenv\nDOCSYNC_NAME=from-dotenv\n")
	t.Setenv("DOCSYNC_STORE_TYPE", "memory")
	t.Setenv("DOCSYNC_LOG_LEVEL", "warn")
	t.Setenv("DOCSYNC_NAME", "from-env")

	cfg, err := Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "from-env", cfg.Name, "real environment wins over .env")
	assert.Equal(t, "sk-from-dotenv", cfg.LLM.APIKey)
	assert.Equal(t, "sk-from-dotenv", cfg.Embedding.APIKey)
}

func TestEnvBadNumber(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(func(k string) string {
		if k == "DOCSYNC_LLM_CONCURRENCY" {
			return "many"
		}
		return ""
	})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"style", func(c *Config) { c.DocStyle = "fancy" }, "doc_style"},
		{"no paths", func(c *Config) { c.SourcePaths = nil }, "source_paths"},
		{"absolute path", func(c *Config) { c.SourcePaths = []string{"/etc"} }, "source_paths"},
		{"escaping path", func(c *Config) { c.SourcePaths = []string{"../other"} }, "source_paths"},
		{"language", func(c *Config) { c.Languages = []string{"cobol"} }, "languages"},
		{"threshold", func(c *Config) { c.Git.RenameThreshold = 101 }, "git.rename_threshold"},
		{"concurrency", func(c *Config) { c.LLM.Concurrency = 0 }, "llm.concurrency"},
		{"burst", func(c *Config) { c.LLM.RateLimit.Burst = 0 }, "llm.rate_limit.burst"},
		{"store", func(c *Config) { c.Store.Type = "chroma" }, "store.type"},
		{"postgres dsn", func(c *Config) { c.Store.Type = "postgres" }, "store.dsn"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.ErrorContains(t, err, tt.field)
		})
	}
}

func TestSaveAndReload(t *testing.T) {
	clearEnv(t)
	for _, name := range []string{"docsync.yaml", "docsync.toml", "docsync.json"} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			cfg := Default()
			cfg.Name = "saved"
			cfg.Languages = []string{"go"}
			cfg.LLM.APIKey = "secret"
			path := filepath.Join(dir, name)
			require.NoError(t, cfg.Save(path))

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.NotContains(t, string(data), "secret")

			loaded, err := Load(dir, "")
			require.NoError(t, err)
			assert.Equal(t, "saved", loaded.Name)
			assert.Equal(t, []string{"go"}, loaded.Languages)
			assert.Equal(t, cfg.LLM.Timeout, loaded.LLM.Timeout)
		})
	}

	assert.ErrorIs(t, Default().Save(filepath.Join(t.TempDir(), "docsync.ini")), ErrInvalidConfig)
}

func TestStorePath(t *testing.T) {
	cfg := Default()
	assert.Equal(t, filepath.Join("/repo", ".docsync", "index.db"), cfg.StorePath("/repo"))
	cfg.Store.Path = ":memory:"
	assert.Equal(t, ":memory:", cfg.StorePath("/repo"))
	cfg.Store.Path = "/abs/index.db"
	assert.Equal(t, "/abs/index.db", cfg.StorePath("/repo"))
}
