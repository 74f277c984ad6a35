// Package config loads docsync settings from defaults, a config file, a .env
// file and the environment, in that order.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/dshills/docsync/internal/changes"
	"github.com/dshills/docsync/internal/generator"
	"github.com/dshills/docsync/internal/logger"
	"github.com/dshills/docsync/internal/parser"
	"github.com/dshills/docsync/internal/storage"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid config")

// FileNames are the config files looked up in the repository root, in order
var FileNames = []string{"docsync.yaml", "docsync.yml", "docsync.toml", "docsync.json"}

// EnvPrefix prefixes every environment override
const EnvPrefix = "DOCSYNC_"

// StateDir holds run state and the default SQLite index, relative to the
// repository root
const StateDir = ".docsync"

// Duration is a time.Duration written as a Go duration string ("30s") in
// every file format
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config is the full docsync configuration
type Config struct {
	Name        string   `yaml:"name,omitempty" toml:"name,omitempty" json:"name,omitempty"`
	DocStyle    string   `yaml:"doc_style" toml:"doc_style" json:"doc_style"`
	SourcePaths []string `yaml:"source_paths" toml:"source_paths" json:"source_paths"`
	Languages   []string `yaml:"languages,omitempty" toml:"languages,omitempty" json:"languages,omitempty"`

	Parse     ParseConfig     `yaml:"parse" toml:"parse" json:"parse"`
	Git       GitConfig       `yaml:"git" toml:"git" json:"git"`
	LLM       LLMConfig       `yaml:"llm" toml:"llm" json:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding" toml:"embedding" json:"embedding"`
	Store     StoreConfig     `yaml:"store" toml:"store" json:"store"`
	Log       LogConfig       `yaml:"log" toml:"log" json:"log"`
}

// ParseConfig controls file discovery and parsing
type ParseConfig struct {
	Workers     int               `yaml:"workers" toml:"workers" json:"workers"` // 0 means one per CPU
	DocGapLines int               `yaml:"doc_gap_lines" toml:"doc_gap_lines" json:"doc_gap_lines"`
	Ignore      []string          `yaml:"ignore,omitempty" toml:"ignore,omitempty" json:"ignore,omitempty"`
	Extensions  map[string]string `yaml:"extensions,omitempty" toml:"extensions,omitempty" json:"extensions,omitempty"`
}

// GitConfig controls change detection
type GitConfig struct {
	RenameThreshold int `yaml:"rename_threshold" toml:"rename_threshold" json:"rename_threshold"`
}

// RateLimitConfig is a token bucket for generator calls
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" toml:"burst" json:"burst"`
}

// LLMConfig configures documentation generation
type LLMConfig struct {
	Provider      string          `yaml:"provider,omitempty" toml:"provider,omitempty" json:"provider,omitempty"`
	Model         string          `yaml:"model,omitempty" toml:"model,omitempty" json:"model,omitempty"`
	BaseURL       string          `yaml:"base_url,omitempty" toml:"base_url,omitempty" json:"base_url,omitempty"`
	MaxTokens     int             `yaml:"max_tokens" toml:"max_tokens" json:"max_tokens"`
	Temperature   float64         `yaml:"temperature" toml:"temperature" json:"temperature"`
	Timeout       Duration        `yaml:"timeout" toml:"timeout" json:"timeout"`
	Concurrency   int             `yaml:"concurrency" toml:"concurrency" json:"concurrency"`
	RateLimit     RateLimitConfig `yaml:"rate_limit" toml:"rate_limit" json:"rate_limit"`
	ContextTokens int             `yaml:"context_tokens" toml:"context_tokens" json:"context_tokens"`

	// APIKey only comes from the environment
	APIKey string `yaml:"-" toml:"-" json:"-"`
}

// EmbeddingConfig configures the embedder
type EmbeddingConfig struct {
	Provider   string `yaml:"provider,omitempty" toml:"provider,omitempty" json:"provider,omitempty"`
	Model      string `yaml:"model,omitempty" toml:"model,omitempty" json:"model,omitempty"`
	BaseURL    string `yaml:"base_url,omitempty" toml:"base_url,omitempty" json:"base_url,omitempty"`
	Dimensions int    `yaml:"dimensions,omitempty" toml:"dimensions,omitempty" json:"dimensions,omitempty"`
	CacheSize  int    `yaml:"cache_size" toml:"cache_size" json:"cache_size"`
	MaxTokens  int    `yaml:"max_tokens" toml:"max_tokens" json:"max_tokens"` // record text budget

	APIKey string `yaml:"-" toml:"-" json:"-"`
}

// StoreConfig selects the vector store
type StoreConfig struct {
	Type  string `yaml:"type" toml:"type" json:"type"`
	Path  string `yaml:"path,omitempty" toml:"path,omitempty" json:"path,omitempty"`
	DSN   string `yaml:"dsn,omitempty" toml:"dsn,omitempty" json:"dsn,omitempty"`
	Table string `yaml:"table,omitempty" toml:"table,omitempty" json:"table,omitempty"`
}

// LogConfig configures logging
type LogConfig struct {
	Level  string `yaml:"level" toml:"level" json:"level"`
	Format string `yaml:"format" toml:"format" json:"format"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		DocStyle:    generator.StyleGoogle,
		SourcePaths: []string{"."},
		Parse: ParseConfig{
			DocGapLines: parser.DefaultDocGapLines,
		},
		Git: GitConfig{RenameThreshold: changes.DefaultRenameThreshold},
		LLM: LLMConfig{
			MaxTokens:     512,
			Temperature:   0.2,
			Timeout:       Duration(60 * time.Second),
			Concurrency:   4,
			RateLimit:     RateLimitConfig{RequestsPerSecond: 2, Burst: 4},
			ContextTokens: 1500,
		},
		Embedding: EmbeddingConfig{
			CacheSize: 10000,
			MaxTokens: 8000,
		},
		Store: StoreConfig{
			Type: storage.TypeSQLite,
			Path: filepath.Join(StateDir, "index.db"),
		},
		Log: LogConfig{Level: "info", Format: logger.FormatText},
	}
}

// Load builds the configuration for the repository at root. An explicit
// path must exist; otherwise the first of FileNames found in root is used.
func Load(root, path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, name := range FileNames {
			candidate := filepath.Join(root, name)
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(filepath.Join(root, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	case ".toml":
		err = toml.Unmarshal(data, c)
	case ".json":
		err = json.Unmarshal(data, c)
	default:
		return fmt.Errorf("%w: unsupported config format %q", ErrInvalidConfig, filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides fields from DOCSYNC_* variables and the OpenAI key
func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(name string, dst *string) {
		if v := getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v := getenv(EnvPrefix + name)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s: %v", ErrInvalidConfig, EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}

	str("NAME", &c.Name)
	str("DOC_STYLE", &c.DocStyle)
	if v := getenv(EnvPrefix + "SOURCE_PATHS"); v != "" {
		c.SourcePaths = splitList(v)
	}
	if v := getenv(EnvPrefix + "LANGUAGES"); v != "" {
		c.Languages = splitList(v)
	}
	str("LLM_PROVIDER", &c.LLM.Provider)
	str("LLM_MODEL", &c.LLM.Model)
	str("EMBEDDING_PROVIDER", &c.Embedding.Provider)
	str("EMBEDDING_MODEL", &c.Embedding.Model)
	str("STORE_TYPE", &c.Store.Type)
	str("STORE_PATH", &c.Store.Path)
	str("STORE_DSN", &c.Store.DSN)
	str("STORE_TABLE", &c.Store.Table)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	for name, dst := range map[string]*int{
		"PARSE_WORKERS":        &c.Parse.Workers,
		"GIT_RENAME_THRESHOLD": &c.Git.RenameThreshold,
		"LLM_CONCURRENCY":      &c.LLM.Concurrency,
		"EMBEDDING_DIMENSIONS": &c.Embedding.Dimensions,
	} {
		if err := num(name, dst); err != nil {
			return err
		}
	}

	if v := getenv(EnvPrefix + "LLM_TIMEOUT"); v != "" {
		if err := c.LLM.Timeout.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%w: %sLLM_TIMEOUT: %v", ErrInvalidConfig, EnvPrefix, err)
		}
	}

	if v := getenv("OPENAI_API_KEY"); v != "" {
		c.LLM.APIKey = v
		c.Embedding.APIKey = v
	}
	if v := getenv("OPENAI_BASE_URL"); v != "" {
		if c.LLM.BaseURL == "" {
			c.LLM.BaseURL = v
		}
		if c.Embedding.BaseURL == "" {
			c.Embedding.BaseURL = v
		}
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func invalid(field, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, field, fmt.Sprintf(format, args...))
}

// Validate checks field values
func (c *Config) Validate() error {
	if !contains(generator.Styles, c.DocStyle) {
		return invalid("doc_style", "must be one of %s, got %q", strings.Join(generator.Styles, ", "), c.DocStyle)
	}
	if len(c.SourcePaths) == 0 {
		return invalid("source_paths", "at least one path is required")
	}
	for _, p := range c.SourcePaths {
		if filepath.IsAbs(p) || strings.HasPrefix(filepath.Clean(p), "..") {
			return invalid("source_paths", "%q must be relative to the repository", p)
		}
	}
	reg := parser.NewRegistry(parser.DefaultOptions())
	for _, l := range c.Languages {
		if _, ok := reg.Lookup(strings.ToLower(l)); !ok {
			return invalid("languages", "unsupported language %q", l)
		}
	}
	if c.Parse.Workers < 0 {
		return invalid("parse.workers", "must not be negative")
	}
	if c.Git.RenameThreshold < 0 || c.Git.RenameThreshold > 100 {
		return invalid("git.rename_threshold", "must be between 0 and 100, got %d", c.Git.RenameThreshold)
	}
	if c.LLM.Concurrency <= 0 {
		return invalid("llm.concurrency", "must be positive")
	}
	if c.LLM.Timeout <= 0 {
		return invalid("llm.timeout", "must be positive")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return invalid("llm.temperature", "must be between 0 and 2")
	}
	if c.LLM.RateLimit.RequestsPerSecond > 0 && c.LLM.RateLimit.Burst <= 0 {
		return invalid("llm.rate_limit.burst", "must be positive when a rate is set")
	}
	if c.Embedding.Dimensions < 0 {
		return invalid("embedding.dimensions", "must not be negative")
	}
	switch strings.ToLower(c.Store.Type) {
	case storage.TypeSQLite, storage.TypeMemory:
	case storage.TypePostgres:
		if c.Store.DSN == "" {
			return invalid("store.dsn", "required for the postgres store")
		}
	default:
		return invalid("store.type", "unsupported store %q", c.Store.Type)
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "%v", err)
	}
	if f := strings.ToLower(c.Log.Format); f != logger.FormatJSON && f != logger.FormatText {
		return invalid("log.format", "must be json or text, got %q", c.Log.Format)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Save writes the configuration in the format given by the file extension.
// API keys are never written.
func (c *Config) Save(path string) error {
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	case ".toml":
		data, err = toml.Marshal(c)
	case ".json":
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	default:
		return fmt.Errorf("%w: unsupported config format %q", ErrInvalidConfig, filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// StorePath resolves the SQLite path against the repository root
func (c *Config) StorePath(root string) string {
	if c.Store.Path == "" || c.Store.Path == ":memory:" || filepath.IsAbs(c.Store.Path) {
		return c.Store.Path
	}
	return filepath.Join(root, c.Store.Path)
}

// ParseWorkers returns the configured worker count, or one per CPU
func (c *Config) ParseWorkers() int {
	if c.Parse.Workers > 0 {
		return c.Parse.Workers
	}
	return runtime.NumCPU()
}
