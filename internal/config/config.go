// Package config provides configuration loading and structs for the DuckBake server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	DataDir   string          `yaml:"data_dir"`
	Server    ServerConfig    `yaml:"server"`
	Ollama    OllamaConfig    `yaml:"ollama"`
	Vectorize VectorizeConfig `yaml:"vectorize"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Search    SearchConfig    `yaml:"search"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// OllamaConfig holds settings for the local model-serving endpoint.
type OllamaConfig struct {
	BaseURL        string `yaml:"base_url"`
	EmbeddingModel string `yaml:"embedding_model"`
	ChatModel      string `yaml:"chat_model"`
	KeepAlive      string `yaml:"keep_alive"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// VectorizeConfig holds batch sizes for the vectorization pipeline.
type VectorizeConfig struct {
	TableBatchSize int `yaml:"table_batch_size"`
	ChunkBatchSize int `yaml:"chunk_batch_size"`
}

// ChunkerConfig holds document chunking thresholds, in characters.
type ChunkerConfig struct {
	MaxChunkSize int `yaml:"max_chunk_size"`
	MinChunkSize int `yaml:"min_chunk_size"`
}

// SearchConfig holds similarity search limits.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

// WatchConfig holds inbox watcher settings.
type WatchConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Extensions     []string `yaml:"extensions"`
	DebounceMillis int      `yaml:"debounce_ms"`
}

// DatabasesDir is where per-project database files live.
func (c *Config) DatabasesDir() string {
	return filepath.Join(c.DataDir, "databases")
}

// DatabasePath returns the database file path for a project id.
func (c *Config) DatabasePath(projectID string) string {
	return filepath.Join(c.DatabasesDir(), projectID+".db")
}

// RegistryPath is the project registry database file.
func (c *Config) RegistryPath() string {
	return filepath.Join(c.DataDir, "projects.db")
}

// KeywordIndexPath is the keyword index directory.
func (c *Config) KeywordIndexPath() string {
	return filepath.Join(c.DataDir, "index.bleve")
}

// InboxDir returns the drop-folder directory for a project id.
func (c *Config) InboxDir(projectID string) string {
	return filepath.Join(c.DataDir, "inbox", projectID)
}

// InboxRoot is the parent of all project inbox directories.
func (c *Config) InboxRoot() string {
	return filepath.Join(c.DataDir, "inbox")
}

// Load reads and parses the config file at path, applies defaults, and
// expands the data directory. Returns an error if the file cannot be read or
// parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	cfg.DataDir = expandPath(cfg.DataDir, filepath.Dir(path))

	return &cfg, nil
}

// Default returns a config with all defaults applied and no file read.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	cfg.DataDir = expandPath(cfg.DataDir, ".")
	return &cfg
}

// Save writes the config to path. Used to seed a starter config on first run.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative
// to baseDir; "~/" prefixes expand to the home directory.
func expandPath(path string, baseDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "~/") || path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(baseDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
