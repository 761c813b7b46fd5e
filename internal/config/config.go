// Package config loads and persists semvault configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultDataDir is the default directory name for semvault data
	DefaultDataDir = ".semvault"
	// DefaultConfigFile is the default config filename
	DefaultConfigFile = "config.yaml"
	// DefaultCustomVectorsFile is the default custom vectors filename
	DefaultCustomVectorsFile = "custom-vectors.json"
	// DefaultCheckpointFile is the default pruning checkpoint filename
	DefaultCheckpointFile = "prune-checkpoint.json"
)

// Config holds the application configuration
type Config struct {
	// DataDir is the directory where semvault stores its data
	DataDir string `mapstructure:"data_dir" yaml:"data_dir,omitempty"`

	// Embedding configuration
	Embedding EmbeddingConfig `mapstructure:"embedding" yaml:"embedding,omitempty"`

	// Indexing configuration
	Indexing IndexingConfig `mapstructure:"indexing" yaml:"indexing,omitempty"`

	// Search configuration
	Search SearchConfig `mapstructure:"search" yaml:"search,omitempty"`

	// Prune configuration
	Prune PruneConfig `mapstructure:"prune" yaml:"prune,omitempty"`

	// Server configuration
	Server ServerConfig `mapstructure:"server" yaml:"server,omitempty"`
}

// EmbeddingConfig holds embedding table settings
type EmbeddingConfig struct {
	// Sources are the embedding table files to load, in order. Files
	// ending in .gz are decompressed transparently.
	Sources []string `mapstructure:"sources" yaml:"sources,omitempty"`
	// BaseModel identifies the table (e.g. "glove-6b-100d"); custom
	// vectors are only merged when their base model matches.
	BaseModel string `mapstructure:"base_model" yaml:"base_model,omitempty"`
	// CustomVectorsPath is the custom vectors side file
	CustomVectorsPath string `mapstructure:"custom_vectors_path" yaml:"custom_vectors_path,omitempty"`
}

// IndexingConfig holds indexing settings
type IndexingConfig struct {
	// VaultDir is the document directory to index
	VaultDir string `mapstructure:"vault_dir" yaml:"vault_dir,omitempty"`
	// Strategy is the aggregation strategy: "average", "tfidf", or "sif"
	Strategy string `mapstructure:"strategy" yaml:"strategy,omitempty"`
	// ExcludedPatterns are gitignore-style patterns excluded from indexing
	ExcludedPatterns []string `mapstructure:"excluded_patterns" yaml:"excluded_patterns,omitempty"`
}

// SearchConfig holds search settings
type SearchConfig struct {
	// TopK is the number of results returned per query
	TopK int `mapstructure:"top_k" yaml:"top_k,omitempty"`
	// HighlightThreshold is the minimum token similarity for highlight words
	HighlightThreshold float64 `mapstructure:"highlight_threshold" yaml:"highlight_threshold,omitempty"`
}

// PruneConfig holds pruning engine settings
type PruneConfig struct {
	// Threshold is the minimum cosine similarity for neighbors
	Threshold float64 `mapstructure:"threshold" yaml:"threshold,omitempty"`
	// Cap is the maximum final vocabulary size
	Cap int `mapstructure:"cap" yaml:"cap,omitempty"`
	// Neighbors is the number of nearest neighbors kept per word
	Neighbors int `mapstructure:"neighbors" yaml:"neighbors,omitempty"`
	// Workers sizes the nearest-neighbor worker pool (0 = NumCPU)
	Workers int `mapstructure:"workers" yaml:"workers,omitempty"`
	// CheckpointEvery is the checkpoint cadence in processed words
	CheckpointEvery int `mapstructure:"checkpoint_every" yaml:"checkpoint_every,omitempty"`
}

// ServerConfig holds server settings
type ServerConfig struct {
	// Host is the server bind address
	Host string `mapstructure:"host" yaml:"host,omitempty"`
	// Port is the server port
	Port int `mapstructure:"port" yaml:"port,omitempty"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		DataDir: DefaultDataDir,
		Embedding: EmbeddingConfig{
			BaseModel:         "glove-6b-100d",
			CustomVectorsPath: filepath.Join(DefaultDataDir, DefaultCustomVectorsFile),
		},
		Indexing: IndexingConfig{
			VaultDir: ".",
			Strategy: "average",
			ExcludedPatterns: []string{
				".git/**",
				".semvault/**",
				".obsidian/**",
				"node_modules/**",
			},
		},
		Search: SearchConfig{
			TopK:               10,
			HighlightThreshold: 0.5,
		},
		Prune: PruneConfig{
			Threshold:       0.0,
			Cap:             100000,
			Neighbors:       5,
			CheckpointEvery: 1000,
		},
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
	}
}

// Load loads configuration from the project's config file and environment.
func Load(projectDir string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(projectDir, DefaultDataDir))
	v.AddConfigPath(".")

	v.SetEnvPrefix("SEMVAULT")
	v.AutomaticEnv()
	_ = v.BindEnv("embedding.sources", "SEMVAULT_EMBEDDING_SOURCES")
	_ = v.BindEnv("embedding.base_model", "SEMVAULT_BASE_MODEL")
	_ = v.BindEnv("indexing.strategy", "SEMVAULT_STRATEGY")
	_ = v.BindEnv("server.host", "SEMVAULT_HOST")
	_ = v.BindEnv("server.port", "SEMVAULT_PORT")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	// Resolve paths relative to the project directory
	if !filepath.IsAbs(cfg.DataDir) {
		cfg.DataDir = filepath.Join(projectDir, cfg.DataDir)
	}
	if cfg.Embedding.CustomVectorsPath != "" && !filepath.IsAbs(cfg.Embedding.CustomVectorsPath) {
		cfg.Embedding.CustomVectorsPath = filepath.Join(projectDir, cfg.Embedding.CustomVectorsPath)
	}
	if cfg.Indexing.VaultDir != "" && !filepath.IsAbs(cfg.Indexing.VaultDir) {
		cfg.Indexing.VaultDir = filepath.Join(projectDir, cfg.Indexing.VaultDir)
	}

	return cfg, nil
}

// Validate checks for configuration errors that must abort before any
// work begins.
func (c *Config) Validate() error {
	if len(c.Embedding.Sources) == 0 {
		return fmt.Errorf("no embedding sources configured (set embedding.sources)")
	}
	for _, src := range c.Embedding.Sources {
		if _, err := os.Stat(src); err != nil {
			return fmt.Errorf("embedding source %s: %w", src, err)
		}
	}
	return nil
}

// EnsureDataDir creates the data directory if it doesn't exist
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}

// CheckpointPath returns the pruning checkpoint location.
func (c *Config) CheckpointPath() string {
	return filepath.Join(c.DataDir, DefaultCheckpointFile)
}

// WriteDefaultConfig writes the default config file to the data directory.
// An existing config is never overwritten.
func (c *Config) WriteDefaultConfig() error {
	configPath := filepath.Join(c.DataDir, DefaultConfigFile)
	if _, err := os.Stat(configPath); err == nil {
		return nil
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(configPath, data, 0644)
}

// FindProjectRoot finds the project root by walking up from the working
// directory looking for a .semvault directory.
func FindProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		candidate := filepath.Join(dir, DefaultDataDir)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not in a semvault project (no %s directory found)", DefaultDataDir)
		}
		dir = parent
	}
}
