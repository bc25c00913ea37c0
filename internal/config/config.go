// Package config loads docuchat configuration from YAML with environment
// overrides. Precedence, lowest to highest: hardcoded defaults, docuchat.yaml
// in the data directory (or an explicit path), DOCUCHAT_* environment
// variables.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete docuchat configuration.
type Config struct {
	Search     SearchConfig     `yaml:"search"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Index      IndexConfig      `yaml:"index"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Chat       ChatConfig       `yaml:"chat"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
}

// SearchConfig configures hybrid retrieval.
type SearchConfig struct {
	// KeywordWeight is the RRF weight for BM25 results (0.0-1.0).
	// Must sum to 1.0 with VectorWeight.
	KeywordWeight float64 `yaml:"keyword_weight"`

	// VectorWeight is the RRF weight for semantic results (0.0-1.0).
	VectorWeight float64 `yaml:"vector_weight"`

	// RRFConstant is the rank smoothing parameter k. Higher values flatten
	// the difference between adjacent ranks.
	RRFConstant int `yaml:"rrf_constant"`

	// TopK is the default result count per query.
	TopK int `yaml:"top_k"`
}

// ChunkingConfig configures document splitting.
type ChunkingConfig struct {
	// Strategy selects the splitter: "pagewise" or "character".
	Strategy string `yaml:"strategy"`

	// MaxChunkSize is the character ceiling per chunk (character strategy).
	MaxChunkSize int `yaml:"max_chunk_size"`

	// MinChunkSize is the merge threshold for trailing fragments.
	MinChunkSize int `yaml:"min_chunk_size"`

	// OverlapSentences seeds this many trailing sentences into the next
	// chunk (character strategy).
	OverlapSentences int `yaml:"overlap_sentences"`

	// OverlapPages prefixes the trailing portion of this many previous
	// pages (pagewise strategy). Zero disables overlap.
	OverlapPages int `yaml:"overlap_pages"`
}

// IndexConfig configures the per-session keyword index registry.
type IndexConfig struct {
	// TTL is how long a session index lives, measured from build time.
	// Duration string, e.g. "2h".
	TTL string `yaml:"ttl"`

	// CleanupInterval is how often expired indexes are evicted.
	CleanupInterval string `yaml:"cleanup_interval"`

	// BM25K1 and BM25B are the Okapi scoring parameters. BM25Epsilon scales
	// the negative-IDF floor as a fraction of the corpus mean IDF.
	BM25K1      float64 `yaml:"bm25_k1"`
	BM25B       float64 `yaml:"bm25_b"`
	BM25Epsilon float64 `yaml:"bm25_epsilon"`
}

// TTLDuration parses TTL, falling back to 2h on a bad value.
func (c IndexConfig) TTLDuration() time.Duration {
	d, err := time.ParseDuration(c.TTL)
	if err != nil || d <= 0 {
		return 2 * time.Hour
	}
	return d
}

// CleanupIntervalDuration parses CleanupInterval, falling back to 10m.
func (c IndexConfig) CleanupIntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.CleanupInterval)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "ollama" or "static".
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
	CacheSize  int    `yaml:"cache_size"`

	// OllamaHost is the Ollama API endpoint.
	OllamaHost string `yaml:"ollama_host"`
}

// ChatConfig configures conversational context.
type ChatConfig struct {
	// HistoryTurns is how many recent messages feed the chat prompt.
	HistoryTurns int `yaml:"history_turns"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// StorageConfig configures on-disk state.
type StorageConfig struct {
	// DataDir holds blobs, the chat database, and logs.
	DataDir string `yaml:"data_dir"`

	// BaseURL is the public prefix for blob provenance URLs.
	BaseURL string `yaml:"base_url"`
}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	return &Config{
		Search: SearchConfig{
			KeywordWeight: 0.4,
			VectorWeight:  0.6,
			RRFConstant:   60,
			TopK:          5,
		},
		Chunking: ChunkingConfig{
			Strategy:         "character",
			MaxChunkSize:     1500,
			MinChunkSize:     300,
			OverlapSentences: 2,
			OverlapPages:     1,
		},
		Index: IndexConfig{
			TTL:             "2h",
			CleanupInterval: "10m",
			BM25K1:          1.5,
			BM25B:           0.75,
			BM25Epsilon:     0.25,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			Model:      "nomic-embed-text",
			Dimensions: 768,
			BatchSize:  32,
			CacheSize:  1000,
			OllamaHost: "http://localhost:11434",
		},
		Chat: ChatConfig{
			HistoryTurns: 6,
		},
		Server: ServerConfig{
			Port:     8080,
			LogLevel: "info",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
			BaseURL: "http://localhost:8080/blobs",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "docuchat")
	}
	return filepath.Join(home, ".docuchat")
}

// Load loads configuration. path may be an explicit YAML file or empty, in
// which case docuchat.yaml in the working directory is tried. A missing file
// is fine; defaults apply.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		path = "docuchat.yaml"
		if !fileExists(path) {
			path = ""
		}
	}
	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML decodes the file directly over the default-initialized config:
// keys absent from the file keep their defaults, keys present apply even when
// zero (overlap_pages: 0 must be expressible).
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies DOCUCHAT_* environment variable overrides.
// Weights accept explicit zero so one signal can be disabled outright.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DOCUCHAT_KEYWORD_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 && w <= 1 {
			c.Search.KeywordWeight = w
		}
	}
	if v := os.Getenv("DOCUCHAT_VECTOR_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 && w <= 1 {
			c.Search.VectorWeight = w
		}
	}
	if v := os.Getenv("DOCUCHAT_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("DOCUCHAT_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("DOCUCHAT_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("DOCUCHAT_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("DOCUCHAT_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("DOCUCHAT_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("DOCUCHAT_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("DOCUCHAT_INDEX_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Index.TTL = v
		}
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Search.KeywordWeight < 0 || c.Search.KeywordWeight > 1 {
		return fmt.Errorf("keyword_weight must be between 0 and 1, got %f", c.Search.KeywordWeight)
	}
	if c.Search.VectorWeight < 0 || c.Search.VectorWeight > 1 {
		return fmt.Errorf("vector_weight must be between 0 and 1, got %f", c.Search.VectorWeight)
	}
	sum := c.Search.KeywordWeight + c.Search.VectorWeight
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("keyword_weight + vector_weight must equal 1.0, got %.2f", sum)
	}
	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	if c.Search.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.Search.TopK)
	}

	switch strings.ToLower(c.Chunking.Strategy) {
	case "pagewise", "character":
	default:
		return fmt.Errorf("chunking.strategy must be 'pagewise' or 'character', got %s", c.Chunking.Strategy)
	}
	if c.Chunking.MinChunkSize >= c.Chunking.MaxChunkSize {
		return fmt.Errorf("min_chunk_size (%d) must be less than max_chunk_size (%d)",
			c.Chunking.MinChunkSize, c.Chunking.MaxChunkSize)
	}

	if _, err := time.ParseDuration(c.Index.TTL); err != nil {
		return fmt.Errorf("index.ttl: %w", err)
	}
	if _, err := time.ParseDuration(c.Index.CleanupInterval); err != nil {
		return fmt.Errorf("index.cleanup_interval: %w", err)
	}
	if c.Index.BM25K1 <= 0 {
		return fmt.Errorf("bm25_k1 must be positive, got %f", c.Index.BM25K1)
	}
	if c.Index.BM25B < 0 || c.Index.BM25B > 1 {
		return fmt.Errorf("bm25_b must be between 0 and 1, got %f", c.Index.BM25B)
	}
	if c.Index.BM25Epsilon < 0 {
		return fmt.Errorf("bm25_epsilon must be non-negative, got %f", c.Index.BM25Epsilon)
	}

	switch strings.ToLower(c.Embeddings.Provider) {
	case "ollama", "static":
	default:
		return fmt.Errorf("embeddings.provider must be 'ollama' or 'static', got %s", c.Embeddings.Provider)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
