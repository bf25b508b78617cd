package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is looked up in the working directory
const FileName = "semindex.yaml"

// Vector store backends
const (
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
	BackendQdrant   = "qdrant"
	BackendPGVector = "pgvector"
)

// Manifest backends
const (
	ManifestFile   = "file"
	ManifestSQLite = "sqlite"
)

// ErrInvalidConfig marks a configuration that cannot be used
var ErrInvalidConfig = errors.New("invalid configuration")

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console or json
}

// ChunkerConfig configures how files are split into chunks.
type ChunkerConfig struct {
	ChunkSize     int `yaml:"chunk_size"`
	ChunkOverlap  int `yaml:"chunk_overlap"`
	MinChunkChars int `yaml:"min_chunk_chars"`
}

// EmbedderConfig selects and configures the embedding provider.
type EmbedderConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	Dimension         int           `yaml:"dimension"`
	CacheSize         int           `yaml:"cache_size"`
	Timeout           time.Duration `yaml:"timeout"`
	BatchSize         int           `yaml:"batch_size"`
	MaxBatchBytes     int           `yaml:"max_batch_bytes"`
	Concurrency       int           `yaml:"concurrency"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	MaxRetries        int           `yaml:"max_retries"`

	// APIKey is resolved from APIKeyEnv at load time and never written out
	APIKey string `yaml:"-"`
}

// IndexerConfig configures file discovery and the sync pipeline.
type IndexerConfig struct {
	Workers        int           `yaml:"workers"`
	FileBatchSize  int           `yaml:"file_batch_size"`
	Extensions     []string      `yaml:"extensions,omitempty"`
	IgnorePatterns []string      `yaml:"ignore_patterns,omitempty"`
	MaxFileSize    int64         `yaml:"max_file_size"`
	Hybrid         bool          `yaml:"hybrid"`
	Timeout        time.Duration `yaml:"timeout"`
}

// SQLiteConfig locates the embedded database.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// QdrantConfig contains connection details for a Qdrant server.
type QdrantConfig struct {
	URL       string        `yaml:"url"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Timeout   time.Duration `yaml:"timeout"`

	APIKey string `yaml:"-"`
}

// PGVectorConfig contains connection details for PostgreSQL.
type PGVectorConfig struct {
	DSNEnv string `yaml:"dsn_env"`

	DSN string `yaml:"-"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	Backend  string         `yaml:"backend"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Qdrant   QdrantConfig   `yaml:"qdrant"`
	PGVector PGVectorConfig `yaml:"pgvector"`
}

// ManifestConfig selects where file fingerprints are kept.
type ManifestConfig struct {
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
}

// SearchConfig holds query defaults and the response cache.
type SearchConfig struct {
	TopK           int           `yaml:"top_k"`
	ScoreThreshold float64       `yaml:"score_threshold"`
	Hybrid         bool          `yaml:"hybrid"`
	CacheSize      int           `yaml:"cache_size"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
}

// Config is the root configuration.
type Config struct {
	DataDir     string            `yaml:"data_dir"`
	Log         LogConfig         `yaml:"log"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Indexer     IndexerConfig     `yaml:"indexer"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Manifest    ManifestConfig    `yaml:"manifest"`
	Search      SearchConfig      `yaml:"search"`
}

// Default returns the configuration used when no file exists
func Default() *Config {
	cfg := base()
	applyDefaults(cfg)
	return cfg
}

// base holds the defaults that do not derive from other settings
func base() *Config {
	return &Config{
		DataDir: filepath.Join("~", ".semindex"),
		Log:     LogConfig{Level: "info", Format: "console"},
		Chunker: ChunkerConfig{ChunkSize: 2500, ChunkOverlap: 300, MinChunkChars: 1},
		Embedder: EmbedderConfig{
			Provider:    "local",
			Timeout:     30 * time.Second,
			BatchSize:   50,
			Concurrency: 2,
			CacheSize:   10000,
			MaxRetries:  3,
		},
		Indexer:     IndexerConfig{FileBatchSize: 32, MaxFileSize: 1 << 20, Hybrid: true},
		VectorStore: VectorStoreConfig{Backend: BackendSQLite},
		Manifest:    ManifestConfig{Backend: ManifestFile},
		Search:      SearchConfig{TopK: 10, Hybrid: true, CacheSize: 1000, CacheTTL: time.Hour},
	}
}

// Load reads a config from path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fromDefaults()
		}
		return nil, err
	}
	return Parse(data)
}

func fromDefaults() (*Config, error) {
	cfg := Default()
	resolveSecrets(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults, resolves secrets and validates
func Parse(data []byte) (*Config, error) {
	cfg := base()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	applyDefaults(cfg)
	resolveSecrets(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads explicit when set, else ./semindex.yaml, else
// ~/.config/semindex/config.yaml, else the defaults. It returns the path
// used, empty for defaults.
func LoadDefault(explicit string) (*Config, string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return nil, "", err
		}
		cfg, err := Load(explicit)
		return cfg, explicit, err
	}
	candidates := []string{FileName}
	if userPath, err := DefaultUserConfigPath(); err == nil {
		candidates = append(candidates, userPath)
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			cfg, err := Load(p)
			return cfg, p, err
		}
	}
	cfg, err := fromDefaults()
	return cfg, "", err
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// DefaultUserConfigPath returns ~/.config/semindex/config.yaml
func DefaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "semindex", "config.yaml"), nil
}

// Validate rejects settings no component can run with
func (c *Config) Validate() error {
	var errs []error
	if c.Chunker.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunker.chunk_size must be positive"))
	}
	if c.Chunker.ChunkOverlap < 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		errs = append(errs, fmt.Errorf("chunker.chunk_overlap must be in [0, chunk_size)"))
	}

	switch c.Embedder.Provider {
	case "local", "ollama":
	case "openai", "jina", "gemini":
		if c.Embedder.APIKey == "" {
			errs = append(errs, fmt.Errorf("embedder.%s requires %s to be set", c.Embedder.Provider, c.Embedder.APIKeyEnv))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown embedder.provider %q", c.Embedder.Provider))
	}
	if c.Embedder.Dimension < 0 {
		errs = append(errs, fmt.Errorf("embedder.dimension must not be negative"))
	}

	switch c.VectorStore.Backend {
	case BackendSQLite, BackendMemory:
	case BackendQdrant:
		if c.VectorStore.Qdrant.URL == "" {
			errs = append(errs, fmt.Errorf("vector_store.qdrant.url is required"))
		}
	case BackendPGVector:
		if c.VectorStore.PGVector.DSN == "" {
			errs = append(errs, fmt.Errorf("vector_store.pgvector requires %s to be set", c.VectorStore.PGVector.DSNEnv))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown vector_store.backend %q", c.VectorStore.Backend))
	}

	switch c.Manifest.Backend {
	case ManifestFile:
	case ManifestSQLite:
		if c.VectorStore.Backend != BackendSQLite {
			errs = append(errs, fmt.Errorf("manifest.backend sqlite requires vector_store.backend sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown manifest.backend %q", c.Manifest.Backend))
	}

	if c.Search.ScoreThreshold < 0 || c.Search.ScoreThreshold > 1 {
		errs = append(errs, fmt.Errorf("search.score_threshold must be within [0, 1]"))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// ExpandPath replaces a leading ~ with the home directory
func ExpandPath(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") && !strings.HasPrefix(p, "~"+string(filepath.Separator)) {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[1:])
}

func applyDefaults(cfg *Config) {
	cfg.Embedder.Provider = strings.ToLower(cfg.Embedder.Provider)
	cfg.VectorStore.Backend = strings.ToLower(cfg.VectorStore.Backend)
	cfg.Manifest.Backend = strings.ToLower(cfg.Manifest.Backend)

	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join("~", ".semindex")
	}
	if cfg.Embedder.APIKeyEnv == "" {
		switch cfg.Embedder.Provider {
		case "openai":
			cfg.Embedder.APIKeyEnv = "OPENAI_API_KEY"
		case "jina":
			cfg.Embedder.APIKeyEnv = "JINA_API_KEY"
		case "gemini":
			cfg.Embedder.APIKeyEnv = "GEMINI_API_KEY"
		}
	}
	if cfg.VectorStore.SQLite.Path == "" {
		cfg.VectorStore.SQLite.Path = filepath.Join(cfg.DataDir, "index.db")
	}
	if cfg.VectorStore.Qdrant.APIKeyEnv == "" {
		cfg.VectorStore.Qdrant.APIKeyEnv = "QDRANT_API_KEY"
	}
	if cfg.VectorStore.PGVector.DSNEnv == "" {
		cfg.VectorStore.PGVector.DSNEnv = "SEMINDEX_PG_DSN"
	}
	if cfg.Manifest.Dir == "" {
		cfg.Manifest.Dir = filepath.Join(cfg.DataDir, "manifests")
	}
}

func resolveSecrets(cfg *Config) {
	if cfg.Embedder.APIKeyEnv != "" {
		cfg.Embedder.APIKey = os.Getenv(cfg.Embedder.APIKeyEnv)
	}
	cfg.VectorStore.Qdrant.APIKey = os.Getenv(cfg.VectorStore.Qdrant.APIKeyEnv)
	cfg.VectorStore.PGVector.DSN = os.Getenv(cfg.VectorStore.PGVector.DSNEnv)
}
