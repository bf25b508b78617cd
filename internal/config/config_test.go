package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "local", cfg.Embedder.Provider)
	assert.Equal(t, BackendSQLite, cfg.VectorStore.Backend)
	assert.Equal(t, filepath.Join(cfg.DataDir, "index.db"), cfg.VectorStore.SQLite.Path)
	assert.Equal(t, filepath.Join(cfg.DataDir, "manifests"), cfg.Manifest.Dir)
	assert.True(t, cfg.Indexer.Hybrid)
}

func TestParse_OverridesAndDerivedPaths(t *testing.T) {
	cfg, err := Parse([]byte(`
data_dir: /var/lib/semindex
chunker:
  chunk_size: 1200
  chunk_overlap: 100
embedder:
  provider: Ollama
  model: nomic-embed-text
  timeout: 45s
indexer:
  extensions: [.go, .py]
  timeout: 2m
search:
  cache_ttl: 10m
`))
	require.NoError(t, err)
	assert.Equal(t, 1200, cfg.Chunker.ChunkSize)
	assert.Equal(t, 1, cfg.Chunker.MinChunkChars, "unset fields keep defaults")
	assert.Equal(t, "ollama", cfg.Embedder.Provider)
	assert.Equal(t, 45*time.Second, cfg.Embedder.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.Indexer.Timeout)
	assert.Equal(t, []string{".go", ".py"}, cfg.Indexer.Extensions)
	assert.Equal(t, 10*time.Minute, cfg.Search.CacheTTL)
	assert.Equal(t, "/var/lib/semindex/index.db", filepath.ToSlash(cfg.VectorStore.SQLite.Path))
	assert.Equal(t, "/var/lib/semindex/manifests", filepath.ToSlash(cfg.Manifest.Dir))
}

func TestParse_ResolvesSecrets(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("SEMINDEX_PG_DSN", "postgres://localhost/semindex")

	cfg, err := Parse([]byte("embedder:\n  provider: openai\nvector_store:\n  backend: pgvector\n"))
	require.NoError(t, err)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Embedder.APIKeyEnv)
	assert.Equal(t, "sk-test", cfg.Embedder.APIKey)
	assert.Equal(t, "postgres://localhost/semindex", cfg.VectorStore.PGVector.DSN)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"overlap not below size", "chunker:\n  chunk_size: 100\n  chunk_overlap: 100\n"},
		{"unknown provider", "embedder:\n  provider: magic\n"},
		{"missing api key", "embedder:\n  provider: jina\n  api_key_env: SEMINDEX_TEST_UNSET_KEY\n"},
		{"unknown backend", "vector_store:\n  backend: cassandra\n"},
		{"qdrant without url", "vector_store:\n  backend: qdrant\n"},
		{"sqlite manifest on qdrant", "vector_store:\n  backend: qdrant\n  qdrant:\n    url: http://localhost:6333\nmanifest:\n  backend: sqlite\n"},
		{"threshold out of range", "search:\n  score_threshold: 1.5\n"},
		{"bad log format", "log:\n  format: xml\n"},
		{"malformed yaml", "chunker: [unclosed\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Chunker, cfg.Chunker)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Search.TopK = 25
	cfg.Indexer.IgnorePatterns = []string{"testdata"}
	cfg.Embedder.APIKey = "never-written"
	require.NoError(t, Save(path, cfg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "never-written")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 25, loaded.Search.TopK)
	assert.Equal(t, []string{"testdata"}, loaded.Indexer.IgnorePatterns)
	assert.Equal(t, cfg.Embedder.Timeout, loaded.Embedder.Timeout)
}

func TestLoadDefault_Explicit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "semindex.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n  top_k: 7\n"), 0o644))

	cfg, used, err := LoadDefault(path)
	require.NoError(t, err)
	assert.Equal(t, path, used)
	assert.Equal(t, 7, cfg.Search.TopK)

	_, _, err = LoadDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".semindex"), ExpandPath("~/.semindex"))
	assert.Equal(t, "/abs/path", ExpandPath("/abs/path"))
	assert.Equal(t, "~user/x", ExpandPath("~user/x"))
}
