package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	PathEnv, "PORT", "OLLAMA_URL", "EMBED_MODEL", "EMBEDDING_DIM", "LOG_LEVEL",
	"API_KEY", "VECTOR_BACKEND", "QDRANT_URL", "QDRANT_HOST", "QDRANT_PORT",
	"COLLECTION_NAME", "EMBEDDING_CACHE_PATH", "EMBEDDING_CACHE_SIZE",
	"MEMORY_SERVER_URL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8765, cfg.Port)
	assert.Equal(t, ":8765", cfg.Addr())
	assert.Equal(t, "nomic-embed-text", cfg.EmbeddingModel)
	assert.Equal(t, 768, cfg.EmbeddingDim)
	assert.Equal(t, BackendQdrant, cfg.VectorBackend)
	assert.Equal(t, "http://localhost:6333", cfg.QdrantBaseURL())
	assert.Equal(t, "claude_code_memory", cfg.CollectionName)
	assert.Empty(t, cfg.EmbeddingCachePath)
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "memory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 9000
ollama_url: http://ollama:11434
vector_backend: chromem
collection_name: from_file
embedding_cache_size: 10
`), 0o644))

	t.Setenv("COLLECTION_NAME", "from_env")
	t.Setenv("QDRANT_URL", "http://qdrant:6333/")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "http://ollama:11434", cfg.OllamaURL)
	assert.Equal(t, BackendChromem, cfg.VectorBackend)
	assert.Equal(t, "from_env", cfg.CollectionName)
	assert.Equal(t, 10, cfg.EmbeddingCacheSize)
	assert.Equal(t, "http://qdrant:6333", cfg.QdrantBaseURL())
}

func TestLoad_PathFromEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "memory.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embedding_dim: 1024\n"), 0o644))
	t.Setenv(PathEnv, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.EmbeddingDim)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"port out of range", map[string]string{"PORT": "70000"}},
		{"zero dimension", map[string]string{"EMBEDDING_DIM": "0"}},
		{"unknown backend", map[string]string{"VECTOR_BACKEND": "pinecone"}},
		{"bad qdrant port", map[string]string{"QDRANT_PORT": "0"}},
		{"negative cache", map[string]string{"EMBEDDING_CACHE_SIZE": "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingOrBrokenFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [not a number"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}
