package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Backends accepted by VECTOR_BACKEND.
const (
	BackendQdrant  = "qdrant"
	BackendChromem = "chromem"
)

// PathEnv names the variable holding the optional YAML config file path.
const PathEnv = "CLAUDE_MEMORY_CONFIG"

type Config struct {
	Port           int    `yaml:"port"`
	OllamaURL      string `yaml:"ollama_url"`
	EmbeddingModel string `yaml:"embed_model"`
	EmbeddingDim   int    `yaml:"embedding_dim"`
	LogLevel       string `yaml:"log_level"`
	APIKey         string `yaml:"api_key"`
	// Vector index
	VectorBackend  string `yaml:"vector_backend"`
	QdrantURL      string `yaml:"qdrant_url"`
	QdrantHost     string `yaml:"qdrant_host"`
	QdrantPort     int    `yaml:"qdrant_port"`
	CollectionName string `yaml:"collection_name"`
	// Embedding cache
	EmbeddingCachePath string `yaml:"embedding_cache_path"`
	EmbeddingCacheSize int    `yaml:"embedding_cache_size"`
	// Health command target
	MemoryServerURL string `yaml:"memory_server_url"`
}

func defaults() *Config {
	return &Config{
		Port:               8765,
		OllamaURL:          "http://localhost:11434",
		EmbeddingModel:     "nomic-embed-text",
		EmbeddingDim:       768,
		LogLevel:           "info",
		VectorBackend:      BackendQdrant,
		QdrantHost:         "localhost",
		QdrantPort:         6333,
		CollectionName:     "claude_code_memory",
		EmbeddingCacheSize: 2048,
		MemoryServerURL:    "http://localhost:8765",
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (or $CLAUDE_MEMORY_CONFIG when path is empty), then environment variables.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path == "" {
		path = os.Getenv(PathEnv)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Port = envInt("PORT", cfg.Port)
	cfg.OllamaURL = envStr("OLLAMA_URL", cfg.OllamaURL)
	cfg.EmbeddingModel = envStr("EMBED_MODEL", cfg.EmbeddingModel)
	cfg.EmbeddingDim = envInt("EMBEDDING_DIM", cfg.EmbeddingDim)
	cfg.LogLevel = envStr("LOG_LEVEL", cfg.LogLevel)
	cfg.APIKey = envStr("API_KEY", cfg.APIKey)
	cfg.VectorBackend = strings.ToLower(envStr("VECTOR_BACKEND", cfg.VectorBackend))
	cfg.QdrantURL = envStr("QDRANT_URL", cfg.QdrantURL)
	cfg.QdrantHost = envStr("QDRANT_HOST", cfg.QdrantHost)
	cfg.QdrantPort = envInt("QDRANT_PORT", cfg.QdrantPort)
	cfg.CollectionName = envStr("COLLECTION_NAME", cfg.CollectionName)
	cfg.EmbeddingCachePath = envStr("EMBEDDING_CACHE_PATH", cfg.EmbeddingCachePath)
	cfg.EmbeddingCacheSize = envInt("EMBEDDING_CACHE_SIZE", cfg.EmbeddingCacheSize)
	cfg.MemoryServerURL = envStr("MEMORY_SERVER_URL", cfg.MemoryServerURL)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// QdrantBaseURL returns QDRANT_URL when set, else one built from host and port.
func (c *Config) QdrantBaseURL() string {
	if c.QdrantURL != "" {
		return strings.TrimRight(c.QdrantURL, "/")
	}
	return fmt.Sprintf("http://%s:%d", c.QdrantHost, c.QdrantPort)
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.OllamaURL == "" {
		return errors.New("OLLAMA_URL must not be empty")
	}
	if c.EmbeddingModel == "" {
		return errors.New("EMBED_MODEL must not be empty")
	}
	if c.EmbeddingDim < 1 {
		return fmt.Errorf("EMBEDDING_DIM must be positive, got %d", c.EmbeddingDim)
	}
	if c.CollectionName == "" {
		return errors.New("COLLECTION_NAME must not be empty")
	}
	switch c.VectorBackend {
	case BackendQdrant:
		if c.QdrantURL == "" && (c.QdrantHost == "" || c.QdrantPort < 1 || c.QdrantPort > 65535) {
			return errors.New("QDRANT_URL or a valid QDRANT_HOST and QDRANT_PORT is required")
		}
	case BackendChromem:
	default:
		return fmt.Errorf("VECTOR_BACKEND must be %q or %q, got %q", BackendQdrant, BackendChromem, c.VectorBackend)
	}
	if c.EmbeddingCacheSize < 0 {
		return fmt.Errorf("EMBEDDING_CACHE_SIZE must not be negative, got %d", c.EmbeddingCacheSize)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
