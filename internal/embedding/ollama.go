package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dogkeeper886/mem0/internal/apperr"
)

// Embedder converts text to a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	HealthCheck(ctx context.Context) error
	Dimension() int
}

// OllamaClient generates text embeddings via the Ollama API.
type OllamaClient struct {
	baseURL    string
	model      string
	dimension  int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOllamaClient creates a client. A dimension of zero disables the length
// check on returned vectors.
func NewOllamaClient(baseURL, model string, dimension int, logger *slog.Logger) *OllamaClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		model:     model,
		dimension: dimension,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (c *OllamaClient) Model() string  { return c.model }
func (c *OllamaClient) Dimension() int { return c.dimension }

// Embed generates an embedding vector for the given text.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	c.logger.Debug("ollama embed", "model", c.model, "text", text)

	data, err := json.Marshal(embedRequest{Model: c.model, Prompt: text})
	if err != nil {
		return nil, apperr.Wrap(apperr.EmbeddingUnavailable, err, "marshal embed request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(data))
	if err != nil {
		return nil, apperr.Wrap(apperr.EmbeddingUnavailable, err, "create embed request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.EmbeddingUnavailable, err, "ollama embed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.EmbeddingUnavailable, err, "read embed response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.New(apperr.EmbeddingUnavailable, "ollama embed: status %d: %s", resp.StatusCode, string(body))
	}

	var result embedResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, apperr.Wrap(apperr.EmbeddingUnavailable, err, "decode embed response")
	}

	if len(result.Embedding) == 0 {
		return nil, apperr.New(apperr.EmbeddingUnavailable, "ollama returned an empty embedding for model %s", c.model)
	}
	if c.dimension > 0 && len(result.Embedding) != c.dimension {
		return nil, apperr.New(apperr.EmbeddingUnavailable,
			"ollama returned %d dimensions, expected %d", len(result.Embedding), c.dimension)
	}

	return result.Embedding, nil
}

// HealthCheck verifies Ollama is reachable.
func (c *OllamaClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return apperr.Wrap(apperr.EmbeddingUnavailable, err, "ollama health check")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.EmbeddingUnavailable, err, "ollama health check")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperr.New(apperr.EmbeddingUnavailable, "ollama health check: status %d", resp.StatusCode)
	}
	return nil
}
