package embedding

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dogkeeper886/mem0/internal/store"
)

// CachedEmbedder fronts an embedding backend with an in-memory LRU and an
// optional SQLite-backed cache, both keyed by content hash.
type CachedEmbedder struct {
	client *OllamaClient
	recent *lru.Cache[string, []float32]
	cache  *store.EmbeddingCacheStore
	logger *slog.Logger
}

// NewCachedEmbedder wraps client. cache may be nil to keep only the LRU tier.
func NewCachedEmbedder(client *OllamaClient, cache *store.EmbeddingCacheStore, size int, logger *slog.Logger) (*CachedEmbedder, error) {
	if size <= 0 {
		size = 2048
	}
	recent, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("create embedding lru: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedEmbedder{
		client: client,
		recent: recent,
		cache:  cache,
		logger: logger,
	}, nil
}

// Embed returns the embedding for text, using cache when available.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := ContentHash(e.client.Model(), text)

	if vec, ok := e.recent.Get(key); ok {
		return vec, nil
	}

	if e.cache != nil {
		entry, err := e.cache.Get(ctx, key)
		if err != nil {
			e.logger.Warn("embedding cache lookup failed", "error", err)
		} else if vec, ok := e.usable(entry); ok {
			e.recent.Add(key, vec)
			return vec, nil
		}
	}

	vec, err := e.client.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.recent.Add(key, vec)

	if e.cache != nil {
		entry := &store.EmbeddingCacheEntry{
			ContentHash: key,
			Embedding:   store.Float32ToBytes(vec),
			Dimension:   len(vec),
			Model:       e.client.Model(),
		}
		if err := e.cache.Put(ctx, entry); err != nil {
			e.logger.Warn("embedding cache write failed", "error", err)
		}
	}

	return vec, nil
}

// usable decodes a cached row. Rows for another dimension or with a damaged
// blob are treated as misses.
func (e *CachedEmbedder) usable(entry *store.EmbeddingCacheEntry) ([]float32, bool) {
	if entry == nil {
		return nil, false
	}
	if dim := e.client.Dimension(); dim != 0 && entry.Dimension != dim {
		return nil, false
	}
	vec := store.BytesToFloat32(entry.Embedding)
	if len(vec) == 0 || len(vec) != entry.Dimension {
		e.logger.Warn("discarding corrupt embedding cache entry", "content_hash", entry.ContentHash, "bytes", len(entry.Embedding))
		return nil, false
	}
	return vec, true
}

func (e *CachedEmbedder) HealthCheck(ctx context.Context) error {
	return e.client.HealthCheck(ctx)
}

func (e *CachedEmbedder) Dimension() int {
	return e.client.Dimension()
}

// ContentHash keys a cached vector by model and text.
func ContentHash(model, text string) string {
	h := sha256.Sum256([]byte(model + "\x00" + text))
	return fmt.Sprintf("%x", h)
}
