package cli

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dogkeeper886/mem0/internal/config"
	"github.com/dogkeeper886/mem0/internal/embedding"
	"github.com/dogkeeper886/mem0/internal/memory"
	"github.com/dogkeeper886/mem0/internal/project"
	"github.com/dogkeeper886/mem0/internal/store"
	"github.com/dogkeeper886/mem0/internal/vectorstore"
)

// buildService assembles the memory service from configuration. The
// returned cleanup closes the embedding cache database.
func buildService(cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*memory.Service, func(), error) {
	cleanup := func() {}

	// External services
	ollamaClient := embedding.NewOllamaClient(cfg.OllamaURL, cfg.EmbeddingModel, cfg.EmbeddingDim, logger)

	var cacheStore *store.EmbeddingCacheStore
	if cfg.EmbeddingCachePath != "" {
		db, err := store.Open(cfg.EmbeddingCachePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open embedding cache: %w", err)
		}
		cacheStore = store.NewEmbeddingCacheStore(db)
		cleanup = func() { db.Close() }
		if n, err := db.EntryCount(); err == nil {
			logger.Info("embedding cache opened", "path", cfg.EmbeddingCachePath, "entries", n)
		}
	}

	// Embedding with cache
	embedder, err := embedding.NewCachedEmbedder(ollamaClient, cacheStore, cfg.EmbeddingCacheSize, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	var index vectorstore.Index
	switch cfg.VectorBackend {
	case config.BackendChromem:
		index = vectorstore.NewChromemIndex(logger)
		logger.Warn("using the in-process chromem index; memories are lost on exit")
	default:
		index = vectorstore.NewQdrantClient(cfg.QdrantBaseURL(), logger)
	}

	var metrics *memory.Metrics
	if reg != nil {
		metrics = memory.MustNewMetrics(reg)
	}

	svc := memory.NewService(embedder, index, project.NewResolver(project.ExecGit{}, logger), memory.Options{
		Collection: cfg.CollectionName,
		Dimension:  cfg.EmbeddingDim,
		Metrics:    metrics,
		Logger:     logger,
	})
	return svc, cleanup, nil
}
