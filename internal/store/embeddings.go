package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// EmbeddingCacheEntry stores a cached embedding keyed by content hash.
type EmbeddingCacheEntry struct {
	ContentHash string
	Embedding   []byte
	Dimension   int
	Model       string
	UpdatedAt   int64
}

// EmbeddingCacheStore handles embedding cache operations in SQLite.
type EmbeddingCacheStore struct {
	db *DB
}

func NewEmbeddingCacheStore(db *DB) *EmbeddingCacheStore {
	return &EmbeddingCacheStore{db: db}
}

// Get returns a cached embedding by content hash, or nil if not found.
func (s *EmbeddingCacheStore) Get(ctx context.Context, contentHash string) (*EmbeddingCacheEntry, error) {
	var e EmbeddingCacheEntry
	err := s.db.QueryRowContext(ctx, `
		SELECT content_hash, embedding, dimension, model, updated_at
		FROM embedding_cache WHERE content_hash = ?
	`, contentHash).Scan(&e.ContentHash, &e.Embedding, &e.Dimension, &e.Model, &e.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get embedding cache: %w", err)
	}
	return &e, nil
}

// Put upserts an embedding cache entry.
func (s *EmbeddingCacheStore) Put(ctx context.Context, entry *EmbeddingCacheEntry) error {
	entry.UpdatedAt = time.Now().Unix()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embedding_cache (content_hash, embedding, dimension, model, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(content_hash) DO UPDATE SET
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			model = excluded.model,
			updated_at = excluded.updated_at
	`, entry.ContentHash, entry.Embedding, entry.Dimension, entry.Model, entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("put embedding cache: %w", err)
	}
	return nil
}

// Float32ToBytes converts a float32 slice to a byte slice (little-endian).
func Float32ToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// BytesToFloat32 converts a byte slice (little-endian) back to a float32 slice.
func BytesToFloat32(b []byte) []float32 {
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
