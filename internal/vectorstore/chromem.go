package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/dogkeeper886/mem0/internal/apperr"
)

// ChromemIndex implements Index on chromem-go, an embedded pure Go vector
// database. The full payload is kept as JSON in the document content and its
// string fields are mirrored into chromem metadata for where-filters.
type ChromemIndex struct {
	db     *chromem.DB
	dims   map[string]int
	mu     sync.RWMutex
	logger *slog.Logger
}

// NewChromemIndex creates an in-memory index.
func NewChromemIndex(logger *slog.Logger) *ChromemIndex {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromemIndex{
		db:     chromem.NewDB(),
		dims:   make(map[string]int),
		logger: logger,
	}
}

func (x *ChromemIndex) HealthCheck(context.Context) error {
	return nil
}

// EnsureCollection creates the collection on first use. chromem serialises
// collection creation internally, so concurrent callers get the same one.
func (x *ChromemIndex) EnsureCollection(_ context.Context, name string, dimension int) error {
	x.mu.RLock()
	_, known := x.dims[name]
	x.mu.RUnlock()
	if known {
		return nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	// Double-check after acquiring write lock
	if _, known := x.dims[name]; known {
		return nil
	}
	if _, err := x.db.GetOrCreateCollection(name, nil, nil); err != nil {
		return apperr.Wrap(apperr.IndexUnavailable, err, "create collection "+name)
	}
	x.dims[name] = dimension
	x.logger.Info("created chromem collection", "collection", name, "dimension", dimension)
	return nil
}

func (x *ChromemIndex) collection(name string) (*chromem.Collection, int, error) {
	x.mu.RLock()
	dim, known := x.dims[name]
	x.mu.RUnlock()
	if !known {
		return nil, 0, apperr.New(apperr.IndexUnavailable, "collection %s does not exist", name)
	}
	col := x.db.GetCollection(name, nil)
	if col == nil {
		return nil, 0, apperr.New(apperr.IndexUnavailable, "collection %s does not exist", name)
	}
	return col, dim, nil
}

// Upsert stores points. chromem keys documents by id, so a repeated id
// replaces the earlier document.
func (x *ChromemIndex) Upsert(ctx context.Context, collection string, points []Point) error {
	col, dim, err := x.collection(collection)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, 0, len(points))
	for _, p := range points {
		if dim > 0 && len(p.Vector) != dim {
			return apperr.New(apperr.IndexUnavailable, "point %s has %d dimensions, collection expects %d", p.ID, len(p.Vector), dim)
		}
		content, err := json.Marshal(p.Payload)
		if err != nil {
			return apperr.Wrap(apperr.IndexUnavailable, err, "encode payload")
		}
		docs = append(docs, chromem.Document{
			ID:        p.ID,
			Content:   string(content),
			Embedding: p.Vector,
			Metadata:  stringFields(p.Payload),
		})
	}

	for _, doc := range docs {
		if err := col.AddDocument(ctx, doc); err != nil {
			return apperr.Wrap(apperr.IndexUnavailable, err, "add document "+doc.ID)
		}
	}
	return nil
}

func (x *ChromemIndex) Search(ctx context.Context, collection string, vector []float32, filter Filter, limit int) ([]SearchResult, error) {
	col, _, err := x.collection(collection)
	if err != nil {
		return nil, err
	}
	return x.query(ctx, col, vector, filter, limit)
}

// Scroll lists matching points by querying with a fixed unit probe vector;
// the resulting order carries no meaning.
func (x *ChromemIndex) Scroll(ctx context.Context, collection string, filter Filter, limit int) ([]SearchResult, error) {
	col, dim, err := x.collection(collection)
	if err != nil {
		return nil, err
	}
	if dim <= 0 {
		return nil, apperr.New(apperr.IndexUnavailable, "collection %s has no dimension", collection)
	}
	probe := make([]float32, dim)
	probe[0] = 1
	return x.query(ctx, col, probe, filter, limit)
}

func (x *ChromemIndex) query(ctx context.Context, col *chromem.Collection, vector []float32, filter Filter, limit int) ([]SearchResult, error) {
	// chromem rejects nResults above the collection size.
	n := min(limit, col.Count())
	if n <= 0 {
		return []SearchResult{}, nil
	}

	found, err := col.QueryEmbedding(ctx, vector, n, whereClause(filter), nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.IndexUnavailable, err, "chromem query")
	}

	results := make([]SearchResult, 0, len(found))
	for _, r := range found {
		var payload map[string]any
		if err := json.Unmarshal([]byte(r.Content), &payload); err != nil {
			return nil, apperr.Wrap(apperr.IndexUnavailable, err, fmt.Sprintf("decode payload of %s", r.ID))
		}
		results = append(results, SearchResult{ID: r.ID, Score: float64(r.Similarity), Payload: payload})
	}
	return results, nil
}

func (x *ChromemIndex) DeleteByID(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	col, _, err := x.collection(collection)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return apperr.Wrap(apperr.IndexUnavailable, err, "chromem delete")
	}
	return nil
}

func (x *ChromemIndex) DeleteByFilter(ctx context.Context, collection string, filter Filter) error {
	where := whereClause(filter)
	if len(where) == 0 {
		return apperr.New(apperr.IndexUnavailable, "refusing to delete with an empty filter")
	}
	col, _, err := x.collection(collection)
	if err != nil {
		return err
	}
	if col.Count() == 0 {
		return nil
	}
	if err := col.Delete(ctx, where, nil); err != nil {
		return apperr.Wrap(apperr.IndexUnavailable, err, "chromem delete")
	}
	return nil
}

func whereClause(f Filter) map[string]string {
	if len(f.Must) == 0 {
		return nil
	}
	where := make(map[string]string, len(f.Must))
	for _, c := range f.Must {
		where[c.Key] = c.Value
	}
	return where
}

func stringFields(payload map[string]any) map[string]string {
	out := make(map[string]string, len(payload))
	for k, v := range payload {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
